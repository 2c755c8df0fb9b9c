// Package tmdb is a thin proxy client for The Movie Database TV endpoints.
// Responses are returned as raw JSON; the API key and language are added
// here so they never reach the browser.
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultBaseURL  = "https://api.themoviedb.org/3"
	DefaultLanguage = "pt-BR"

	detailsAppend = "credits,watch/providers,external_ids"
	maxBodySize   = 4 << 20
)

var ErrNoAPIKey = errors.New("tmdb api key not configured")

const redactedKey = "REDACTED"

// StatusError is returned when TMDB answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb responded %d", e.StatusCode)
}

type Options struct {
	APIKey     string
	BaseURL    string
	Language   string
	RecentDays int
	Timeout    time.Duration
	// MaxElapsed bounds the retries of one call.
	MaxElapsed time.Duration
}

type Client struct {
	http       *http.Client
	apiKey     string
	baseURL    string
	language   string
	recentDays int
	maxElapsed time.Duration
	now        func() time.Time
}

func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxElapsed <= 0 {
		o.MaxElapsed = 3 * time.Second
	}
	return &Client{
		http:       &http.Client{Timeout: o.Timeout},
		apiKey:     o.APIKey,
		baseURL:    strings.TrimRight(o.BaseURL, "/"),
		language:   o.Language,
		recentDays: o.RecentDays,
		maxElapsed: o.MaxElapsed,
		now:        time.Now,
	}
}

// Discover lists TV series by popularity.
func (c *Client) Discover(ctx context.Context, page string) ([]byte, error) {
	q := url.Values{}
	q.Set("sort_by", "popularity.desc")
	q.Set("page", pageOrFirst(page))
	return c.get(ctx, "/discover/tv", q)
}

// Search finds TV series by name.
func (c *Client) Search(ctx context.Context, query, page string) ([]byte, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("page", pageOrFirst(page))
	return c.get(ctx, "/search/tv", q)
}

// TV returns the details of one series with credits, providers and
// external ids appended.
func (c *Client) TV(ctx context.Context, id string) ([]byte, error) {
	q := url.Values{}
	q.Set("append_to_response", detailsAppend)
	return c.get(ctx, "/tv/"+url.PathEscape(id), q)
}

// Recent lists popular series first aired within the last recentDays days.
func (c *Client) Recent(ctx context.Context) ([]byte, error) {
	today := c.now().UTC()
	q := url.Values{}
	q.Set("first_air_date.gte", today.AddDate(0, 0, -c.recentDays).Format(time.DateOnly))
	q.Set("first_air_date.lte", today.Format(time.DateOnly))
	q.Set("sort_by", "popularity.desc")
	q.Set("page", "1")
	return c.get(ctx, "/discover/tv", q)
}

func pageOrFirst(page string) string {
	if n, err := strconv.Atoi(page); err == nil && n > 0 {
		return strconv.Itoa(n)
	}
	return "1"
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	q.Set("language", c.language)
	q.Set("api_key", redactedKey)
	logged := c.baseURL + path + "?" + q.Encode()
	q.Set("api_key", c.apiKey)
	endpoint := c.baseURL + path + "?" + q.Encode()

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(redactURL(err, logged))
		}
		req.Header.Set("Accept", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return redactURL(err, logged)
		}
		defer res.Body.Close()

		if res.StatusCode >= 400 {
			_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxBodySize))
			serr := &StatusError{StatusCode: res.StatusCode}
			if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}

		body, err = io.ReadAll(io.LimitReader(res.Body, maxBodySize))
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// redactURL replaces the URL of a transport error, which carries the API key,
// with its redacted form.
func redactURL(err error, redacted string) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &url.Error{Op: uerr.Op, URL: redacted, Err: uerr.Err}
	}
	return err
}
