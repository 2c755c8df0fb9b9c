package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/nickk-eng/Serialboxd/internal/common"
)

// MaxAvatarSize is the largest accepted avatar in bytes.
const MaxAvatarSize = 5 << 20

var avatarExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AvatarKey names the stored object for userID.
func AvatarKey(userID int64, ext string) string {
	return fmt.Sprintf("%d-%s%s", userID, uuid.NewString(), ext)
}

// UpdateAvatar stores data as the avatar of userID and returns its URL. The
// type is taken from the content, not from the client.
func (s *UserService) UpdateAvatar(ctx context.Context, userID int64, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: no file uploaded", common.ErrValidation)
	}
	if len(data) > MaxAvatarSize {
		return "", fmt.Errorf("%w: file exceeds %d bytes", common.ErrValidation, MaxAvatarSize)
	}
	if s.avatars == nil {
		return "", fmt.Errorf("avatar storage not configured: %w", common.ErrorInternal)
	}

	contentType := http.DetectContentType(data)
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported image type %q", common.ErrValidation, contentType)
	}

	url, err := s.avatars.Save(ctx, AvatarKey(userID, ext), contentType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("error saving avatar: %w", err)
	}

	if err := s.repos.Users(s.repos.Conn()).UpdateAvatarURL(ctx, userID, url); err != nil {
		return "", fmt.Errorf("error updating avatar url: %w", err)
	}

	s.log.Info(ctx, "avatar updated", "user_id", userID)
	return url, nil
}
