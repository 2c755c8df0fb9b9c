// Package cryptox holds the process-wide symmetric key (KeyHandle) and the
// AES-256-CBC cipher used to protect refresh tokens at rest.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// IVSize is the length of the random initialization vector prepended to every
// envelope. It equals the AES block size.
const IVSize = aes.BlockSize

var (
	// ErrMalformedEnvelope is returned when a stored envelope string has no
	// delimiter or is not valid hex.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrDecryptionFailed is returned when the ciphertext cannot be decrypted
	// with the current key (bad IV size, bad length or bad padding).
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Envelope is the result of one encryption: the IV and the ciphertext.
// It is converted to its textual form only when it is persisted.
type Envelope struct {
	IV         []byte
	Ciphertext []byte
}

// String returns the storage form of the envelope: hex(iv) ":" hex(ciphertext).
func (e Envelope) String() string {
	return hex.EncodeToString(e.IV) + ":" + hex.EncodeToString(e.Ciphertext)
}

// ParseEnvelope decodes the storage form produced by Envelope.String.
// The input is split on the first colon.
func ParseEnvelope(s string) (Envelope, error) {
	ivHex, ctHex, ok := strings.Cut(s, ":")
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing delimiter", ErrMalformedEnvelope)
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: iv: %v", ErrMalformedEnvelope, err)
	}

	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: ciphertext: %v", ErrMalformedEnvelope, err)
	}

	return Envelope{IV: iv, Ciphertext: ct}, nil
}

// Cipher encrypts and decrypts with AES-256 in CBC mode using PKCS#7 padding.
// A Cipher is immutable and safe for concurrent use.
//
// CBC carries no integrity check: a tampered ciphertext may decrypt to
// garbage instead of failing.
type Cipher struct {
	block cipher.Block
}

// NewCipher builds a Cipher keyed by h.
func NewCipher(h *KeyHandle) (*Cipher, error) {
	if h == nil || len(h.key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(h.key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}

	return &Cipher{block: block}, nil
}

// Seal encrypts plaintext under a fresh random IV.
func (c *Cipher) Seal(plaintext []byte) (Envelope, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ct, padded)

	return Envelope{IV: iv, Ciphertext: ct}, nil
}

// Open decrypts an envelope produced by Seal.
func (c *Cipher) Open(e Envelope) ([]byte, error) {
	if len(e.IV) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes", ErrDecryptionFailed, IVSize)
	}
	if len(e.Ciphertext) == 0 || len(e.Ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrDecryptionFailed)
	}

	out := make([]byte, len(e.Ciphertext))
	cipher.NewCBCDecrypter(c.block, e.IV).CryptBlocks(out, e.Ciphertext)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plain, nil
}

// Encrypt seals plaintext and returns the storage form of the envelope.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	e, err := c.Seal(plaintext)
	if err != nil {
		return "", err
	}
	return e.String(), nil
}

// Decrypt parses a stored envelope and opens it.
func (c *Cipher) Decrypt(s string) ([]byte, error) {
	e, err := ParseEnvelope(s)
	if err != nil {
		return nil, err
	}
	return c.Open(e)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad length", ErrDecryptionFailed)
	}

	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
		}
	}

	return b[:len(b)-n], nil
}
