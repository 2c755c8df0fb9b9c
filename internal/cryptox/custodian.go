package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nickk-eng/Serialboxd/internal/common"
)

// KeySize is the size of the AES-256 key in bytes.
const KeySize = 32

// RSAKeyBits is the modulus size used by GenerateKeyPair.
const RSAKeyBits = 2048

var (
	ErrInvalidKey     = errors.New("symmetric key must be 32 bytes")
	ErrNoKeyMaterial  = errors.New("no symmetric key configured")
	ErrInvalidPEM     = errors.New("invalid PEM block")
	ErrUnsupportedKey = errors.New("unsupported key type")
)

// KeyHandle owns the plaintext symmetric key for the lifetime of the process.
// It is created once at startup and handed to NewCipher; the key is never
// exposed outside this package.
type KeyHandle struct {
	key []byte
}

// NewKeyHandle copies key into a new handle.
func NewKeyHandle(key []byte) (*KeyHandle, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &KeyHandle{key: k}, nil
}

// Destroy zeroes the key. Ciphers created from the handle keep their own
// expanded key schedule and continue to work.
func (h *KeyHandle) Destroy() {
	if h == nil {
		return
	}
	common.WipeByteArray(h.key)
}

// WrapKey encrypts key with pub using RSA-OAEP and SHA-256.
func WrapKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}
	return wrapped, nil
}

// UnwrapKey reverses WrapKey and returns the key inside a KeyHandle.
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) (*KeyHandle, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap key: %w", err)
	}
	defer common.WipeByteArray(key)

	return NewKeyHandle(key)
}

// EncodeWrappedKey returns the textual artifact stored on disk.
func EncodeWrappedKey(wrapped []byte) string {
	return base64.StdEncoding.EncodeToString(wrapped)
}

// DecodeWrappedKey parses an artifact written by EncodeWrappedKey.
func DecodeWrappedKey(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode wrapped key: %w", err)
	}
	return b, nil
}

// KeySource describes where the symmetric key comes from at startup.
//
// If WrappedKeyPath is set, the artifact is read and unwrapped with the
// private key. Otherwise RawKey is wrapped with the public key and then
// unwrapped again with the private key, so only the wrapped form ever leaves
// this function. RawKey is left untouched: the function works on its own copy
// and wipes that, and the caller remains responsible for wiping RawKey.
type KeySource struct {
	PrivateKeyPath string
	PublicKeyPath  string
	WrappedKeyPath string
	RawKey         []byte
}

// LoadKeyHandle runs the startup key ceremony described by src.
// Any error is meant to be fatal for the caller.
func LoadKeyHandle(src KeySource) (*KeyHandle, error) {
	priv, err := LoadRSAPrivateKey(src.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	if src.WrappedKeyPath != "" {
		data, err := os.ReadFile(src.WrappedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read wrapped key: %w", err)
		}
		wrapped, err := DecodeWrappedKey(string(data))
		if err != nil {
			return nil, err
		}
		return UnwrapKey(priv, wrapped)
	}

	if len(src.RawKey) == 0 {
		return nil, ErrNoKeyMaterial
	}

	pub, err := LoadRSAPublicKey(src.PublicKeyPath)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, len(src.RawKey))
	copy(raw, src.RawKey)
	defer common.WipeByteArray(raw)

	wrapped, err := WrapKey(pub, raw)
	if err != nil {
		return nil, err
	}

	return UnwrapKey(priv, wrapped)
}

// LoadRSAPrivateKey reads a PEM encoded PKCS#1 or PKCS#8 RSA private key.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}

	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	rk, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedKey)
	}
	return rk, nil
}

// LoadRSAPublicKey reads a PEM encoded PKIX or PKCS#1 RSA public key.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	if k, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return k, nil
	}

	k, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key %s: %w", path, err)
	}
	rk, ok := k.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedKey)
	}
	return rk, nil
}

// GenerateKeyPair creates a new RSA keypair.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, RSAKeyBits)
}

// MarshalPrivateKeyPEM encodes priv as a PKCS#8 PEM block.
func MarshalPrivateKeyPEM(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// MarshalPublicKeyPEM encodes pub as a PKIX PEM block.
func MarshalPublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidPEM)
	}
	return block, nil
}
