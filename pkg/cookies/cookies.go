// Package cookies renders Set-Cookie values for responses and reads
// cookies back from requests, optionally sealing the value with AES-GCM.
package cookies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrInvalidCookie is returned when a cookie cannot be rendered, for
// example because its name is not a valid token.
var ErrInvalidCookie = errors.New("cookies: invalid cookie")

// Cookie is a name and value pair that will be sent to the client.
type Cookie struct {
	Name  string
	Value string
}

// String returns the name=value form of the cookie.
func (c *Cookie) String() string {
	return c.Name + "=" + c.Value
}

// Header renders the value of a Set-Cookie header line for the cookie
// with the given options applied.
func (c *Cookie) Header(options ...Option) (string, error) {
	cookie := &http.Cookie{
		Name:  c.Name,
		Value: c.Value,
	}

	for _, option := range options {
		if err := option(cookie); err != nil {
			return "", err
		}
	}

	s := cookie.String()
	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidCookie, c.Name)
	}
	return s, nil
}

// Get returns the named cookie of the request. When key is not nil the
// value is decrypted with it.
func Get(r *http.Request, name string, key []byte) (*Cookie, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie %q: %w", name, err)
	}

	if key == nil {
		return &Cookie{Name: name, Value: cookie.Value}, nil
	}

	dec, err := decryptAES(cookie.Value, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt cookie %q using AES: %w", name, err)
	}

	return &Cookie{Name: name, Value: dec}, nil
}

// Option customises the rendered cookie.
type Option func(*http.Cookie) error

func WithDomain(domain string) Option {
	return func(cookie *http.Cookie) error {
		cookie.Domain = domain
		return nil
	}
}

func WithPath(path string) Option {
	return func(cookie *http.Cookie) error {
		cookie.Path = path
		return nil
	}
}

func WithMaxAge(maxAge int) Option {
	return func(cookie *http.Cookie) error {
		cookie.MaxAge = maxAge
		return nil
	}
}

func WithSecure(secure bool) Option {
	return func(cookie *http.Cookie) error {
		cookie.Secure = secure
		return nil
	}
}

func WithHttpOnly(httpOnly bool) Option {
	return func(cookie *http.Cookie) error {
		cookie.HttpOnly = httpOnly
		return nil
	}
}

func WithSameSite(sameSite http.SameSite) Option {
	return func(cookie *http.Cookie) error {
		cookie.SameSite = sameSite
		return nil
	}
}

func WithExpires(expires time.Time) Option {
	return func(cookie *http.Cookie) error {
		cookie.Expires = expires
		return nil
	}
}

// WithEncryptionKeyAES seals the cookie value with the given AES key in
// GCM mode. The key must be 16, 24 or 32 bytes.
func WithEncryptionKeyAES(key []byte) Option {
	return func(cookie *http.Cookie) error {
		enc, err := encryptAES(cookie.Value, key)
		if err != nil {
			return err
		}
		cookie.Value = enc
		return nil
	}
}

// encryptAES encrypts the given value with the given AES key in GCM mode
// and returns the hex encoded nonce and ciphertext.
func encryptAES(value string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	// The nonce needs to be unique, but not secret, so it travels in front
	// of the ciphertext.
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to read random bytes for nonce: %w", err)
	}

	return hex.EncodeToString(gcm.Seal(nonce, nonce, []byte(value), nil)), nil
}

// decryptAES reverses encryptAES.
func decryptAES(value string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	ciphertext, err := hex.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex string: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	ciphertext = ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
