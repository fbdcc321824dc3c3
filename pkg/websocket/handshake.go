package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// GUID is the fixed string appended to the client key when deriving
// the Sec-WebSocket-Accept value.
//
// https://tools.ietf.org/html/rfc6455#section-1.3
const GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Version is the only protocol version this package speaks.
const Version = "13"

// ErrBadHandshake is returned when an upgrade request cannot be accepted.
var ErrBadHandshake = errors.New("websocket: bad handshake")

// AcceptKey derives the Sec-WebSocket-Accept value for the given
// Sec-WebSocket-Key: base64(SHA-1(key + GUID)).
func AcceptKey(key string) string {
	h := sha1.New()
	io.WriteString(h, key)
	io.WriteString(h, GUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ValidateHandshake checks the Sec-WebSocket-Key and Sec-WebSocket-Version
// values of an upgrade request. The key must be the base64 encoding of 16
// bytes, and the version must be 13.
func ValidateHandshake(key, version string) error {
	if version != Version {
		return fmt.Errorf("%w: unsupported version %q", ErrBadHandshake, version)
	}
	if key == "" {
		return fmt.Errorf("%w: key is empty", ErrBadHandshake)
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return fmt.Errorf("%w: key is not base64: %v", ErrBadHandshake, err)
	}
	if len(raw) != 16 {
		return fmt.Errorf("%w: key decodes to %d bytes, want 16", ErrBadHandshake, len(raw))
	}
	return nil
}
