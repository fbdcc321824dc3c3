package websocket

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidCloseCode is returned for a received close frame whose status
// code may not appear on the wire.
var ErrInvalidCloseCode = fmt.Errorf("%w: invalid close status code", ErrProtocolViolation)

// StatusCode represents a WebSocket status code.
//
// https://tools.ietf.org/html/rfc6455#section-7.4
type StatusCode uint16

const (
	// StatusNormalClosure indicates a normal closure, meaning that the purpose
	// for which the connection was established has been fulfilled.
	StatusNormalClosure StatusCode = 1000

	// StatusGoingAway indicates that an endpoint is "going away", such as a server
	// going down or a browser having navigated away from a page.
	StatusGoingAway StatusCode = 1001

	// StatusProtocolError indicates that an endpoint is terminating the connection
	// due to a protocol error.
	StatusProtocolError StatusCode = 1002

	// StatusUnsupportedData indicates that an endpoint is terminating the connection
	// because it has received a type of data it cannot accept.
	StatusUnsupportedData StatusCode = 1003

	// StatusNoStatusRcvd indicates that no status code was provided even though one
	// was expected. It is never sent on the wire.
	StatusNoStatusRcvd StatusCode = 1005

	// StatusAbnormalClosure indicates the connection dropped without a close
	// frame. It is never sent on the wire.
	StatusAbnormalClosure StatusCode = 1006

	// StatusInvalidFramePayloadData indicates that an endpoint is terminating the
	// connection because it has received data within a message that was not consistent
	// with the type of the message (e.g., non-UTF-8 data within a text message).
	StatusInvalidFramePayloadData StatusCode = 1007

	// StatusPolicyViolation indicates that an endpoint is terminating the connection
	// because it has received a message that violates its policy.
	StatusPolicyViolation StatusCode = 1008

	// StatusMessageTooBig indicates that an endpoint is terminating the connection
	// because it has received a message that is too big for it to process.
	StatusMessageTooBig StatusCode = 1009

	// StatusInternalServerErr indicates that a server is terminating the connection
	// because it encountered an unexpected condition that prevented it from fulfilling
	// the request.
	StatusInternalServerErr StatusCode = 1011
)

// Valid reports whether c may be sent in a close frame. Codes 1004 to
// 1006 and 1015 are reserved for local use, codes below 3000 that are not
// defined by the RFC are unassigned, and codes from 5000 up do not exist.
//
// https://www.rfc-editor.org/rfc/rfc6455#section-7.4.1
func (c StatusCode) Valid() bool {
	switch {
	case c >= 1000 && c <= 1003:
		return true
	case c >= 1007 && c <= 1011:
		return true
	case c >= 3000 && c <= 4999:
		return true
	}
	return false
}

// NewClosePayload returns the payload of a close frame: a 2-byte
// unsigned integer (in network byte order) followed by a UTF-8-encoded
// reason. The reason is truncated so the payload fits a control frame.
//
// https://www.rfc-editor.org/rfc/rfc6455#section-5.5.1
func NewClosePayload(code StatusCode, reason string) []byte {
	if len(reason) > MaxControlPayload-2 {
		reason = reason[:MaxControlPayload-2]
	}
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	return payload
}

// ParseClosePayload splits a close frame payload into its status code and
// reason. An empty payload yields StatusNoStatusRcvd. A code that may not
// be sent on the wire is an ErrInvalidCloseCode error.
func ParseClosePayload(payload []byte) (StatusCode, string, error) {
	switch len(payload) {
	case 0:
		return StatusNoStatusRcvd, "", nil
	case 1:
		return 0, "", ErrInvalidControl
	}
	code := StatusCode(binary.BigEndian.Uint16(payload))
	if !code.Valid() {
		return 0, "", fmt.Errorf("%w %d", ErrInvalidCloseCode, code)
	}
	reason := payload[2:]
	if err := ValidText(reason); err != nil {
		return 0, "", err
	}
	return code, string(reason), nil
}

// CloseCodeFor maps a decoding error to the status code sent back in the
// close frame.
func CloseCodeFor(err error) StatusCode {
	switch {
	case errors.Is(err, ErrInvalidUTF8):
		return StatusInvalidFramePayloadData
	case errors.Is(err, ErrMessageTooBig):
		return StatusMessageTooBig
	case errors.Is(err, ErrProtocolViolation):
		return StatusProtocolError
	default:
		return StatusInternalServerErr
	}
}
