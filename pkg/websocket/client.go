package websocket

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
)

// FrameReader reads frames from a byte stream.
type FrameReader struct {
	// Reader is the reader to read frames from.
	Reader io.Reader

	// Decoder validates and decodes each frame.
	Decoder Decoder
}

// ReadFrame reads exactly one frame from the reader.
func (r *FrameReader) ReadFrame() (Frame, error) {
	// The first two bytes tell how long the rest of the header is.
	buf := make([]byte, 2, 14)
	if _, err := io.ReadFull(r.Reader, buf); err != nil {
		return Frame{}, err
	}

	size := 2
	switch buf[1] & 0x7f {
	case 126:
		size += 2
	case 127:
		size += 8
	}
	if buf[1]&0x80 != 0 {
		size += 4
	}
	buf = buf[:size]
	if _, err := io.ReadFull(r.Reader, buf[2:]); err != nil {
		return Frame{}, err
	}

	var length uint64
	switch buf[1] & 0x7f {
	case 126:
		length = uint64(binary.BigEndian.Uint16(buf[2:]))
	case 127:
		length = binary.BigEndian.Uint64(buf[2:])
	default:
		length = uint64(buf[1] & 0x7f)
	}
	if r.Decoder.MaxPayloadSize > 0 && length > r.Decoder.MaxPayloadSize {
		return Frame{}, fmt.Errorf("%w: payload length %d exceeds maximum payload size %d", ErrMessageTooBig, length, r.Decoder.MaxPayloadSize)
	}
	if length>>63 != 0 {
		return Frame{}, ErrInvalidLength
	}
	if length > uint64(math.MaxInt-size) {
		return Frame{}, fmt.Errorf("%w: payload length %d cannot be buffered", ErrMessageTooBig, length)
	}

	frame := make([]byte, size+int(length))
	copy(frame, buf)
	if _, err := io.ReadFull(r.Reader, frame[size:]); err != nil {
		return Frame{}, err
	}

	f, _, err := r.Decoder.Decode(frame)
	return f, err
}

// DefaultMaxPayloadSize bounds the frames a ClientConn returned by Dial
// accepts.
const DefaultMaxPayloadSize = 1 << 20

// ClientConn is the client end of a WebSocket connection. Frames it writes
// are masked with a fresh random key, frames it reads must be unmasked.
type ClientConn struct {
	FrameReader

	raw net.Conn
}

// generateKey generates a random key used for the WebSocket handshake.
func generateKey() (string, error) {
	key := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Dial dials a WebSocket endpoint at addr and path, performs the opening
// handshake and returns the connection and the related HTTP response.
func Dial(ctx context.Context, addr, path string) (*ClientConn, *http.Response, error) {
	d := net.Dialer{}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	key, err := generateKey()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	lines := []string{
		"GET " + path + " HTTP/1.1",
		"Host: " + addr,
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Version: " + Version,
		"Sec-WebSocket-Key: " + key,
		"",
		"",
	}

	if _, err := conn.Write([]byte(strings.Join(lines, "\r\n"))); err != nil {
		conn.Close()
		return nil, nil, err
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusSwitchingProtocols {
		conn.Close()
		return nil, resp, fmt.Errorf("%w: unexpected status code: %d", ErrBadHandshake, resp.StatusCode)
	}

	if !strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") {
		conn.Close()
		return nil, resp, fmt.Errorf("%w: upgrade header is not websocket: %s", ErrBadHandshake, resp.Header.Get("Upgrade"))
	}

	if accept := resp.Header.Get("Sec-WebSocket-Accept"); accept != AcceptKey(key) {
		conn.Close()
		return nil, resp, fmt.Errorf("%w: accept is invalid: %q", ErrBadHandshake, accept)
	}

	return &ClientConn{
		raw: conn,
		FrameReader: FrameReader{
			Reader:  br,
			Decoder: Decoder{AllowUnmasked: true, MaxPayloadSize: DefaultMaxPayloadSize},
		},
	}, resp, nil
}

// WriteMessage writes a single masked frame with the given opcode.
func (c *ClientConn) WriteMessage(opcode Opcode, payload []byte) error {
	var key FrameMask
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return err
	}
	frame := EncodeMaskedFrame(opcode, payload, key)
	n, err := c.raw.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}

// WriteRaw writes bytes to the connection unchanged.
func (c *ClientConn) WriteRaw(b []byte) error {
	_, err := c.raw.Write(b)
	return err
}

// Close closes the underlying connection without a close frame.
func (c *ClientConn) Close() error {
	return c.raw.Close()
}
