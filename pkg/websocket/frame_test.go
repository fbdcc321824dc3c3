package websocket_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/picatz/mghttpd/pkg/websocket"
)

func TestEncodeFrameLengthTiers(t *testing.T) {
	tests := []struct {
		size       int
		marker     byte
		headerSize int
	}{
		{0, 0, 2},
		{1, 1, 2},
		{125, 125, 2},
		{126, 126, 4},
		{65535, 126, 4},
		{65536, 127, 10},
		{70000, 127, 10},
	}

	for _, tt := range tests {
		payload := bytes.Repeat([]byte{'x'}, tt.size)
		frame := websocket.EncodeFrame(websocket.TextFrame, payload)

		if frame[0] != 0x81 {
			t.Fatalf("size %d: expected first byte 0x81, got 0x%x", tt.size, frame[0])
		}

		if frame[1]&0x80 != 0 {
			t.Fatalf("size %d: expected server frame to be unmasked", tt.size)
		}

		if frame[1]&0x7f != tt.marker {
			t.Fatalf("size %d: expected length marker %d, got %d", tt.size, tt.marker, frame[1]&0x7f)
		}

		if len(frame) != tt.headerSize+tt.size {
			t.Fatalf("size %d: expected frame length %d, got %d", tt.size, tt.headerSize+tt.size, len(frame))
		}

		if !bytes.Equal(frame[tt.headerSize:], payload) {
			t.Fatalf("size %d: payload not copied verbatim", tt.size)
		}
	}
}

func TestEncodeFrameBinary(t *testing.T) {
	frame := websocket.EncodeFrame(websocket.BinaryFrame, []byte("Hello"))

	expected := []byte{0x82, 0x05, 'H', 'e', 'l', 'l', 'o'}
	if !bytes.Equal(frame, expected) {
		t.Fatalf("expected %x, got %x", expected, frame)
	}
}

func TestDecodeFrameRoundTrip(t *testing.T) {
	key := websocket.FrameMask{0x37, 0xfa, 0x21, 0x3d}

	for _, size := range []int{0, 1, 125, 126, 65535, 65536, 70000} {
		for _, opcode := range []websocket.Opcode{websocket.TextFrame, websocket.BinaryFrame} {
			payload := make([]byte, size)
			for i := range payload {
				payload[i] = byte('a' + i%26)
			}

			encoded := websocket.EncodeMaskedFrame(opcode, payload, key)

			frame, n, err := websocket.DecodeFrame(encoded)
			if err != nil {
				t.Fatalf("size %d: %v", size, err)
			}

			if n != len(encoded) {
				t.Fatalf("size %d: expected to consume %d bytes, got %d", size, len(encoded), n)
			}

			if frame.Opcode != opcode {
				t.Fatalf("size %d: expected opcode %v, got %v", size, opcode, frame.Opcode)
			}

			if !frame.Fin || !frame.Masked {
				t.Fatalf("size %d: expected fin and mask bits, got %s", size, frame)
			}

			if frame.MaskKey != key {
				t.Fatalf("size %d: expected mask key %x, got %x", size, key, frame.MaskKey)
			}

			if frame.Length != uint64(size) {
				t.Fatalf("size %d: expected length %d, got %d", size, size, frame.Length)
			}

			if !bytes.Equal(frame.Payload, payload) {
				t.Fatalf("size %d: payload mismatch", size)
			}
		}
	}
}

func TestDecodeFrameRFCExample(t *testing.T) {
	// https://tools.ietf.org/html/rfc6455#section-5.7
	buf := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}

	frame, n, err := websocket.DecodeFrame(buf)
	if err != nil {
		t.Fatal(err)
	}

	if n != len(buf) {
		t.Fatalf("expected to consume %d bytes, got %d", len(buf), n)
	}

	if string(frame.Payload) != "Hello" {
		t.Fatalf("expected payload to be %q, got %q", "Hello", frame.Payload)
	}
}

func TestDecodeFrameShort(t *testing.T) {
	encoded := websocket.EncodeMaskedFrame(websocket.TextFrame, bytes.Repeat([]byte{'y'}, 300), websocket.FrameMask{1, 2, 3, 4})

	for i := 0; i < len(encoded); i++ {
		_, n, err := websocket.DecodeFrame(encoded[:i])
		if !errors.Is(err, websocket.ErrShortFrame) {
			t.Fatalf("prefix %d: expected ErrShortFrame, got %v", i, err)
		}
		if n != 0 {
			t.Fatalf("prefix %d: expected nothing consumed, got %d", i, n)
		}
	}
}

func TestDecodeFrameTwoFrames(t *testing.T) {
	key := websocket.FrameMask{9, 8, 7, 6}
	first := websocket.EncodeMaskedFrame(websocket.TextFrame, []byte("one"), key)
	second := websocket.EncodeMaskedFrame(websocket.BinaryFrame, []byte("two"), key)
	buf := append(append([]byte{}, first...), second...)

	frame, n, err := websocket.DecodeFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(frame.Payload) != "one" || n != len(first) {
		t.Fatalf("expected first frame, got %s consuming %d", frame, n)
	}

	frame, n, err = websocket.DecodeFrame(buf[n:])
	if err != nil {
		t.Fatal(err)
	}
	if string(frame.Payload) != "two" || frame.Opcode != websocket.BinaryFrame || n != len(second) {
		t.Fatalf("expected second frame, got %s consuming %d", frame, n)
	}
}

func TestDecodeFrameViolations(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		err  error
	}{
		{"unmasked", []byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}, websocket.ErrUnmaskedFrame},
		{"rsv1", []byte{0xc1, 0x80, 0, 0, 0, 0}, websocket.ErrReservedBits},
		{"reserved opcode", []byte{0x83, 0x80, 0, 0, 0, 0}, websocket.ErrReservedOpcode},
		{"fragmented ping", []byte{0x09, 0x80, 0, 0, 0, 0}, websocket.ErrInvalidControl},
		{"oversized close", []byte{0x88, 0xfe, 0x00, 0x7e}, websocket.ErrInvalidControl},
		{"63-bit length", []byte{0x82, 0xff, 0x80, 0, 0, 0, 0, 0, 0, 0}, websocket.ErrInvalidLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := websocket.DecodeFrame(tt.buf)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if !errors.Is(err, websocket.ErrProtocolViolation) {
				t.Fatalf("expected %v to be a protocol violation", err)
			}
			if n != 0 {
				t.Fatalf("expected nothing consumed, got %d", n)
			}
		})
	}
}

func TestDecoderMaxPayloadSize(t *testing.T) {
	d := websocket.Decoder{MaxPayloadSize: 10}

	encoded := websocket.EncodeMaskedFrame(websocket.BinaryFrame, make([]byte, 11), websocket.FrameMask{})

	_, _, err := d.Decode(encoded)
	if !errors.Is(err, websocket.ErrMessageTooBig) {
		t.Fatalf("expected ErrMessageTooBig, got %v", err)
	}

	if code := websocket.CloseCodeFor(err); code != websocket.StatusMessageTooBig {
		t.Fatalf("expected close code %d, got %d", websocket.StatusMessageTooBig, code)
	}
}

func TestDecoderAllowUnmasked(t *testing.T) {
	d := websocket.Decoder{AllowUnmasked: true}

	frame, _, err := d.Decode(websocket.EncodeFrame(websocket.TextFrame, []byte("Hello")))
	if err != nil {
		t.Fatal(err)
	}

	if frame.Masked {
		t.Fatalf("expected frame to be unmasked")
	}

	if string(frame.Payload) != "Hello" {
		t.Fatalf("expected payload to be %q, got %q", "Hello", frame.Payload)
	}
}

func TestReadFrame(t *testing.T) {
	key := websocket.FrameMask{1, 2, 3, 4}
	payload := bytes.Repeat([]byte{'z'}, 300)

	r := &websocket.FrameReader{
		Reader: bytes.NewReader(websocket.EncodeMaskedFrame(websocket.TextFrame, payload, key)),
	}

	frame, err := r.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}

	if frame.Opcode != websocket.TextFrame {
		t.Fatalf("expected message type to be %v, got %v", websocket.TextFrame, frame.Opcode)
	}

	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("expected payload to round trip")
	}
}

func TestReadFrameHugeLength(t *testing.T) {
	header := []byte{0x82, 127, 0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

	r := &websocket.FrameReader{
		Reader:  bytes.NewReader(header),
		Decoder: websocket.Decoder{AllowUnmasked: true},
	}

	_, err := r.ReadFrame()
	if !errors.Is(err, websocket.ErrMessageTooBig) {
		t.Fatalf("expected %v, got %v", websocket.ErrMessageTooBig, err)
	}

	r = &websocket.FrameReader{
		Reader:  bytes.NewReader(websocket.EncodeFrame(websocket.BinaryFrame, make([]byte, 200))),
		Decoder: websocket.Decoder{AllowUnmasked: true, MaxPayloadSize: 100},
	}

	_, err = r.ReadFrame()
	if !errors.Is(err, websocket.ErrMessageTooBig) {
		t.Fatalf("expected %v, got %v", websocket.ErrMessageTooBig, err)
	}
}

func TestClosePayload(t *testing.T) {
	payload := websocket.NewClosePayload(websocket.StatusProtocolError, "bad frame")

	code, reason, err := websocket.ParseClosePayload(payload)
	if err != nil {
		t.Fatal(err)
	}

	if code != websocket.StatusProtocolError {
		t.Fatalf("expected code %d, got %d", websocket.StatusProtocolError, code)
	}

	if reason != "bad frame" {
		t.Fatalf("expected reason %q, got %q", "bad frame", reason)
	}

	tests := []struct {
		code  websocket.StatusCode
		valid bool
	}{
		{0, false},
		{999, false},
		{1000, true},
		{1003, true},
		{1004, false},
		{1005, false},
		{1006, false},
		{1007, true},
		{1011, true},
		{1012, false},
		{1015, false},
		{2999, false},
		{3000, true},
		{4999, true},
		{5000, false},
	}

	for _, tt := range tests {
		_, _, err := websocket.ParseClosePayload(websocket.NewClosePayload(tt.code, ""))
		if tt.valid && err != nil {
			t.Fatalf("expected code %d to be accepted, got %v", tt.code, err)
		}
		if !tt.valid && !errors.Is(err, websocket.ErrProtocolViolation) {
			t.Fatalf("expected code %d to be a protocol violation, got %v", tt.code, err)
		}
	}

	long := websocket.NewClosePayload(websocket.StatusNormalClosure, string(bytes.Repeat([]byte{'r'}, 200)))
	if len(long) != websocket.MaxControlPayload {
		t.Fatalf("expected close payload to be truncated to %d bytes, got %d", websocket.MaxControlPayload, len(long))
	}
}

// Run fuzz test with:
//
// $ go test -fuzz=DecodeFrame github.com/picatz/mghttpd/pkg/websocket -v
func FuzzDecodeFrame(f *testing.F) {
	f.Add(websocket.EncodeMaskedFrame(websocket.TextFrame, []byte("Hello"), websocket.FrameMask{1, 2, 3, 4}))
	f.Add(websocket.EncodeMaskedFrame(websocket.BinaryFrame, make([]byte, 200), websocket.FrameMask{}))
	f.Add(websocket.EncodeFrame(websocket.TextFrame, []byte("Hello")))

	f.Fuzz(func(t *testing.T, buf []byte) {
		frame, n, err := websocket.DecodeFrame(buf)
		if err != nil {
			if n != 0 {
				t.Fatalf("expected nothing consumed on error, got %d", n)
			}
			return
		}

		if n > len(buf) {
			t.Fatalf("consumed %d bytes of a %d byte buffer", n, len(buf))
		}

		if uint64(len(frame.Payload)) != frame.Length {
			t.Fatalf("payload length %d does not match header length %d", len(frame.Payload), frame.Length)
		}

		again := websocket.EncodeMaskedFrame(frame.Opcode, frame.Payload, frame.MaskKey)
		if len(again) > n {
			t.Fatalf("re-encoded frame is longer than the original")
		}
	})
}
