package websocket

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

var (
	// ErrShortFrame is returned when the buffer does not yet hold a
	// complete frame. Callers should wait for more bytes and retry.
	ErrShortFrame = errors.New("websocket: short frame")

	// ErrProtocolViolation is the parent of every error caused by a
	// peer breaking RFC 6455 framing rules.
	ErrProtocolViolation = errors.New("websocket: protocol violation")

	// ErrUnmaskedFrame is returned for a client frame without the mask bit.
	ErrUnmaskedFrame = fmt.Errorf("%w: mask bit not set", ErrProtocolViolation)

	// ErrReservedBits is returned when RSV1, RSV2 or RSV3 is set. No
	// extension is ever negotiated, so they must be zero.
	ErrReservedBits = fmt.Errorf("%w: reserved bits set", ErrProtocolViolation)

	// ErrReservedOpcode is returned for opcodes 0x3-0x7 and 0xB-0xF.
	ErrReservedOpcode = fmt.Errorf("%w: reserved opcode", ErrProtocolViolation)

	// ErrInvalidControl is returned for a fragmented or oversized control frame.
	ErrInvalidControl = fmt.Errorf("%w: invalid control frame", ErrProtocolViolation)

	// ErrInvalidLength is returned when the 64-bit length has its most
	// significant bit set.
	ErrInvalidLength = fmt.Errorf("%w: payload length exceeds 63 bits", ErrProtocolViolation)

	// ErrInvalidUTF8 is returned for a text message that is not valid UTF-8.
	ErrInvalidUTF8 = fmt.Errorf("%w: invalid utf-8 in text message", ErrProtocolViolation)

	// ErrMessageTooBig is returned when a payload exceeds the decoder limit.
	ErrMessageTooBig = errors.New("websocket: message too big")
)

// Opcode denotes the "message type" of a WebSocket frame.
//
// https://www.rfc-editor.org/rfc/rfc6455#section-11.8
type Opcode byte

const (
	// ContinuationFrame is the opcode for a continuation frame.
	ContinuationFrame Opcode = 0x0

	// TextFrame is the opcode for a text frame.
	TextFrame Opcode = 0x1

	// BinaryFrame is the opcode for a binary frame.
	BinaryFrame Opcode = 0x2

	// CloseFrame is the opcode for a close frame.
	CloseFrame Opcode = 0x8

	// PingFrame is the opcode for a ping frame.
	PingFrame Opcode = 0x9

	// PongFrame is the opcode for a pong frame.
	PongFrame Opcode = 0xA
)

// IsControl reports whether the opcode denotes a control frame.
func (o Opcode) IsControl() bool {
	return o&0x8 != 0
}

func (o Opcode) reserved() bool {
	switch o {
	case ContinuationFrame, TextFrame, BinaryFrame, CloseFrame, PingFrame, PongFrame:
		return false
	}
	return true
}

// String returns the string representation of the opcode.
func (o Opcode) String() string {
	switch o {
	case ContinuationFrame:
		return "ContinuationMessage"
	case TextFrame:
		return "TextMessage"
	case BinaryFrame:
		return "BinaryMessage"
	case CloseFrame:
		return "CloseMessage"
	case PingFrame:
		return "PingMessage"
	case PongFrame:
		return "PongMessage"
	default:
		return "Unknown(0x" + strconv.FormatInt(int64(o), 16) + ")"
	}
}

// MaxControlPayload is the largest payload a control frame may carry.
const MaxControlPayload = 125

// FrameMask is the mask key for a masked frame.
//
// https://tools.ietf.org/html/rfc6455#section-5.3
type FrameMask [4]byte

// Frame is a single WebSocket frame in decoded form.
//
//	0                   1                   2                   3
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-------+-+-------------+-------------------------------+
//	|F|R|R|R| opcode|M| Payload len |    Extended payload length    |
//	|I|S|S|S|  (4)  |A|     (7)     |             (16/64)           |
//	|N|V|V|V|       |S|             |   (if payload len==126/127)   |
//	| |1|2|3|       |K|             |                               |
//	+-+-+-+-+-------+-+-------------+ - - - - - - - - - - - - - - - +
//	|     Extended payload length continued, if payload len == 127  |
//	+ - - - - - - - - - - - - - - - +-------------------------------+
//	|                               |Masking-key, if MASK set to 1  |
//	+-------------------------------+-------------------------------+
//	| Masking-key (continued)       |          Payload Data         |
//	+-------------------------------- - - - - - - - - - - - - - - - +
//	:                     Payload Data continued ...                :
//	+ - - - - - - - - - - - - - - - - - - - - - - - - - - - - - - - +
//	|                     Payload Data continued ...                |
//	+---------------------------------------------------------------+
//
// https://tools.ietf.org/html/rfc6455#section-5.2
type Frame struct {
	Fin  bool
	RSV1 bool
	RSV2 bool
	RSV3 bool

	Opcode Opcode

	// Masked reports whether the frame carried (or should carry) a mask key.
	Masked  bool
	MaskKey FrameMask

	// Length is the payload length announced by the frame header.
	Length uint64

	// Payload holds the unmasked payload bytes.
	Payload []byte
}

// String returns a short description of the frame for logging.
func (f Frame) String() string {
	var mask string
	if f.Masked {
		mask = hex.EncodeToString(f.MaskKey[:])
	}
	return fmt.Sprintf(
		"websocket.Frame{Fin: %t, Type: %v, Size: %d, Mask: %s}",
		f.Fin,
		f.Opcode,
		f.Length,
		mask,
	)
}

// Mask XORs b in place with the mask key, starting at key offset 0.
// Masking and unmasking are the same operation.
func Mask(key FrameMask, b []byte) {
	for i := range b {
		b[i] ^= key[i%4]
	}
}

// HeaderSize returns the number of header bytes needed to frame a payload
// of n bytes, with or without a mask key.
func HeaderSize(n int, masked bool) int {
	size := 2
	switch {
	case n <= 125:
	case n < 65536:
		size += 2
	default:
		size += 8
	}
	if masked {
		size += 4
	}
	return size
}

// AppendFrame appends the wire encoding of f to dst and returns the
// extended slice. The length field is taken from len(f.Payload), and the
// payload is masked on the way out when f.Masked is set; f.Payload itself
// is left untouched.
func AppendFrame(dst []byte, f Frame) []byte {
	b0 := byte(f.Opcode) & 0x0f
	if f.Fin {
		b0 |= 0x80
	}
	if f.RSV1 {
		b0 |= 0x40
	}
	if f.RSV2 {
		b0 |= 0x20
	}
	if f.RSV3 {
		b0 |= 0x10
	}

	var b1 byte
	if f.Masked {
		b1 = 0x80
	}

	n := len(f.Payload)
	switch {
	case n <= 125:
		dst = append(dst, b0, b1|byte(n))
	case n < 65536:
		dst = append(dst, b0, b1|126, 0, 0)
		binary.BigEndian.PutUint16(dst[len(dst)-2:], uint16(n))
	default:
		dst = append(dst, b0, b1|127, 0, 0, 0, 0, 0, 0, 0, 0)
		binary.BigEndian.PutUint64(dst[len(dst)-8:], uint64(n))
	}

	if !f.Masked {
		return append(dst, f.Payload...)
	}

	dst = append(dst, f.MaskKey[:]...)
	start := len(dst)
	dst = append(dst, f.Payload...)
	Mask(f.MaskKey, dst[start:])
	return dst
}

// EncodeFrame returns a complete, unmasked, server-to-client frame.
//
// An example text frame carrying "Hello":
//
//	{
//		0x81, // FIN bit set, text frame
//		0x05, // Mask bit clear, payload length 5
//		0x48, 0x65, 0x6c, 0x6c, 0x6f, // Payload
//	}
func EncodeFrame(opcode Opcode, payload []byte) []byte {
	dst := make([]byte, 0, HeaderSize(len(payload), false)+len(payload))
	return AppendFrame(dst, Frame{Fin: true, Opcode: opcode, Payload: payload})
}

// EncodeMaskedFrame returns a complete frame in the client-to-server
// direction, masked with the given key.
func EncodeMaskedFrame(opcode Opcode, payload []byte, key FrameMask) []byte {
	dst := make([]byte, 0, HeaderSize(len(payload), true)+len(payload))
	return AppendFrame(dst, Frame{Fin: true, Opcode: opcode, Masked: true, MaskKey: key, Payload: payload})
}

// Decoder decodes frames from a byte buffer.
type Decoder struct {
	// MaxPayloadSize is the maximum payload size allowed. Zero means no
	// limit beyond the 63-bit length field.
	MaxPayloadSize uint64

	// AllowUnmasked accepts frames without a mask key. Servers leave this
	// unset; clients reading server frames set it.
	AllowUnmasked bool
}

// DecodeFrame decodes one client-to-server frame from the front of buf
// with no payload limit. See Decoder.Decode.
func DecodeFrame(buf []byte) (Frame, int, error) {
	return (&Decoder{}).Decode(buf)
}

// Decode decodes one frame from the front of buf and returns it together
// with the number of bytes it occupied. When buf holds only part of a frame
// it returns ErrShortFrame and consumes nothing. Protocol violations also
// consume nothing; the frame header fields parsed so far are returned so
// the caller can log them.
func (d *Decoder) Decode(buf []byte) (Frame, int, error) {
	var f Frame
	if len(buf) < 2 {
		return f, 0, ErrShortFrame
	}

	b0, b1 := buf[0], buf[1]
	f.Fin = b0&0x80 != 0
	f.RSV1 = b0&0x40 != 0
	f.RSV2 = b0&0x20 != 0
	f.RSV3 = b0&0x10 != 0
	f.Opcode = Opcode(b0 & 0x0f)
	f.Masked = b1&0x80 != 0

	if !f.Masked && !d.AllowUnmasked {
		return f, 0, ErrUnmaskedFrame
	}
	if f.RSV1 || f.RSV2 || f.RSV3 {
		return f, 0, ErrReservedBits
	}
	if f.Opcode.reserved() {
		return f, 0, fmt.Errorf("%w 0x%x", ErrReservedOpcode, byte(f.Opcode))
	}

	offset := 2
	length := uint64(b1 & 0x7f)
	switch length {
	case 126:
		if len(buf) < offset+2 {
			return f, 0, ErrShortFrame
		}
		length = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case 127:
		if len(buf) < offset+8 {
			return f, 0, ErrShortFrame
		}
		length = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
		if length>>63 != 0 {
			return f, 0, ErrInvalidLength
		}
	}
	f.Length = length

	if f.Opcode.IsControl() && (!f.Fin || length > MaxControlPayload) {
		return f, 0, ErrInvalidControl
	}
	if d.MaxPayloadSize > 0 && length > d.MaxPayloadSize {
		return f, 0, fmt.Errorf("%w: payload length %d exceeds maximum payload size %d", ErrMessageTooBig, length, d.MaxPayloadSize)
	}

	if f.Masked {
		if len(buf) < offset+4 {
			return f, 0, ErrShortFrame
		}
		copy(f.MaskKey[:], buf[offset:offset+4])
		offset += 4
	}

	if uint64(len(buf)-offset) < length {
		return f, 0, ErrShortFrame
	}
	end := offset + int(length)

	f.Payload = make([]byte, length)
	copy(f.Payload, buf[offset:end])
	if f.Masked {
		Mask(f.MaskKey, f.Payload)
	}

	return f, end, nil
}

// ValidText reports an ErrInvalidUTF8 error when a text payload is not
// valid UTF-8.
func ValidText(payload []byte) error {
	if !utf8.Valid(payload) {
		return ErrInvalidUTF8
	}
	return nil
}
