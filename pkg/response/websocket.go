package response

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"github.com/picatz/mghttpd/pkg/clock"
	"github.com/picatz/mghttpd/pkg/websocket"
)

// ErrClosing is returned when a frame is queued after the WebSocket channel
// started closing.
var ErrClosing = errors.New("response: websocket is closing")

// WebSocket is the response to a successful upgrade request. Its header
// block is the 101 handshake; afterwards WriteBody writes one queued frame
// per call and OnFrame decodes what the peer sends.
//
// The channel stays open while the queue is empty. It finishes (BodySent
// reports true) once it is closing and every queued frame is written.
type WebSocket struct {
	*Base

	// OnMessage receives complete text and binary messages. Text payloads
	// have been checked to be valid UTF-8.
	OnMessage func(ws *WebSocket, opcode websocket.Opcode, payload []byte)

	// OnPing is called for each ping. When nil, a pong carrying the same
	// payload is queued.
	OnPing func(ws *WebSocket, payload []byte)

	// OnPong is called for each pong.
	OnPong func(ws *WebSocket, payload []byte)

	// OnClose is called when the peer sends a close frame.
	OnClose func(ws *WebSocket, code websocket.StatusCode, reason string)

	accept   string
	openedAt time.Time
	clock    clock.Face

	queue   [][]byte
	closing bool
	stopped bool

	inbound   []byte
	decoder   websocket.Decoder
	fragments []byte
	fragType  websocket.Opcode
	inMessage bool

	logger *slog.Logger
}

// NewWebSocket validates the client's Sec-WebSocket-Key and
// Sec-WebSocket-Version values and returns the 101 Switching Protocols
// response. The error matches websocket.ErrBadHandshake; callers answer
// with NewBadRequest.
func NewWebSocket(key, version string, opts ...Option) (*WebSocket, error) {
	if err := websocket.ValidateHandshake(key, version); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	b := newBase(101, "Switching Protocols", o)
	accept := websocket.AcceptKey(key)
	b.header.Set("Upgrade", "websocket")
	b.header.Set("Connection", "Upgrade")
	b.header.Set("Sec-WebSocket-Accept", accept)
	b.finish(o)

	return &WebSocket{
		Base:     b,
		accept:   accept,
		openedAt: o.clock.Now(),
		clock:    o.clock,
		decoder:  websocket.Decoder{MaxPayloadSize: o.maxPayload},
		logger:   o.loggerFor("response/websocket"),
	}, nil
}

// Accept returns the Sec-WebSocket-Accept value sent in the handshake.
func (ws *WebSocket) Accept() string {
	return ws.accept
}

// OpenedAt returns the time the upgrade was accepted.
func (ws *WebSocket) OpenedAt() time.Time {
	return ws.openedAt
}

// Pending returns the number of queued outgoing frames.
func (ws *WebSocket) Pending() int {
	return len(ws.queue)
}

// Closing reports whether the channel finishes once the queue drains.
func (ws *WebSocket) Closing() bool {
	return ws.closing
}

func (ws *WebSocket) enqueue(opcode websocket.Opcode, payload []byte) error {
	if ws.closing {
		return ErrClosing
	}
	ws.queue = append(ws.queue, websocket.EncodeFrame(opcode, payload))
	return nil
}

// SendText queues a text frame.
func (ws *WebSocket) SendText(payload []byte) error {
	if err := websocket.ValidText(payload); err != nil {
		return err
	}
	return ws.enqueue(websocket.TextFrame, payload)
}

// SendBinary queues a binary frame.
func (ws *WebSocket) SendBinary(payload []byte) error {
	return ws.enqueue(websocket.BinaryFrame, payload)
}

// SendPing queues a ping frame.
func (ws *WebSocket) SendPing(payload []byte) error {
	if len(payload) > websocket.MaxControlPayload {
		return websocket.ErrInvalidControl
	}
	return ws.enqueue(websocket.PingFrame, payload)
}

// SendPong queues a pong frame.
func (ws *WebSocket) SendPong(payload []byte) error {
	if len(payload) > websocket.MaxControlPayload {
		return websocket.ErrInvalidControl
	}
	return ws.enqueue(websocket.PongFrame, payload)
}

// SendClose queues a close frame and starts closing. Frames queued
// earlier are still written.
func (ws *WebSocket) SendClose(code websocket.StatusCode, reason string) error {
	if err := ws.enqueue(websocket.CloseFrame, websocket.NewClosePayload(code, reason)); err != nil {
		return err
	}
	ws.closing = true
	return nil
}

// CloseAfterDrain finishes the channel once the frames queued so far are
// written, without sending a close frame.
func (ws *WebSocket) CloseAfterDrain() {
	ws.closing = true
}

// WriteBody writes the next queued frame. With nothing queued it writes
// nothing, and completes the body when the channel is closing.
func (ws *WebSocket) WriteBody(c Conn) error {
	if ws.bodySent {
		return nil
	}
	if !ws.headerSent {
		return ErrHeaderNotSent
	}

	if len(ws.queue) == 0 {
		if ws.closing {
			ws.bodySent = true
			ws.logger.Debug("websocket closed", slog.Duration("open", ws.clock.Now().Sub(ws.openedAt)))
		}
		return nil
	}

	frame := ws.queue[0]
	ws.queue[0] = nil
	ws.queue = ws.queue[1:]
	if _, err := c.Write(frame); err != nil {
		return fmt.Errorf("response: write frame: %w", err)
	}
	return nil
}

// OnFrame buffers data read from the connection and handles every complete
// frame in it. Partial frames wait for the next call.
//
// A protocol violation, such as a frame without the mask bit, stops all
// further processing: the offending bytes are never delivered, a close
// frame carrying the matching status code is queued, and the error is
// returned so the caller can log it.
func (ws *WebSocket) OnFrame(c Conn, data []byte) error {
	if ws.bodySent || ws.stopped {
		return nil
	}
	ws.inbound = append(ws.inbound, data...)

	for len(ws.inbound) > 0 {
		f, n, err := ws.decoder.Decode(ws.inbound)
		if errors.Is(err, websocket.ErrShortFrame) {
			return nil
		}

		ws.logger.Debug("frame",
			slog.Bool("fin", f.Fin),
			slog.Bool("rsv1", f.RSV1),
			slog.Bool("rsv2", f.RSV2),
			slog.Bool("rsv3", f.RSV3),
			slog.String("opcode", f.Opcode.String()),
			slog.Bool("mask", f.Masked),
			slog.Any("length", f.Length),
		)

		if err != nil {
			return ws.fail(err)
		}
		ws.inbound = ws.inbound[n:]

		if err := ws.handle(f); err != nil {
			return ws.fail(err)
		}
		if ws.stopped {
			return nil
		}
	}

	ws.inbound = nil
	return nil
}

func (ws *WebSocket) handle(f websocket.Frame) error {
	switch f.Opcode {
	case websocket.TextFrame, websocket.BinaryFrame:
		if ws.inMessage {
			return fmt.Errorf("%w: new message before previous one finished", websocket.ErrProtocolViolation)
		}
		if !f.Fin {
			ws.inMessage = true
			ws.fragType = f.Opcode
			ws.fragments = f.Payload
			return nil
		}
		return ws.deliver(f.Opcode, f.Payload)

	case websocket.ContinuationFrame:
		if !ws.inMessage {
			return fmt.Errorf("%w: continuation without a message", websocket.ErrProtocolViolation)
		}
		ws.fragments = append(ws.fragments, f.Payload...)
		if limit := ws.decoder.MaxPayloadSize; limit > 0 && uint64(len(ws.fragments)) > limit {
			return fmt.Errorf("%w: message length %d exceeds maximum payload size %d", websocket.ErrMessageTooBig, len(ws.fragments), limit)
		}
		if !f.Fin {
			return nil
		}
		payload := ws.fragments
		ws.inMessage = false
		ws.fragments = nil
		return ws.deliver(ws.fragType, payload)

	case websocket.PingFrame:
		if ws.OnPing != nil {
			ws.OnPing(ws, f.Payload)
			return nil
		}
		if ws.closing {
			return nil
		}
		return ws.SendPong(f.Payload)

	case websocket.PongFrame:
		if ws.OnPong != nil {
			ws.OnPong(ws, f.Payload)
		}
		return nil

	case websocket.CloseFrame:
		code, reason, err := websocket.ParseClosePayload(f.Payload)
		if err != nil {
			return err
		}
		if ws.OnClose != nil {
			ws.OnClose(ws, code, reason)
		}
		// Nothing the peer sends after its close frame is read.
		ws.stopped = true
		ws.inbound = nil
		if ws.closing {
			return nil
		}
		if code == websocket.StatusNoStatusRcvd {
			code = websocket.StatusNormalClosure
		}
		return ws.SendClose(code, "")
	}
	return nil
}

func (ws *WebSocket) deliver(opcode websocket.Opcode, payload []byte) error {
	if opcode == websocket.TextFrame {
		if err := websocket.ValidText(payload); err != nil {
			return err
		}
	}
	if ws.OnMessage != nil {
		ws.OnMessage(ws, opcode, payload)
	}
	return nil
}

func (ws *WebSocket) fail(err error) error {
	ws.stopped = true
	ws.inbound = nil
	ws.fragments = nil

	code := websocket.CloseCodeFor(err)
	ws.logger.Warn("websocket protocol error", slog.Any("error", err), slog.Int("close", int(code)))

	if !ws.closing {
		if cerr := ws.SendClose(code, ""); cerr != nil {
			ws.logger.Debug("close frame not queued", slog.Any("error", cerr))
		}
	}
	return err
}

// Close abandons the channel. Queued frames are dropped and the body is
// complete.
func (ws *WebSocket) Close() error {
	ws.queue = nil
	ws.closing = true
	ws.bodySent = true
	return nil
}
