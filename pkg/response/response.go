package response

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/exp/slog"

	"github.com/picatz/mghttpd/pkg/clock"
	"github.com/picatz/mghttpd/pkg/cookies"
	"github.com/picatz/mghttpd/pkg/mime"
)

// DefaultServerName is sent in the Server header unless overridden.
const DefaultServerName = "mghttpd/v2.12"

// DefaultVersion is used when the connection reports no protocol version.
const DefaultVersion = "HTTP/1.1"

var (
	// ErrHeaderNotSent is returned by WriteBody when called before WriteHeader.
	ErrHeaderNotSent = errors.New("response: body emitted before header")

	// ErrFileAccess is matched by errors from NewFile and File reads when
	// the file is missing or unreadable.
	ErrFileAccess = errors.New("response: file access")

	// ErrSerialization is returned by JSON.WriteBody when the value cannot
	// be encoded.
	ErrSerialization = errors.New("response: serialization failure")
)

// FileAccessError records the path and cause of a file access failure.
// It matches ErrFileAccess and the underlying error with errors.Is.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return "response: file access: " + e.Path + ": " + e.Err.Error()
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}

func (e *FileAccessError) Is(target error) bool {
	return target == ErrFileAccess
}

// Conn is the part of a client connection a response writes to.
type Conn interface {
	// Version is the HTTP version of the request, e.g. "HTTP/1.1".
	Version() string

	// Write sends bytes to the client.
	Write(b []byte) (int, error)
}

// Response is the contract every response kind implements.
type Response interface {
	// Header returns the header fields. They may be changed until
	// WriteHeader is called.
	Header() *Header

	// StatusCode returns the numeric status.
	StatusCode() int

	// Reason returns the reason phrase of the status line.
	Reason() string

	// WriteHeader writes the status line and header block. It must be
	// called exactly once; a second call repeats the write.
	WriteHeader(c Conn) error

	// WriteBody writes the next unit of the body. Once BodySent reports
	// true it writes nothing.
	WriteBody(c Conn) error

	// OnFrame receives raw bytes read from an upgraded connection.
	OnFrame(c Conn, data []byte) error

	// HeaderSent reports whether WriteHeader has been called.
	HeaderSent() bool

	// BodySent reports whether the body is complete.
	BodySent() bool

	// Close releases any resource held by the response. It is safe to
	// call at any time, including after the body is complete.
	Close() error
}

// Upgraded is implemented by responses that keep the connection after the
// header block and exchange frames with the peer.
type Upgraded interface {
	Response

	// Pending returns the number of queued outgoing frames.
	Pending() int

	// Closing reports whether the channel will finish once the queue drains.
	Closing() bool
}

type options struct {
	code       int
	reason     string
	header     Header
	serverName string
	clock      clock.Face
	logger     *slog.Logger
	chunkSize  int
	mime       mime.Lookup
	maxPayload uint64
}

// Option customises a response at construction.
type Option func(*options)

// WithStatus overrides the status code and reason phrase of the response.
func WithStatus(code int, reason string) Option {
	return func(o *options) {
		o.code = code
		o.reason = reason
	}
}

// WithHeader adds a header field. Fields fixed by the response kind, such
// as Content-Length, take precedence.
func WithHeader(name, value string) Option {
	return func(o *options) {
		o.header.Set(name, value)
	}
}

// WithServerName sets the Server header value.
func WithServerName(name string) Option {
	return func(o *options) {
		o.serverName = name
	}
}

// WithClock sets the clock used for the Date header and timestamps.
func WithClock(c clock.Face) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger used by streaming responses.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithChunkSize bounds each chunk read by a file response.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithMIME sets the content type lookup used by file responses.
func WithMIME(l mime.Lookup) Option {
	return func(o *options) {
		o.mime = l
	}
}

// WithMaxPayload bounds inbound WebSocket messages.
func WithMaxPayload(n uint64) Option {
	return func(o *options) {
		o.maxPayload = n
	}
}

// DefaultChunkSize is the file chunk bound used without WithChunkSize.
const DefaultChunkSize = 8192

func newOptions(opts []Option) *options {
	o := &options{
		serverName: DefaultServerName,
		clock:      clock.System{},
		chunkSize:  DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.chunkSize <= 0 {
		o.chunkSize = DefaultChunkSize
	}
	if o.mime == nil {
		o.mime = mime.Default()
	}
	return o
}

func (o *options) loggerFor(group string) *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return slog.Default().WithGroup(group)
}

// Base is the fixed-body response every other kind builds on. It carries
// the status, header, cookies and the header/body emission state.
type Base struct {
	code    int
	reason  string
	header  Header
	cookies []string
	body    []byte

	headerSent bool
	bodySent   bool
}

// newBase starts a response with the caller supplied header fields. The
// response kind adds its own fields and then calls finish.
func newBase(code int, reason string, o *options) *Base {
	b := &Base{code: code, reason: reason}
	if o.code != 0 {
		b.code = o.code
		b.reason = o.reason
	}
	o.header.Each(b.header.Set)
	return b
}

// finish injects the Server and Date fields unless already present.
func (b *Base) finish(o *options) {
	b.header.setDefault("Server", o.serverName)
	b.header.setDefault("Date", o.clock.Now().UTC().Format(http.TimeFormat))
}

// Header returns the header fields.
func (b *Base) Header() *Header {
	return &b.header
}

// StatusCode returns the numeric status.
func (b *Base) StatusCode() int {
	return b.code
}

// Reason returns the reason phrase.
func (b *Base) Reason() string {
	return b.reason
}

// SetCookie adds a Set-Cookie line. Unlike other fields, any number of
// cookies may be set.
func (b *Base) SetCookie(c *cookies.Cookie, opts ...cookies.Option) error {
	if b.headerSent {
		return fmt.Errorf("response: cookie %q set after header was sent", c.Name)
	}
	v, err := c.Header(opts...)
	if err != nil {
		return err
	}
	b.cookies = append(b.cookies, v)
	return nil
}

// HeaderSent reports whether WriteHeader has been called.
func (b *Base) HeaderSent() bool {
	return b.headerSent
}

// BodySent reports whether the body is complete.
func (b *Base) BodySent() bool {
	return b.bodySent
}

// AppendHeader appends the wire form of the header block to dst:
//
//	"<version> <code> <reason>\r\n" ("<Name>: <Value>\r\n")* "\r\n"
func (b *Base) AppendHeader(dst []byte, version string) []byte {
	if version == "" {
		version = DefaultVersion
	}
	dst = append(dst, version...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(b.code), 10)
	dst = append(dst, ' ')
	dst = append(dst, b.reason...)
	dst = append(dst, "\r\n"...)
	dst = b.header.AppendTo(dst)
	for _, c := range b.cookies {
		dst = append(dst, "Set-Cookie: "...)
		dst = append(dst, c...)
		dst = append(dst, "\r\n"...)
	}
	return append(dst, "\r\n"...)
}

// WriteHeader writes the header block to c.
func (b *Base) WriteHeader(c Conn) error {
	b.header.freeze()
	b.headerSent = true
	if _, err := c.Write(b.AppendHeader(nil, c.Version())); err != nil {
		return fmt.Errorf("response: write header: %w", err)
	}
	return nil
}

// WriteBody writes the whole fixed body in one go and completes.
func (b *Base) WriteBody(c Conn) error {
	if b.bodySent {
		return nil
	}
	if !b.headerSent {
		return ErrHeaderNotSent
	}
	b.bodySent = true
	if len(b.body) == 0 {
		return nil
	}
	if _, err := c.Write(b.body); err != nil {
		return fmt.Errorf("response: write body: %w", err)
	}
	return nil
}

// OnFrame ignores inbound bytes; only upgraded responses read frames.
func (b *Base) OnFrame(c Conn, data []byte) error {
	return nil
}

// Close is a no-op for responses that hold no resources.
func (b *Base) Close() error {
	return nil
}
