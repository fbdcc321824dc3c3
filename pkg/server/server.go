package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/picatz/mghttpd/pkg/config"
	"github.com/picatz/mghttpd/pkg/response"
)

// Request is the part of an HTTP request handlers see.
type Request struct {
	Version    string
	Method     string
	Path       string
	Query      string
	Header     http.Header
	RemoteAddr string
}

// Handler produces the response for a request.
type Handler interface {
	Serve(r *Request) response.Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(r *Request) response.Response

// Serve calls f(r).
func (f HandlerFunc) Serve(r *Request) response.Response {
	return f(r)
}

// Conn is the response.Conn of a served connection.
type Conn struct {
	version string
	w       io.Writer
}

// NewConn returns a Conn writing to w for a request of the given version.
func NewConn(version string, w io.Writer) *Conn {
	return &Conn{version: version, w: w}
}

// Version returns the HTTP version of the request.
func (c *Conn) Version() string {
	return c.version
}

// Write writes b to the connection.
func (c *Conn) Write(b []byte) (int, error) {
	return c.w.Write(b)
}

// Server accepts connections and serves one request on each.
type Server struct {
	// Handler produces the responses.
	Handler Handler

	// Config supplies buffer sizes, timeouts and the listen address.
	Config config.Config

	// Logger is the logger used to log messages.
	Logger *slog.Logger
}

// New returns a server for the given handler and configuration.
func New(h Handler, cfg config.Config) *Server {
	return &Server{
		Handler: h,
		Config:  cfg,
		Logger:  slog.Default().WithGroup("server"),
	}
}

// ListenAndServe listens on Config.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Config.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes the
// listener and every open connection and waits for them to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()

	s.Logger.Info("listening", slog.String("addr", ln.Addr().String()))

	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ServeConn(ctx, raw)
		}()
	}
}

// ServeConn serves a single request on raw and closes it.
func (s *Server) ServeConn(ctx context.Context, raw net.Conn) {
	defer raw.Close()

	// Closing the connection is what unblocks a pending read or write
	// when the server shuts down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			raw.Close()
		case <-done:
		}
	}()

	logger := s.Logger.With(slog.String("remote", raw.RemoteAddr().String()))

	br := bufio.NewReaderSize(raw, s.readBufferSize())
	req, err := http.ReadRequest(br)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Debug("bad request", slog.Any("error", err))
			s.emit(logger, NewConn(response.DefaultVersion, raw), response.NewBadRequest(s.responseOptions()...))
		}
		return
	}

	r := &Request{
		Version:    req.Proto,
		Method:     req.Method,
		Path:       req.URL.Path,
		Query:      req.URL.RawQuery,
		Header:     req.Header,
		RemoteAddr: raw.RemoteAddr().String(),
	}
	conn := NewConn(req.Proto, raw)

	resp := s.dispatch(logger, r)
	defer resp.Close()

	logger.Info("request",
		slog.String("method", r.Method),
		slog.String("path", r.Path),
		slog.Int("status", resp.StatusCode()),
	)

	if up, ok := resp.(response.Upgraded); ok && resp.StatusCode() == http.StatusSwitchingProtocols {
		if err := resp.WriteHeader(conn); err != nil {
			logger.Debug("write failed", slog.Any("error", err))
			return
		}
		s.serveUpgraded(logger, raw, br, conn, up)
		return
	}

	s.emit(logger, conn, resp)
}

// emit writes the header block and then the body one turn at a time.
func (s *Server) emit(logger *slog.Logger, conn *Conn, resp response.Response) {
	if err := resp.WriteHeader(conn); err != nil {
		logger.Debug("write failed", slog.Any("error", err))
		return
	}
	for !resp.BodySent() {
		if err := resp.WriteBody(conn); err != nil {
			logger.Warn("body failed", slog.Any("error", err))
			return
		}
	}
}

// serveUpgraded alternates between writing queued frames and reading from
// the peer until the channel finishes or the peer goes away.
func (s *Server) serveUpgraded(logger *slog.Logger, raw net.Conn, br *bufio.Reader, conn *Conn, up response.Upgraded) {
	buf := make([]byte, s.readBufferSize())

	for !up.BodySent() {
		if up.Pending() > 0 || up.Closing() {
			if err := up.WriteBody(conn); err != nil {
				logger.Debug("write failed", slog.Any("error", err))
				return
			}
			continue
		}

		if s.Config.IdleTimeout > 0 {
			raw.SetReadDeadline(time.Now().Add(s.Config.IdleTimeout))
		}

		n, err := br.Read(buf)
		if n > 0 {
			if err := up.OnFrame(conn, buf[:n]); err != nil {
				logger.Warn("frame rejected", slog.Any("error", err))
			}
		}
		if err != nil {
			logger.Debug("upgraded connection ended", slog.Any("error", err))
			return
		}
	}
}

// dispatch calls the handler, answering 500 when it panics or returns nil.
func (s *Server) dispatch(logger *slog.Logger, r *Request) (resp response.Response) {
	defer func() {
		if v := recover(); v != nil {
			logger.Warn("handler panic", slog.Any("panic", v), slog.String("path", r.Path))
			resp = response.NewInternalError(s.responseOptions()...)
		}
	}()

	if s.Handler == nil {
		return response.NewNotFound(s.responseOptions()...)
	}
	if resp = s.Handler.Serve(r); resp == nil {
		return response.NewInternalError(s.responseOptions()...)
	}
	return resp
}

func (s *Server) responseOptions() []response.Option {
	var opts []response.Option
	if s.Config.ServerName != "" {
		opts = append(opts, response.WithServerName(s.Config.ServerName))
	}
	return opts
}

func (s *Server) readBufferSize() int {
	if s.Config.ReadBufferSize > 0 {
		return s.Config.ReadBufferSize
	}
	return 4096
}
