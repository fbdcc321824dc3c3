// Command mghttpd serves a small set of demo routes exercising every kind
// of response: HTML, JSON, redirects, static files and a WebSocket channel.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/exp/slog"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/time/rate"

	"github.com/picatz/mghttpd/pkg/config"
	"github.com/picatz/mghttpd/pkg/cookies"
	"github.com/picatz/mghttpd/pkg/ratelimit"
	"github.com/picatz/mghttpd/pkg/response"
	"github.com/picatz/mghttpd/pkg/secureheaders"
	"github.com/picatz/mghttpd/pkg/server"
	"github.com/picatz/mghttpd/pkg/websocket"
)

const index = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>mghttpd</title></head>
<body>
<h1>首页</h1>
<ul>
<li><a href="/json/">json</a></li>
<li><a href="/redir/">redirect</a></li>
<li><a href="/print/hello/1">print</a></li>
</ul>
</body>
</html>
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv(os.LookupEnv)
	if err != nil {
		return err
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "address to listen on")
	flag.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "value of the Server header")
	flag.IntVar(&cfg.MaxTransferUnit, "mtu", cfg.MaxTransferUnit, "bytes read from disk per file chunk")
	flag.StringVar(&cfg.StaticRoot, "static", cfg.StaticRoot, "directory served under /static/")
	flag.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "idle timeout of WebSocket connections")
	flag.Float64Var(&cfg.RateLimit, "rate", cfg.RateLimit, "requests per second admitted, 0 disables limiting")
	flag.IntVar(&cfg.RateBurst, "burst", cfg.RateBurst, "rate limiter burst size")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(handler(cfg), cfg)
	return srv.ListenAndServe(ctx)
}

// handler builds the route table wrapped in the configured middleware.
func handler(cfg config.Config) server.Handler {
	opts := []response.Option{
		response.WithServerName(cfg.ServerName),
		response.WithChunkSize(cfg.MaxTransferUnit),
		response.WithMaxPayload(cfg.MaxPayloadSize),
	}

	mux := server.NewMux()
	mux.Options = opts

	mux.Handle("/", func(r *server.Request) response.Response {
		resp := response.NewHTML([]byte(index), opts...)
		visits := &cookies.Cookie{Name: "visited", Value: "1"}
		if err := resp.SetCookie(visits, cookies.WithPath("/"), cookies.WithHttpOnly(true)); err != nil {
			slog.Default().Warn("cookie rejected", slog.Any("error", err))
		}
		return resp
	}, "GET")

	mux.Handle("/redir/", func(r *server.Request) response.Response {
		return response.NewRedirect("http://www.baidu.com", opts...)
	}, "GET")

	mux.Handle("/json/", func(r *server.Request) response.Response {
		return response.NewJSON(map[string]any{"id": 111, "name": "杭州"}, opts...)
	}, "GET")

	mux.HandlePrefix("/print/", func(r *server.Request) response.Response {
		msg, id, ok := strings.Cut(strings.TrimPrefix(r.Path, "/print/"), "/")
		if !ok || msg == "" {
			return response.NewNotFound(opts...)
		}
		n, err := strconv.Atoi(id)
		if err != nil {
			return response.NewNotFound(opts...)
		}
		return response.NewHTML([]byte(msg+strconv.Itoa(n)), opts...)
	}, "GET", "POST")

	mux.Handle("/live/", func(r *server.Request) response.Response {
		if !upgradeRequested(r.Header) {
			return response.NewBadRequest(opts...)
		}
		ws, err := response.NewWebSocket(r.Header.Get("Sec-WebSocket-Key"), r.Header.Get("Sec-WebSocket-Version"), opts...)
		if err != nil {
			return response.NewBadRequest(opts...)
		}
		greet(ws)
		ws.OnMessage = func(ws *response.WebSocket, opcode websocket.Opcode, payload []byte) {
			var err error
			if opcode == websocket.TextFrame {
				err = ws.SendText(payload)
			} else {
				err = ws.SendBinary(payload)
			}
			if err != nil {
				slog.Default().Debug("echo dropped", slog.Any("error", err))
			}
		}
		return ws
	}, "GET")

	mux.HandlePrefix("/static/", func(r *server.Request) response.Response {
		return static(cfg.StaticRoot, strings.TrimPrefix(r.Path, "/static/"), opts)
	}, "GET")

	var h server.Handler = mux
	if cfg.RateLimit > 0 {
		h = ratelimit.Handler{
			Limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
			SetRetryAfter: true,
			SetXLimit:     true,
			Next:          h.Serve,
		}
	}
	return secureheaders.Handler{Next: h.Serve}
}

// upgradeRequested reports whether the request asks to switch to the
// WebSocket protocol.
func upgradeRequested(h http.Header) bool {
	return httpguts.HeaderValuesContainsToken(h["Upgrade"], "websocket") &&
		httpguts.HeaderValuesContainsToken(h["Connection"], "Upgrade")
}

// greet queues the frames every new channel receives.
func greet(ws *response.WebSocket) {
	// Sizes straddle the 7-bit and 16-bit length encodings.
	texts := []string{
		"hello world!",
		strings.Repeat("x", 126),
		strings.Repeat("y", 127),
		strings.Repeat("z", 300),
	}
	for _, t := range texts {
		ws.SendText([]byte(t))
	}
	ws.SendBinary([]byte(strings.Repeat("z", 300)))
}

// static answers with the file at name below root, or with 404 when it
// cannot be found and 500 when it cannot be read.
func static(root, name string, opts []response.Option) response.Response {
	full := filepath.Join(root, filepath.FromSlash(path.Clean("/"+name)))

	f, err := response.NewFile(full, opts...)
	if err == nil {
		return f
	}
	if errors.Is(err, fs.ErrNotExist) {
		return response.NewNotFound(opts...)
	}
	slog.Default().Warn("static file", slog.String("path", full), slog.Any("error", err))
	return response.NewInternalError(opts...)
}
