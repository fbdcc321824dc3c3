package secureheaders_test

import (
	"testing"

	"github.com/picatz/mghttpd/pkg/response"
	"github.com/picatz/mghttpd/pkg/secureheaders"
	"github.com/picatz/mghttpd/pkg/server"
)

func TestHandler(t *testing.T) {
	handler := secureheaders.Handler{
		Next: func(r *server.Request) response.Response {
			return response.NewHTML([]byte("ok"), response.WithHeader("X-Frame-Options", "SAMEORIGIN"))
		},
	}

	resp := handler.Serve(&server.Request{Path: "/"})

	if got := resp.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options to be %q, got %q", "nosniff", got)
	}

	if got := resp.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Fatalf("expected handler value to be kept, got %q", got)
	}
}

func TestHandlerSkipsUpgrade(t *testing.T) {
	handler := secureheaders.Handler{
		Next: func(r *server.Request) response.Response {
			ws, err := response.NewWebSocket("dGhlIHNhbXBsZSBub25jZQ==", "13")
			if err != nil {
				t.Fatal(err)
			}
			return ws
		},
	}

	resp := handler.Serve(&server.Request{Path: "/live/"})

	if resp.Header().Has("Content-Security-Policy") {
		t.Fatalf("expected upgrade response to be left alone")
	}
}
