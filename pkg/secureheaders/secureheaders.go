// Package secureheaders adds common security headers to responses.
package secureheaders

import (
	"net/http"

	"github.com/picatz/mghttpd/pkg/response"
	"github.com/picatz/mghttpd/pkg/server"
)

// Handler is a middleware that sets common security headers on responses.
type Handler struct {
	// Next is the Next handler in the chain.
	Next server.HandlerFunc
}

// Serve implements server.Handler and sets the security headers.
func (h Handler) Serve(r *server.Request) response.Response {
	var resp response.Response
	if h.Next != nil {
		resp = h.Next(r)
	} else {
		resp = response.NewNotFound()
	}

	// An upgraded connection carries no document to protect.
	if resp.StatusCode() == http.StatusSwitchingProtocols || resp.HeaderSent() {
		return resp
	}

	Apply(resp.Header())
	return resp
}

// Apply sets the security headers on h, keeping any value already set.
func Apply(h *response.Header) {
	set := func(name, value string) {
		if !h.Has(name) {
			h.Set(name, value)
		}
	}

	// Set the X-Content-Type-Options header to prevent MIME type sniffing.
	//
	// https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/X-Content-Type-Options
	set("X-Content-Type-Options", "nosniff")

	// Set the X-Frame-Options header to prevent clickjacking.
	//
	// https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/X-Frame-Options
	set("X-Frame-Options", "DENY")

	// Set the Referrer-Policy header to prevent leaking the origin of cross-origin requests.
	//
	// https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Referrer-Policy
	set("Referrer-Policy", "same-origin")

	// Set the Content-Security-Policy header to prevent XSS attacks.
	//
	// https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Content-Security-Policy
	set("Content-Security-Policy", "default-src 'self'")

	// NOTE: Strict-Transport-Security is left out, the server does not
	//       speak TLS.
}
