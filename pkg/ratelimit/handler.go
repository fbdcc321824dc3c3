// Package ratelimit sheds load before a request reaches its handler.
package ratelimit

import (
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/picatz/mghttpd/pkg/response"
	"github.com/picatz/mghttpd/pkg/server"
)

// Handler is a server middleware that rate limits requests
// based on the configured limiter.
type Handler struct {
	// Limiter is the rate limiter used to limit requests.
	Limiter *rate.Limiter

	// SetRetryAfter sets the Retry-After header on rate limited
	// responses. If false, the header is not set.
	SetRetryAfter bool

	// SetXLimit sets the X-RateLimit-* headers on admitted responses.
	SetXLimit bool

	// OnLimit is called when a request is rate limited.
	// If nil, a 429 Too Many Requests response is returned.
	OnLimit server.HandlerFunc

	// Next is the Next handler in the chain.
	Next server.HandlerFunc
}

// Serve implements server.Handler and rate limits requests based
// on the configured limiter.
func (h Handler) Serve(r *server.Request) response.Response {
	if h.Limiter == nil {
		return h.next(r)
	}

	// Check if the request is rate limited.
	if !h.Limiter.Allow() {
		if h.OnLimit != nil {
			return h.OnLimit(r)
		}

		var opts []response.Option
		if h.SetRetryAfter {
			// Retry-After takes whole seconds, rounded up so that a client
			// honouring it is admitted.
			//
			// https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Retry-After
			res := h.Limiter.Reserve()
			delay := res.Delay()
			res.Cancel()
			opts = append(opts, response.WithHeader("Retry-After", strconv.Itoa(int((delay+time.Second-1)/time.Second))))
		}
		return response.NewTooManyRequests(opts...)
	}

	resp := h.next(r)

	// Optional common rate limit headers.
	//
	// https://developer.okta.com/docs/reference/rl-best-practices/#check-your-rate-limits-with-okta-s-rate-limit-headers
	if h.SetXLimit && !resp.HeaderSent() {
		// The rate limit ceiling that is applicable for the current request.
		resp.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.Limiter.Burst()))
		// The number of requests left for the current rate-limit window.
		resp.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(h.Limiter.Tokens())))
	}

	return resp
}

func (h Handler) next(r *server.Request) response.Response {
	if h.Next != nil {
		return h.Next(r)
	}
	return response.NewNotFound()
}
