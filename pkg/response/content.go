package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// NewHTML returns a 200 OK response carrying body as text/html.
func NewHTML(body []byte, opts ...Option) *Base {
	o := newOptions(opts)
	b := newBase(200, "OK", o)
	b.header.Set("Content-Length", strconv.Itoa(len(body)))
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	b.finish(o)
	b.body = body
	return b
}

// NewRedirect returns a 301 response pointing at target. It has no body.
func NewRedirect(target string, opts ...Option) *Base {
	o := newOptions(opts)
	b := newBase(301, "Moved Permanently", o)
	b.header.Set("Location", target)
	b.finish(o)
	b.bodySent = true
	return b
}

// NewNotFound returns a 404 response with an empty body.
func NewNotFound(opts ...Option) *Base {
	o := newOptions(opts)
	b := newBase(404, "Not Found", o)
	b.finish(o)
	return b
}

// NewBadRequest returns a 400 response. It has no body.
func NewBadRequest(opts ...Option) *Base {
	o := newOptions(opts)
	b := newBase(400, "Bad Request", o)
	b.finish(o)
	b.bodySent = true
	return b
}

// NewInternalError returns a 500 response. It has no body.
func NewInternalError(opts ...Option) *Base {
	o := newOptions(opts)
	b := newBase(500, "Inner Error", o)
	b.finish(o)
	b.bodySent = true
	return b
}

// NewTooManyRequests returns a 429 response. It has no body.
func NewTooManyRequests(opts ...Option) *Base {
	o := newOptions(opts)
	b := newBase(429, "Too Many Requests", o)
	b.finish(o)
	b.bodySent = true
	return b
}

// JSON is a response whose body is the JSON encoding of a value. The value
// is encoded when the body is written, so encoding errors surface from
// WriteBody rather than from the constructor.
type JSON struct {
	*Base

	value any
}

// NewJSON returns a 200 OK response that will encode v as application/json.
func NewJSON(v any, opts ...Option) *JSON {
	o := newOptions(opts)
	b := newBase(200, "OK", o)
	b.header.Set("Content-Type", "application/json")
	b.finish(o)
	return &JSON{Base: b, value: v}
}

// WriteBody encodes the value and writes it. Non-ASCII characters and
// HTML-sensitive characters are written literally.
func (j *JSON) WriteBody(c Conn) error {
	if j.bodySent {
		return nil
	}
	if !j.headerSent {
		return ErrHeaderNotSent
	}
	j.bodySent = true

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(j.value); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	// Encode terminates the document with a newline.
	body := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	if _, err := c.Write(body); err != nil {
		return fmt.Errorf("response: write body: %w", err)
	}
	return nil
}
