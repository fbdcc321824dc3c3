package response

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

var headerSanitizer = strings.NewReplacer("\r", " ", "\n", " ")

// Header is an ordered set of header fields. Names are case-sensitive as
// supplied; setting an existing name replaces its value in place, so the
// serialized order is the order in which names were first set.
//
// The zero value is an empty header ready to use. Once the response starts
// emitting, the header is frozen and further changes are ignored.
type Header struct {
	names  []string
	values map[string]string
	frozen bool
}

// Set sets the value of the named field. Names that are not valid HTTP
// tokens are ignored, and CR or LF in the value is replaced by a space.
func (h *Header) Set(name, value string) {
	if h.frozen || !httpguts.ValidHeaderFieldName(name) {
		return
	}
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[name]; !ok {
		h.names = append(h.names, name)
	}
	h.values[name] = headerSanitizer.Replace(value)
}

// setDefault sets the field only when it is not present yet.
func (h *Header) setDefault(name, value string) {
	if !h.Has(name) {
		h.Set(name, value)
	}
}

// Get returns the value of the named field, or "" when absent.
func (h *Header) Get(name string) string {
	return h.values[name]
}

// Lookup returns the value of the named field and whether it is present.
func (h *Header) Lookup(name string) (string, bool) {
	v, ok := h.values[name]
	return v, ok
}

// Has reports whether the named field is present.
func (h *Header) Has(name string) bool {
	_, ok := h.values[name]
	return ok
}

// Del removes the named field.
func (h *Header) Del(name string) {
	if h.frozen || !h.Has(name) {
		return
	}
	delete(h.values, name)
	for i, n := range h.names {
		if n == name {
			h.names = append(h.names[:i], h.names[i+1:]...)
			break
		}
	}
}

// Len returns the number of fields.
func (h *Header) Len() int {
	return len(h.names)
}

// Each calls fn for every field in order.
func (h *Header) Each(fn func(name, value string)) {
	for _, name := range h.names {
		fn(name, h.values[name])
	}
}

// AppendTo appends every field as "Name: Value\r\n" to dst.
func (h *Header) AppendTo(dst []byte) []byte {
	for _, name := range h.names {
		dst = append(dst, name...)
		dst = append(dst, ": "...)
		dst = append(dst, h.values[name]...)
		dst = append(dst, "\r\n"...)
	}
	return dst
}

func (h *Header) freeze() {
	h.frozen = true
}
