package server

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/picatz/mghttpd/pkg/response"
)

type route struct {
	methods []string
	handler HandlerFunc
}

// Mux dispatches requests by exact path or by path prefix. An exact route
// wins over any prefix route, and the longest matching prefix wins among
// prefix routes. The same path may be registered both ways.
type Mux struct {
	exact    map[string]route
	prefix   map[string]route
	prefixes []string

	// NotFound answers requests no route matches. When nil, an empty
	// 404 response is returned.
	NotFound HandlerFunc

	// Options are applied to the 404 and 400 responses the Mux builds
	// itself.
	Options []response.Option
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{
		exact:  make(map[string]route),
		prefix: make(map[string]route),
	}
}

// Handle registers h for requests whose path equals path. With no methods
// every method is accepted.
func (m *Mux) Handle(path string, h HandlerFunc, methods ...string) {
	m.exact[path] = route{methods: methods, handler: h}
}

// HandlePrefix registers h for every path starting with prefix.
func (m *Mux) HandlePrefix(prefix string, h HandlerFunc, methods ...string) {
	if _, ok := m.prefix[prefix]; !ok {
		m.prefixes = append(m.prefixes, prefix)
		slices.SortFunc(m.prefixes, func(a, b string) bool {
			return len(a) > len(b)
		})
	}
	m.prefix[prefix] = route{methods: methods, handler: h}
}

// Serve implements Handler.
func (m *Mux) Serve(r *Request) response.Response {
	rt, ok := m.match(r.Path)
	if !ok {
		if m.NotFound != nil {
			return m.NotFound(r)
		}
		return response.NewNotFound(m.Options...)
	}

	if len(rt.methods) > 0 && !slices.Contains(rt.methods, r.Method) {
		return response.NewBadRequest(m.Options...)
	}
	return rt.handler(r)
}

func (m *Mux) match(path string) (route, bool) {
	if rt, ok := m.exact[path]; ok {
		return rt, true
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(path, p) {
			return m.prefix[p], true
		}
	}
	return route{}, false
}
