// Package mime maps file paths to content types by extension.
//
// A Table is built once at startup and never mutated afterwards, so it can
// be shared by every response without locking.
package mime

import (
	stdmime "mime"
	"path/filepath"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Lookup maps a path to a content type. The boolean is false when the
// extension is unknown.
type Lookup interface {
	Lookup(path string) (string, bool)
}

// builtin covers the types the server hands out most often, independent
// of the host's mime.types files.
var builtin = map[string]string{
	".css":   "text/css; charset=utf-8",
	".gif":   "image/gif",
	".htm":   "text/html; charset=utf-8",
	".html":  "text/html; charset=utf-8",
	".ico":   "image/x-icon",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".js":    "text/javascript; charset=utf-8",
	".json":  "application/json",
	".mp4":   "video/mp4",
	".pdf":   "application/pdf",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".txt":   "text/plain; charset=utf-8",
	".wasm":  "application/wasm",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".xml":   "text/xml; charset=utf-8",
}

// Table is a read-only extension to content type table.
type Table struct {
	types map[string]string
}

// NewTable returns a table holding the built-in types overlaid with extra.
// Extension keys are matched case-insensitively and may omit the dot.
func NewTable(extra map[string]string) *Table {
	types := make(map[string]string, len(builtin)+len(extra))
	for ext, typ := range builtin {
		types[ext] = typ
	}
	for ext, typ := range extra {
		types[normalize(ext)] = typ
	}
	return &Table{types: types}
}

var defaultTable = NewTable(nil)

// Default returns the process-wide table.
func Default() *Table {
	return defaultTable
}

// Lookup returns the content type for the extension of path. Unknown
// extensions fall back to the host's registered types.
func (t *Table) Lookup(path string) (string, bool) {
	ext := normalize(filepath.Ext(path))
	if ext == "" || ext == "." {
		return "", false
	}
	if typ, ok := t.types[ext]; ok {
		return typ, true
	}
	if typ := stdmime.TypeByExtension(ext); typ != "" {
		return typ, true
	}
	return "", false
}

// Extensions returns the extensions known to the table, sorted.
func (t *Table) Extensions() []string {
	exts := maps.Keys(t.types)
	slices.Sort(exts)
	return exts
}

func normalize(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
