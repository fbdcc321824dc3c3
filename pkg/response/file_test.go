package response_test

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/picatz/mghttpd/pkg/mime"
	"github.com/picatz/mghttpd/pkg/response"
)

func writeFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path, data
}

func TestFileChunks(t *testing.T) {
	const chunkSize = 16

	for _, size := range []int{0, 1, chunkSize - 1, chunkSize, chunkSize + 1, 3 * chunkSize, 3*chunkSize + 5} {
		t.Run(strconv.Itoa(size), func(t *testing.T) {
			path, data := writeFile(t, "data.bin", size)

			resp, err := response.NewFile(path, response.WithChunkSize(chunkSize))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Close()

			if got := resp.Header().Get("Content-Length"); got != strconv.Itoa(size) {
				t.Fatalf("expected Content-Length %d, got %q", size, got)
			}

			conn := &recorder{}
			if err := resp.WriteHeader(conn); err != nil {
				t.Fatal(err)
			}
			conn.reset()

			calls := 0
			for !resp.BodySent() {
				if err := resp.WriteBody(conn); err != nil {
					t.Fatal(err)
				}
				calls++
			}

			if !bytes.Equal(conn.Bytes(), data) {
				t.Fatalf("expected %d body bytes to match the file, got %d", size, len(conn.Bytes()))
			}

			chunks := (size + chunkSize - 1) / chunkSize
			if len(conn.writes) != chunks {
				t.Fatalf("expected %d chunks, got %d", chunks, len(conn.writes))
			}

			for i, w := range conn.writes {
				expected := chunkSize
				if i == chunks-1 && size%chunkSize != 0 {
					expected = size % chunkSize
				}
				if len(w) != expected {
					t.Fatalf("chunk %d: expected %d bytes, got %d", i, expected, len(w))
				}
			}

			// The body completes one call after the last chunk.
			if calls != chunks+1 {
				t.Fatalf("expected %d calls, got %d", chunks+1, calls)
			}

			conn.reset()
			resp.WriteBody(conn)
			if len(conn.writes) != 0 {
				t.Fatalf("expected no writes after the body completed")
			}
		})
	}
}

func TestFileContentType(t *testing.T) {
	t.Run("known", func(t *testing.T) {
		path, _ := writeFile(t, "index.html", 10)

		resp, err := response.NewFile(path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Close()

		if got := resp.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
			t.Fatalf("expected html content type, got %q", got)
		}
	})

	t.Run("custom table", func(t *testing.T) {
		path, _ := writeFile(t, "notes.mgdoc", 10)

		resp, err := response.NewFile(path, response.WithMIME(mime.NewTable(map[string]string{
			".mgdoc": "text/x-mgdoc",
		})))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Close()

		if got := resp.Header().Get("Content-Type"); got != "text/x-mgdoc" {
			t.Fatalf("expected custom content type, got %q", got)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		path, _ := writeFile(t, "blob", 10)

		resp, err := response.NewFile(path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Close()

		if got := resp.Header().Get("Content-Type"); got != "application/octet-stream" {
			t.Fatalf("expected fallback content type, got %q", got)
		}
	})
}

func TestFileAccessErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := response.NewFile(filepath.Join(t.TempDir(), "missing.txt"))

		if !errors.Is(err, response.ErrFileAccess) {
			t.Fatalf("expected ErrFileAccess, got %v", err)
		}

		if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("expected fs.ErrNotExist, got %v", err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		_, err := response.NewFile(t.TempDir())

		if !errors.Is(err, response.ErrFileAccess) {
			t.Fatalf("expected ErrFileAccess, got %v", err)
		}
	})
}

func TestFileAbandoned(t *testing.T) {
	path, _ := writeFile(t, "data.bin", 100)

	resp, err := response.NewFile(path, response.WithChunkSize(10))
	if err != nil {
		t.Fatal(err)
	}

	conn := &recorder{}
	resp.WriteHeader(conn)
	resp.WriteBody(conn)

	if err := resp.Close(); err != nil {
		t.Fatalf("expected the handle to be released, got %v", err)
	}

	if err := resp.Close(); err != nil {
		t.Fatalf("expected a second close to be a no-op, got %v", err)
	}

	chunk, done, err := resp.NextChunk()
	if err != nil || !done || chunk != nil {
		t.Fatalf("expected an exhausted sequence after close, got %q %t %v", chunk, done, err)
	}
}
