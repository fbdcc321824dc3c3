package response

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/exp/slog"
)

// File streams a file from disk in chunks of at most the configured
// transfer unit. The file handle is owned by the response: it is closed
// when the last chunk has been read, on a read error, or by Close when the
// response is abandoned early.
type File struct {
	*Base

	path      string
	f         *os.File
	size      int64
	read      int64
	chunkSize int
	done      bool
	logger    *slog.Logger
}

// NewFile opens path and returns a 200 OK response streaming it. A missing
// or unreadable file yields an error matching ErrFileAccess; callers are
// expected to answer with NewNotFound or NewInternalError instead.
func NewFile(path string, opts ...Option) (*File, error) {
	o := newOptions(opts)

	f, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &FileAccessError{Path: path, Err: err}
	}
	if info.IsDir() {
		f.Close()
		return nil, &FileAccessError{Path: path, Err: errors.New("is a directory")}
	}

	contentType, ok := o.mime.Lookup(path)
	if !ok {
		contentType = "application/octet-stream"
	}

	b := newBase(200, "OK", o)
	b.header.Set("Content-Type", contentType)
	b.header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	b.finish(o)

	return &File{
		Base:      b,
		path:      path,
		f:         f,
		size:      info.Size(),
		chunkSize: o.chunkSize,
		logger:    o.loggerFor("response/file"),
	}, nil
}

// Size returns the file size reported at construction.
func (r *File) Size() int64 {
	return r.size
}

// NextChunk reads the next chunk of the file. It returns done once the file
// is exhausted, at which point the handle has been released. The sequence
// cannot be restarted.
func (r *File) NextChunk() ([]byte, bool, error) {
	if r.done {
		return nil, true, nil
	}

	chunk := make([]byte, r.chunkSize)
	n, err := io.ReadFull(r.f, chunk)
	if n > 0 {
		// A short read ends the file; the next call observes io.EOF.
		r.read += int64(n)
		return chunk[:n], false, nil
	}

	r.release()
	if err == io.EOF {
		r.logger.Debug("file sent", slog.String("path", r.path), slog.Any("bytes", r.read))
		return nil, true, nil
	}
	return nil, true, &FileAccessError{Path: r.path, Err: err}
}

// WriteBody writes one chunk per call. The call after the last chunk writes
// nothing and completes the body.
func (r *File) WriteBody(c Conn) error {
	if r.bodySent {
		return nil
	}
	if !r.headerSent {
		return ErrHeaderNotSent
	}

	chunk, done, err := r.NextChunk()
	if done {
		r.bodySent = true
		return err
	}

	if _, err := c.Write(chunk); err != nil {
		return fmt.Errorf("response: write body: %w", err)
	}
	return nil
}

// Close releases the file handle if the response is abandoned before the
// file was fully sent.
func (r *File) Close() error {
	if r.done {
		return nil
	}
	r.logger.Debug("file abandoned", slog.String("path", r.path), slog.Any("bytes", r.read), slog.Any("size", r.size))
	return r.release()
}

func (r *File) release() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.f.Close()
}
