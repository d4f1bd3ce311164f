// Package storage reads raw hospital files from, and writes canonical
// files to, blob storage: a local directory or an S3 bucket.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value blob store. Keys use '/' separators.
type Store interface {
	// Get opens key for reading. size is -1 when unknown.
	Get(ctx context.Context, key string) (body io.ReadCloser, size int64, err error)
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Driver() string
}

// Drivers.
const (
	DriverFS = "fs"
	DriverS3 = "s3"
)

// Options selects and configures a driver.
type Options struct {
	Driver string
	Root   string // fs
	Bucket string // s3
	Region string // s3
}

// New opens the store named by opts.Driver.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverFS:
		return NewFSStore(opts.Root)
	case DriverS3:
		return NewS3Store(ctx, opts.Bucket, opts.Region)
	}
	return nil, errors.Errorf("unknown storage driver %q", opts.Driver)
}

// Join builds a key from a prefix and a name.
func Join(prefix, name string) string {
	return path.Join(prefix, name)
}

// NewGzipReader creates a gzip decompression reader. useStdGzip selects the
// single-threaded klauspost/compress/gzip decoder instead of pgzip.
func NewGzipReader(r io.Reader, useStdGzip bool) (io.ReadCloser, error) {
	if useStdGzip {
		return gzip.NewReader(r)
	}
	return pgzip.NewReader(r)
}

// Open is Get with transparent decompression of ".gz" keys. onProgress,
// if set, receives bytes read from the store (compressed) and the object
// size.
func Open(ctx context.Context, s Store, key string, useStdGzip bool, onProgress func(read, total int64)) (io.ReadCloser, error) {
	body, size, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var r io.Reader = body
	if onProgress != nil {
		r = &progressReader{reader: body, total: size, callback: onProgress}
	}
	if !strings.EqualFold(path.Ext(key), ".gz") {
		return readCloser{Reader: r, closers: []io.Closer{body}}, nil
	}

	gz, err := NewGzipReader(r, useStdGzip)
	if err != nil {
		body.Close()
		return nil, errors.Wrapf(err, "gzip %s", key)
	}
	return readCloser{Reader: gz, closers: []io.Closer{gz, body}}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc readCloser) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// progressReader wraps a reader and reports cumulative bytes read.
type progressReader struct {
	reader   io.Reader
	total    int64
	read     int64
	callback func(read, total int64)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read += int64(n)
	r.callback(r.read, r.total)
	return n, err
}
