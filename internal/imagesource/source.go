// Package imagesource abstracts where an OS image comes from (local file,
// HTTP download) and what container it sits in (raw, xz, gzip, zstd, lz4,
// zip). Open returns a stream of raw decompressed image bytes; callers never
// see the container.
package imagesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrImageFormat means the image container is malformed or unsupported.
// Not retryable with the same input.
var ErrImageFormat = errors.New("unsupported image format")

// Source is a provider of raw image bytes.
type Source interface {
	// Open yields the decompressed image stream and its total size in
	// bytes. The size is 0 when the container does not record it; callers
	// must treat a zero total as unknown.
	Open(ctx context.Context) (io.ReadCloser, int64, error)
	// String identifies the source for logs and error messages.
	String() string
}

// LocalFile is an image file on the local filesystem, optionally compressed.
type LocalFile struct {
	Path string
}

func (l LocalFile) String() string { return l.Path }

func (l LocalFile) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open image: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat image: %w", err)
	}

	rc, total, err := decompress(f, st.Size())
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return rc, total, nil
}
