package imagesource

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Container magic numbers, longest first so prefixes cannot shadow.
var (
	magicXz   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLz4  = []byte{0x04, 0x22, 0x4d, 0x18}
	magicZip  = []byte{0x50, 0x4b, 0x03, 0x04}
	magicGzip = []byte{0x1f, 0x8b}
)

// decompress sniffs the container by magic bytes and wraps f in the matching
// decoder. Unrecognized data is passed through as a raw image. The returned
// total is the decompressed size when the container records one, else 0.
func decompress(f *os.File, rawSize int64) (io.ReadCloser, int64, error) {
	var magic [6]byte
	n, err := f.ReadAt(magic[:], 0)
	if err != nil && err != io.EOF {
		return nil, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	head := magic[:n]

	switch {
	case bytes.HasPrefix(head, magicXz):
		r, err := xz.NewReader(f)
		if err != nil {
			return nil, 0, fmt.Errorf("bad xz stream: %w", err)
		}
		return readCloser{r, f}, 0, nil

	case bytes.HasPrefix(head, magicZstd):
		d, err := zstd.NewReader(f)
		if err != nil {
			return nil, 0, fmt.Errorf("bad zstd stream: %w", err)
		}
		return readCloser{d.IOReadCloser(), f}, 0, nil

	case bytes.HasPrefix(head, magicLz4):
		return readCloser{lz4.NewReader(f), f}, 0, nil

	case bytes.HasPrefix(head, magicZip):
		return zipEntry(f, rawSize)

	case bytes.HasPrefix(head, magicGzip):
		r, err := kgzip.NewReader(f)
		if err != nil {
			return nil, 0, fmt.Errorf("bad gzip stream: %w", err)
		}
		return readCloser{r, f}, gzipSize(f, rawSize), nil
	}

	return f, rawSize, nil
}

// zipEntry opens the single image file inside a zip archive. Archives with
// more than one file are ambiguous and rejected.
func zipEntry(f *os.File, rawSize int64) (io.ReadCloser, int64, error) {
	zr, err := zip.NewReader(f, rawSize)
	if err != nil {
		return nil, 0, fmt.Errorf("bad zip archive: %w", err)
	}

	var entry *zip.File
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		if entry != nil {
			return nil, 0, fmt.Errorf("zip archive holds more than one file: %w", ErrImageFormat)
		}
		entry = zf
	}
	if entry == nil {
		return nil, 0, fmt.Errorf("zip archive holds no files: %w", ErrImageFormat)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open zip entry %s: %w", entry.Name, err)
	}
	return readCloser{rc, f}, int64(entry.UncompressedSize64), nil
}

// gzipSize reads the ISIZE trailer. It is the decompressed size modulo 2^32,
// so for images over 4 GiB it is only a progress estimate.
func gzipSize(f *os.File, rawSize int64) int64 {
	if rawSize < 4 {
		return 0
	}
	var trailer [4]byte
	if _, err := f.ReadAt(trailer[:], rawSize-4); err != nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint32(trailer[:]))
}

// readCloser pairs a decoder stream with the file it reads from so both get
// closed.
type readCloser struct {
	r io.Reader
	f *os.File
}

func (rc readCloser) Read(p []byte) (int, error) { return rc.r.Read(p) }

func (rc readCloser) Close() error {
	if c, ok := rc.r.(io.Closer); ok {
		if err := c.Close(); err != nil {
			rc.f.Close()
			return err
		}
	}
	return rc.f.Close()
}
