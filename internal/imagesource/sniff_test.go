package imagesource

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

func imageData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 253)
	}
	return data
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// openAll opens the source and reads the whole stream.
func openAll(t *testing.T, path string) ([]byte, int64) {
	t.Helper()
	rc, total, err := LocalFile{Path: path}.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return data, total
}

func TestOpenRaw(t *testing.T) {
	want := imageData(64 * 1024)
	path := writeTemp(t, want)

	got, total := openAll(t, path)
	if !bytes.Equal(got, want) {
		t.Error("raw image bytes differ")
	}
	if total != int64(len(want)) {
		t.Errorf("total = %d, want %d", total, len(want))
	}
}

func TestOpenXz(t *testing.T) {
	want := imageData(64 * 1024)
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, total := openAll(t, writeTemp(t, buf.Bytes()))
	if !bytes.Equal(got, want) {
		t.Error("xz image bytes differ")
	}
	if total != 0 {
		t.Errorf("total = %d, want 0 (unknown)", total)
	}
}

func TestOpenGzip(t *testing.T) {
	want := imageData(64 * 1024)
	var buf bytes.Buffer
	w := kgzip.NewWriter(&buf)
	if _, err := w.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, total := openAll(t, writeTemp(t, buf.Bytes()))
	if !bytes.Equal(got, want) {
		t.Error("gzip image bytes differ")
	}
	if total != int64(len(want)) {
		t.Errorf("total = %d, want %d from the gzip trailer", total, len(want))
	}
}

func TestOpenZstd(t *testing.T) {
	want := imageData(64 * 1024)
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, _ := openAll(t, writeTemp(t, buf.Bytes()))
	if !bytes.Equal(got, want) {
		t.Error("zstd image bytes differ")
	}
}

func TestOpenLz4(t *testing.T) {
	want := imageData(64 * 1024)
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, _ := openAll(t, writeTemp(t, buf.Bytes()))
	if !bytes.Equal(got, want) {
		t.Error("lz4 image bytes differ")
	}
}

func TestOpenZipSingleEntry(t *testing.T) {
	want := imageData(64 * 1024)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("disk.img")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	got, total := openAll(t, writeTemp(t, buf.Bytes()))
	if !bytes.Equal(got, want) {
		t.Error("zip image bytes differ")
	}
	if total != int64(len(want)) {
		t.Errorf("total = %d, want %d from the zip directory", total, len(want))
	}
}

func TestOpenZipMultipleEntriesRejected(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"a.img", "b.img"} {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte("data")); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	_, _, err := LocalFile{Path: writeTemp(t, buf.Bytes())}.Open(context.Background())
	if !errors.Is(err, ErrImageFormat) {
		t.Fatalf("Open error = %v, want ErrImageFormat", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, _, err := LocalFile{Path: filepath.Join(t.TempDir(), "nope.img")}.Open(context.Background())
	if err == nil {
		t.Fatal("Open of missing file succeeded")
	}
}
