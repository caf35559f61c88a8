package blockdev

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.img")
	if err := os.WriteFile(path, make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	dev, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer dev.Close()

	if dev.BlockSize() != 512 {
		t.Errorf("BlockSize = %d, want 512", dev.BlockSize())
	}
	if dev.Path() != path {
		t.Errorf("Path = %q, want %q", dev.Path(), path)
	}

	payload := []byte("boot sector contents")
	if _, err := dev.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := dev.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if _, err := dev.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(dev, got); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("read back %q, want %q", got, payload)
	}

	// Eject on a plain file handle is a no-op, not an error.
	if err := dev.Eject(); err != nil {
		t.Errorf("Eject = %v, want nil", err)
	}
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "absent.img"))
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("OpenFile error = %v, want ErrDeviceNotFound", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not exist", os.ErrNotExist, ErrDeviceNotFound},
		{"permission", os.ErrPermission, ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify("/dev/x", tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeBlockSize(t *testing.T) {
	if got := normalizeBlockSize(0); got != 512 {
		t.Errorf("normalizeBlockSize(0) = %d, want 512", got)
	}
	if got := normalizeBlockSize(4096); got != 4096 {
		t.Errorf("normalizeBlockSize(4096) = %d, want 4096", got)
	}
}
