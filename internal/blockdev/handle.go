// Package blockdev acquires exclusive, writable raw handles to block
// devices. All platform variance (unmounting, locking, elevation) lives
// here; callers get back a handle whose writes bypass OS caching so that a
// later read-back reflects the actual media state.
package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/jgarman/cardflash/internal/devices"
)

var (
	// ErrDeviceNotFound means the destination disappeared or never existed.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceBusy means another process holds the device. Retryable
	// after user action (closing the other holder).
	ErrDeviceBusy = errors.New("device busy")
	// ErrPermissionDenied means raw access needs elevation. Not retryable
	// without remediation (run elevated, authenticate).
	ErrPermissionDenied = errors.New("permission denied")
)

// Handle is an exclusive raw handle to a flash destination.
type Handle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer

	// Sync flushes outstanding writes to the media.
	Sync() error
	// BlockSize is the device's logical block size; writes are padded to
	// multiples of it.
	BlockSize() int
	// Path is the platform-native identifier the handle was opened from.
	Path() string
	// Eject makes a best-effort attempt to eject/flush the media after a
	// successful flash. Safe to ignore errors.
	Eject() error
}

// Device is the file-descriptor backed Handle used by every platform.
type Device struct {
	f         *os.File
	path      string
	blockSize int

	// release undoes platform locking (for example Windows volume locks).
	release func() error
	// eject is the platform eject action, nil when unsupported.
	eject func() error
}

func (d *Device) Read(p []byte) (int, error)  { return d.f.Read(p) }
func (d *Device) Write(p []byte) (int, error) { return d.f.Write(p) }
func (d *Device) Sync() error                 { return d.f.Sync() }
func (d *Device) BlockSize() int              { return d.blockSize }
func (d *Device) Path() string                { return d.path }

func (d *Device) Seek(off int64, whence int) (int64, error) {
	return d.f.Seek(off, whence)
}

// Close releases the handle and any platform locks.
func (d *Device) Close() error {
	err := d.f.Close()
	if d.release != nil {
		if rerr := d.release(); err == nil {
			err = rerr
		}
	}
	return err
}

// Eject flushes and ejects the media when the platform supports it.
func (d *Device) Eject() error {
	if d.eject == nil {
		return nil
	}
	return d.eject()
}

// Open acquires an exclusive raw handle to dst, force-unmounting any mounted
// partitions first. Error kinds are distinguishable with errors.Is:
// ErrDeviceBusy, ErrPermissionDenied, ErrDeviceNotFound.
func Open(dst devices.Destination) (*Device, error) {
	return open(dst)
}

// OpenFile opens a regular file as a flash destination. Used for image-file
// targets and for tests; block size is the conventional 512.
func OpenFile(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, classify(path, err)
	}
	return &Device{f: f, path: path, blockSize: 512}, nil
}

// normalizeBlockSize substitutes the conventional sector size when the
// enumerator could not determine one.
func normalizeBlockSize(n int) int {
	if n <= 0 {
		return 512
	}
	return n
}

// classify maps an OS error to the taxonomy the caller acts on.
func classify(path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOENT):
		return fmt.Errorf("%s: %w", path, ErrDeviceNotFound)
	case errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%s: %w", path, ErrPermissionDenied)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%s: %w", path, ErrDeviceBusy)
	default:
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
}
