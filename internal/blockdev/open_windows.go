//go:build windows

package blockdev

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/windows"

	"github.com/jgarman/cardflash/internal/devices"
)

// Volume FSCTLs are not exposed by the windows package.
const (
	fsctlAllowExtendedDasdIO = 0x00090083
	fsctlLockVolume          = 0x00090018
	fsctlDismountVolume      = 0x00090020
	ioctlStorageEjectMedia   = 0x002d4808
)

// open on Windows locks and dismounts every volume that lives on the disk,
// then opens the physical drive unbuffered. The volume locks are held for
// the lifetime of the handle so the filesystem driver cannot remount and
// scribble over the image mid-write.
func open(dst devices.Destination) (*Device, error) {
	locks, err := lockVolumes(dst.Mountpoints)
	if err != nil {
		return nil, err
	}
	release := func() error {
		var first error
		for _, h := range locks {
			if cerr := windows.CloseHandle(h); first == nil {
				first = cerr
			}
		}
		return first
	}

	h, err := openDrive(dst.Path)
	if err != nil {
		release()
		return nil, err
	}

	return &Device{
		f:         os.NewFile(uintptr(h), dst.Path),
		path:      dst.Path,
		blockSize: normalizeBlockSize(dst.BlockSize),
		release:   release,
		eject: func() error {
			var ret uint32
			return windows.DeviceIoControl(h, ioctlStorageEjectMedia,
				nil, 0, nil, 0, &ret, nil)
		},
	}, nil
}

// lockVolumes opens each mounted volume of the disk and takes an exclusive
// lock plus a dismount. On any failure the already-acquired locks are
// released.
func lockVolumes(mountpoints []string) ([]windows.Handle, error) {
	var locks []windows.Handle
	for _, mp := range mountpoints {
		h, err := lockVolume(mp)
		if err != nil {
			for _, held := range locks {
				windows.CloseHandle(held)
			}
			return nil, err
		}
		locks = append(locks, h)
	}
	return locks, nil
}

func lockVolume(mountpoint string) (windows.Handle, error) {
	volPath := `\\.\` + strings.TrimSuffix(mountpoint, `\`)
	h, err := createFile(volPath, windows.FILE_ATTRIBUTE_NORMAL)
	if err != nil {
		return 0, classifyWindows(volPath, err)
	}

	var ret uint32
	for _, code := range []uint32{fsctlAllowExtendedDasdIO, fsctlLockVolume, fsctlDismountVolume} {
		if err := windows.DeviceIoControl(h, code, nil, 0, nil, 0, &ret, nil); err != nil {
			windows.CloseHandle(h)
			if code == fsctlLockVolume {
				return 0, fmt.Errorf("%s: %w", volPath, ErrDeviceBusy)
			}
			return 0, fmt.Errorf("failed to dismount %s: %w", volPath, err)
		}
	}
	return h, nil
}

// openDrive opens \\.\PhysicalDriveN unbuffered and write-through so every
// write hits the media and the verify pass reads it back, not the cache.
func openDrive(path string) (windows.Handle, error) {
	h, err := createFile(path,
		windows.FILE_FLAG_NO_BUFFERING|windows.FILE_FLAG_WRITE_THROUGH)
	if err != nil {
		return 0, classifyWindows(path, err)
	}
	return h, nil
}

func createFile(path string, flags uint32) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	return windows.CreateFile(p,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, flags, 0)
}

func classifyWindows(path string, err error) error {
	switch {
	case errors.Is(err, windows.ERROR_FILE_NOT_FOUND), errors.Is(err, windows.ERROR_PATH_NOT_FOUND):
		return fmt.Errorf("%s: %w", path, ErrDeviceNotFound)
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return fmt.Errorf("%s: %w", path, ErrPermissionDenied)
	case errors.Is(err, windows.ERROR_SHARING_VIOLATION), errors.Is(err, windows.ERROR_BUSY):
		return fmt.Errorf("%s: %w", path, ErrDeviceBusy)
	default:
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
}
