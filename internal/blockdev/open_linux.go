//go:build linux && !udisks

package blockdev

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/jgarman/cardflash/internal/devices"
)

// open on Linux takes the direct path: force-unmount every mounted partition
// of the device, then open it with O_EXCL|O_DIRECT. O_EXCL on a block device
// makes the kernel refuse mounts and other exclusive opens for as long as the
// handle is held; O_DIRECT bypasses the page cache so verification reads see
// the media. The udisks build tag swaps this for a helper-mediated open that
// works without root.
func open(dst devices.Destination) (*Device, error) {
	if err := unmountAll(dst.Path); err != nil {
		return nil, err
	}

	fd, err := unix.Open(dst.Path, unix.O_RDWR|unix.O_EXCL|unix.O_DIRECT|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, classify(dst.Path, err)
	}

	blockSize, err := unix.IoctlGetInt(fd, unix.BLKSSZGET)
	if err != nil || blockSize <= 0 {
		// Not a block device (or an odd one); fall back to the
		// conventional sector size.
		blockSize = 512
	}

	path := dst.Path
	return &Device{
		f:         os.NewFile(uintptr(fd), path),
		path:      path,
		blockSize: blockSize,
		eject: func() error {
			return exec.Command("eject", path).Run()
		},
	}, nil
}

// unmountAll unmounts every mount whose source is exactly the device or one
// of its partitions. A busy mount gets a lazy detach so the flash can
// proceed.
func unmountAll(devPath string) error {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return fmt.Errorf("failed to read mount table: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !devices.PartitionOf(fields[0], devPath) {
			continue
		}
		target := devices.UnescapeMountPath(fields[1])
		if err := unix.Unmount(target, 0); err != nil {
			if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
				return fmt.Errorf("failed to unmount %s: %w", target, err)
			}
		}
	}
	return scanner.Err()
}
