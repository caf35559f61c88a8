//go:build linux

package customizer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	diskfs "github.com/diskfs/go-diskfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// openBoot prefers a kernel vfat mount when running as root and the
// partition device node exists; otherwise it falls back to the userspace
// FAT driver, which needs nothing but the block device itself.
func openBoot(devPath string) (bootRegion, bootFS, error) {
	if os.Geteuid() == 0 {
		if region, boot, err := openMountBoot(devPath); err == nil {
			return region, boot, nil
		} else {
			log.WithError(err).Debug("kernel mount unavailable, using userspace FAT driver")
		}
	}
	return newDiskfsBoot(devPath)
}

func openMountBoot(devPath string) (bootRegion, bootFS, error) {
	region, err := probeBoot(devPath)
	if err != nil {
		return bootRegion{}, nil, err
	}
	node := partitionNode(devPath, region.index)
	if _, err := os.Stat(node); err != nil {
		return bootRegion{}, nil, fmt.Errorf("no partition node %s: %w", node, err)
	}
	boot, err := newMountBoot(node)
	if err != nil {
		return bootRegion{}, nil, err
	}
	return region, boot, nil
}

// probeBoot locates the boot partition without holding the device open.
func probeBoot(devPath string) (bootRegion, error) {
	d, err := diskfs.Open(devPath, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return bootRegion{}, fmt.Errorf("failed to open %s: %w", devPath, err)
	}
	defer d.Close()
	region, _, err := findBootPartition(d)
	return region, err
}

// partitionNode derives the partition device node from the disk node:
// /dev/sdb -> /dev/sdb1, /dev/mmcblk0 -> /dev/mmcblk0p1.
func partitionNode(devPath string, index int) string {
	if index == 0 {
		return devPath
	}
	last := devPath[len(devPath)-1]
	if last >= '0' && last <= '9' {
		return devPath + "p" + strconv.Itoa(index)
	}
	return devPath + strconv.Itoa(index)
}

// mountBoot edits the partition through a temporary kernel mount.
type mountBoot struct {
	dir string
}

func newMountBoot(node string) (*mountBoot, error) {
	dir, err := os.MkdirTemp("", "cardflash-boot-")
	if err != nil {
		return nil, err
	}
	if err := unix.Mount(node, dir, "vfat", 0, ""); err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("failed to mount %s: %w", node, err)
	}
	return &mountBoot{dir: dir}, nil
}

func (b *mountBoot) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (b *mountBoot) WriteFile(name string, data []byte) error {
	return os.WriteFile(filepath.Join(b.dir, name), data, 0o644)
}

func (b *mountBoot) Mkdir(name string) error {
	err := os.Mkdir(filepath.Join(b.dir, name), 0o755)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	return err
}

func (b *mountBoot) Close() error {
	err := unix.Unmount(b.dir, 0)
	os.Remove(b.dir)
	return err
}
