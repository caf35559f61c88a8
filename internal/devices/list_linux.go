//go:build linux

package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const sysBlock = "/sys/block"

func list() ([]Destination, error) {
	entries, err := os.ReadDir(sysBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sysBlock, err)
	}

	mounts := readMountTable()

	var dests []Destination
	for _, e := range entries {
		name := e.Name()
		if isVirtualName(name) {
			continue
		}
		dest, ok := readSysBlock(name, mounts)
		if !ok {
			continue
		}
		dests = append(dests, dest)
	}
	return dests, nil
}

// readSysBlock assembles a Destination from one /sys/block entry. Devices
// that vanish mid-read or that host the running system are skipped.
func readSysBlock(name string, mounts map[string][]string) (Destination, bool) {
	dir := filepath.Join(sysBlock, name)
	devPath := "/dev/" + name

	sectors, err := readSysInt(filepath.Join(dir, "size"))
	if err != nil || sectors == 0 {
		// Zero size means no media (empty card reader slot).
		return Destination{}, false
	}

	mps := mountpointsFor(mounts, devPath)
	for _, mp := range mps {
		if mp == "/" {
			return Destination{}, false
		}
	}

	blockSize, err := readSysInt(filepath.Join(dir, "queue", "logical_block_size"))
	if err != nil || blockSize <= 0 {
		blockSize = 512
	}
	removable, _ := readSysInt(filepath.Join(dir, "removable"))

	return Destination{
		Path: devPath,
		Name: deviceLabel(dir, name),
		// The size attribute is always in 512-byte sectors regardless
		// of the logical block size.
		Size:        sectors * 512,
		BlockSize:   int(blockSize),
		Removable:   removable == 1,
		Mountpoints: mps,
		Bus:         busOf(dir),
	}, true
}

func deviceLabel(dir, fallback string) string {
	vendor := readSysString(filepath.Join(dir, "device", "vendor"))
	model := readSysString(filepath.Join(dir, "device", "model"))
	label := strings.TrimSpace(vendor + " " + model)
	if label == "" {
		return fallback
	}
	return label
}

// busOf infers the transport from the sysfs device symlink target.
func busOf(dir string) string {
	target, err := os.Readlink(filepath.Join(dir, "device"))
	if err != nil {
		return ""
	}
	switch {
	case strings.Contains(target, "/usb"):
		return "usb"
	case strings.Contains(target, "/mmc"):
		return "sd"
	case strings.Contains(target, "/nvme"):
		return "nvme"
	case strings.Contains(target, "/ata"):
		return "ata"
	}
	return ""
}

func readMountTable() map[string][]string {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return nil
	}
	defer f.Close()
	return parseMountTable(f)
}

func readSysInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func readSysString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
