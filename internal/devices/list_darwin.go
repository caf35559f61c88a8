//go:build darwin

package devices

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

func list() ([]Destination, error) {
	out, err := exec.Command("diskutil", "list", "physical").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run diskutil list: %w", err)
	}

	mounts := readBSDMounts()

	var dests []Destination
	for _, disk := range parseDiskutilList(bytes.NewReader(out)) {
		dest, ok := diskutilInfo(disk, mounts)
		if !ok {
			continue
		}
		dests = append(dests, dest)
	}
	return dests, nil
}

// diskutilInfo builds a Destination from "diskutil info diskN" output. The
// boot disk and media-less readers are skipped.
func diskutilInfo(disk string, mounts map[string][]string) (Destination, bool) {
	out, err := exec.Command("diskutil", "info", disk).Output()
	if err != nil {
		return Destination{}, false
	}
	info := parseDiskutilInfo(bytes.NewReader(out))

	size := extractParenBytes(info["Disk Size"])
	if size == 0 {
		size = extractParenBytes(info["Total Size"])
	}
	if size == 0 {
		return Destination{}, false
	}

	mps := mountpointsFor(mounts, "/dev/"+disk)
	for _, mp := range mps {
		if mp == "/" || strings.HasPrefix(mp, "/System/Volumes") {
			return Destination{}, false
		}
	}

	name := info["Device / Media Name"]
	if name == "" {
		name = disk
	}
	blockSize, _ := strconv.Atoi(strings.Fields(info["Device Block Size"] + " 0")[0])

	return Destination{
		// The raw node skips the buffer cache, which matters for both
		// write throughput and verification.
		Path:        "/dev/r" + disk,
		Name:        name,
		Size:        size,
		BlockSize:   blockSize,
		Removable:   strings.Contains(info["Removable Media"], "Removable"),
		Mountpoints: mps,
		Bus:         strings.ToLower(info["Protocol"]),
	}, true
}

func readBSDMounts() map[string][]string {
	out, err := exec.Command("mount").Output()
	if err != nil {
		return nil
	}
	return parseBSDMounts(bytes.NewReader(out))
}
