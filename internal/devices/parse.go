package devices

import (
	"bufio"
	"io"
	"strings"
)

// isVirtualName reports whether a /sys/block entry names a virtual device
// that can never be a flash target.
func isVirtualName(name string) bool {
	for _, prefix := range []string{"loop", "ram", "zram", "dm-", "md", "sr", "fd", "nbd"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// parseMountTable reads a Linux mount table (/proc/self/mounts format) and
// returns source device to mount point mappings. Mount points with escaped
// characters are decoded.
func parseMountTable(r io.Reader) map[string][]string {
	mounts := make(map[string][]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "/dev/") {
			continue
		}
		mounts[fields[0]] = append(mounts[fields[0]], UnescapeMountPath(fields[1]))
	}
	return mounts
}

// UnescapeMountPath decodes the \040 style escapes the kernel uses for
// spaces and other special characters in mount paths.
func UnescapeMountPath(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			b.WriteByte((s[i+1]-'0')*64 + (s[i+2]-'0')*8 + (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// mountpointsFor collects the mount points of a device and its partitions
// from a parsed mount table.
func mountpointsFor(mounts map[string][]string, devPath string) []string {
	var mps []string
	for dev, points := range mounts {
		if PartitionOf(dev, devPath) {
			mps = append(mps, points...)
		}
	}
	return mps
}

// PartitionOf reports whether dev names devPath itself or one of its
// partitions. A bare prefix match is not enough: /dev/sdab1 starts with
// /dev/sda but belongs to a different disk. Partition suffixes are digits
// (/dev/sda1), or a p or s separator plus digits when the disk name itself
// ends in a digit (/dev/mmcblk0p1, /dev/disk2s1).
func PartitionOf(dev, devPath string) bool {
	if dev == devPath {
		return true
	}
	rest, ok := strings.CutPrefix(dev, devPath)
	if !ok || rest == "" {
		return false
	}
	if last := devPath[len(devPath)-1]; last >= '0' && last <= '9' {
		if rest[0] != 'p' && rest[0] != 's' {
			return false
		}
		rest = rest[1:]
	}
	if rest == "" {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return false
		}
	}
	return true
}

// parseDiskutilInfo parses the "Key:   Value" lines that diskutil info
// prints for a device.
func parseDiskutilInfo(r io.Reader) map[string]string {
	info := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key != "" && val != "" {
			info[key] = val
		}
	}
	return info
}

// extractParenBytes pulls the exact byte count out of a diskutil size string
// like "31.9 GB (31914983424 Bytes) (exactly 62333952 512-Byte-Units)".
func extractParenBytes(s string) int64 {
	open := strings.Index(s, "(")
	for open >= 0 {
		rest := s[open+1:]
		close := strings.Index(rest, ")")
		if close < 0 {
			return 0
		}
		inner := rest[:close]
		if n, ok := strings.CutSuffix(inner, " Bytes"); ok {
			var v int64
			for _, c := range n {
				if c < '0' || c > '9' {
					v = 0
					break
				}
				v = v*10 + int64(c-'0')
			}
			if v > 0 {
				return v
			}
		}
		next := strings.Index(rest[close:], "(")
		if next < 0 {
			return 0
		}
		open += 1 + close + next
	}
	return 0
}

// parseDiskutilList extracts whole-disk identifiers (disk0, disk2, ...)
// from the plain text output of "diskutil list physical".
func parseDiskutilList(r io.Reader) []string {
	var disks []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "/dev/disk") {
			continue
		}
		name := strings.TrimPrefix(line, "/dev/")
		if idx := strings.IndexAny(name, " ("); idx >= 0 {
			name = strings.TrimSpace(name[:idx])
		}
		if name != "" {
			disks = append(disks, name)
		}
	}
	return disks
}

// parseBSDMounts parses "dev on /mount/point (fstype, opts)" lines from the
// BSD mount command.
func parseBSDMounts(r io.Reader) map[string][]string {
	mounts := make(map[string][]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		onIdx := strings.Index(line, " on ")
		if onIdx < 0 || !strings.HasPrefix(line, "/dev/") {
			continue
		}
		dev := line[:onIdx]
		rest := line[onIdx+4:]
		if parIdx := strings.LastIndex(rest, " ("); parIdx >= 0 {
			rest = rest[:parIdx]
		}
		mounts[dev] = append(mounts[dev], rest)
	}
	return mounts
}
