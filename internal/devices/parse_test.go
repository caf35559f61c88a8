package devices

import (
	"reflect"
	"strings"
	"testing"
)

func TestIsVirtualName(t *testing.T) {
	virtual := []string{"loop0", "ram1", "zram0", "dm-3", "md127", "sr0", "fd0", "nbd2"}
	for _, name := range virtual {
		if !isVirtualName(name) {
			t.Errorf("isVirtualName(%q) = false, want true", name)
		}
	}
	real := []string{"sda", "sdb", "mmcblk0", "nvme0n1", "vda"}
	for _, name := range real {
		if isVirtualName(name) {
			t.Errorf("isVirtualName(%q) = true, want false", name)
		}
	}
}

func TestParseMountTable(t *testing.T) {
	table := strings.Join([]string{
		"/dev/sda1 / ext4 rw,relatime 0 0",
		"/dev/sdb1 /media/CARD vfat rw 0 0",
		`/dev/sdb2 /media/My\040Card vfat rw 0 0`,
		"tmpfs /tmp tmpfs rw 0 0",
	}, "\n")

	mounts := parseMountTable(strings.NewReader(table))

	if got := mounts["/dev/sda1"]; !reflect.DeepEqual(got, []string{"/"}) {
		t.Errorf("sda1 mounts = %v", got)
	}
	if got := mounts["/dev/sdb2"]; !reflect.DeepEqual(got, []string{"/media/My Card"}) {
		t.Errorf("sdb2 mounts = %v, want unescaped space", got)
	}
	if _, ok := mounts["tmpfs"]; ok {
		t.Error("non-device mounts should be skipped")
	}
}

func TestMountpointsFor(t *testing.T) {
	mounts := map[string][]string{
		"/dev/sdb1": {"/media/BOOT"},
		"/dev/sdb2": {"/media/root"},
		"/dev/sdc1": {"/media/other"},
	}
	got := mountpointsFor(mounts, "/dev/sdb")
	if len(got) != 2 {
		t.Errorf("mountpointsFor = %v, want the two sdb partitions", got)
	}
}

func TestMountpointsForIgnoresPrefixCollisions(t *testing.T) {
	mounts := parseMountTable(strings.NewReader(strings.Join([]string{
		"/dev/sda1 /mnt/card vfat rw 0 0",
		"/dev/sdab1 /srv/other ext4 rw 0 0",
	}, "\n")))

	got := mountpointsFor(mounts, "/dev/sda")
	if !reflect.DeepEqual(got, []string{"/mnt/card"}) {
		t.Errorf("mountpointsFor = %v, want only /mnt/card (sdab is a different disk)", got)
	}
}

func TestPartitionOf(t *testing.T) {
	tests := []struct {
		dev, devPath string
		want         bool
	}{
		{"/dev/sda", "/dev/sda", true},
		{"/dev/sda1", "/dev/sda", true},
		{"/dev/sda12", "/dev/sda", true},
		{"/dev/sdab1", "/dev/sda", false},
		{"/dev/sdb1", "/dev/sda", false},
		{"/dev/mmcblk0p1", "/dev/mmcblk0", true},
		{"/dev/mmcblk01", "/dev/mmcblk0", false},
		{"/dev/mmcblk0", "/dev/mmcblk0", true},
		{"/dev/disk2s1", "/dev/disk2", true},
		{"/dev/disk21", "/dev/disk2", false},
		{"/dev/nvme0n1p2", "/dev/nvme0n1", true},
		{"/dev/sda1p", "/dev/sda", false},
		{"/dev/mmcblk0p", "/dev/mmcblk0", false},
	}
	for _, tt := range tests {
		if got := PartitionOf(tt.dev, tt.devPath); got != tt.want {
			t.Errorf("PartitionOf(%q, %q) = %v, want %v", tt.dev, tt.devPath, got, tt.want)
		}
	}
}

func TestParseDiskutilInfo(t *testing.T) {
	out := `   Device Identifier:         disk2
   Device Node:               /dev/disk2
   Device / Media Name:       SD Card Reader
   Removable Media:           Removable
   Protocol:                  USB
   Disk Size:                 31.9 GB (31914983424 Bytes) (exactly 62333952 512-Byte-Units)
   Device Block Size:         512 Bytes
`
	info := parseDiskutilInfo(strings.NewReader(out))
	if info["Device / Media Name"] != "SD Card Reader" {
		t.Errorf("media name = %q", info["Device / Media Name"])
	}
	if info["Protocol"] != "USB" {
		t.Errorf("protocol = %q", info["Protocol"])
	}
	if got := extractParenBytes(info["Disk Size"]); got != 31914983424 {
		t.Errorf("disk size = %d, want 31914983424", got)
	}
}

func TestExtractParenBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"31.9 GB (31914983424 Bytes) (exactly 62333952 512-Byte-Units)", 31914983424},
		{"(100 Bytes)", 100},
		{"no sizes here", 0},
		{"(not a number Bytes)", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := extractParenBytes(tt.in); got != tt.want {
			t.Errorf("extractParenBytes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDiskutilList(t *testing.T) {
	out := `/dev/disk0 (internal, physical):
   #:                       TYPE NAME                    SIZE       IDENTIFIER
   0:      GUID_partition_scheme                        *500.3 GB   disk0

/dev/disk2 (external, physical):
   #:                       TYPE NAME                    SIZE       IDENTIFIER
   0:     FDisk_partition_scheme                        *31.9 GB    disk2
`
	got := parseDiskutilList(strings.NewReader(out))
	want := []string{"disk0", "disk2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseDiskutilList = %v, want %v", got, want)
	}
}

func TestParseBSDMounts(t *testing.T) {
	out := `/dev/disk1s1 on / (apfs, local, journaled)
/dev/disk2s1 on /Volumes/BOOT (msdos, local, nodev)
devfs on /dev (devfs, local, nobrowse)
`
	mounts := parseBSDMounts(strings.NewReader(out))
	if got := mounts["/dev/disk2s1"]; !reflect.DeepEqual(got, []string{"/Volumes/BOOT"}) {
		t.Errorf("disk2s1 mounts = %v", got)
	}
	if _, ok := mounts["devfs"]; ok {
		t.Error("non-device mounts should be skipped")
	}
}
