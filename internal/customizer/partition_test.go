package customizer

import (
	"testing"

	diskfs "github.com/diskfs/go-diskfs"
)

// A FAT32 superfloppy's boot sector looks enough like an MBR that the table
// parse succeeds with four empty entries; the probe must still land on the
// whole-device filesystem.
func TestFindBootPartitionSuperfloppy(t *testing.T) {
	img := newBootImage(t)

	d, err := diskfs.Open(img, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		t.Fatalf("failed to open image: %v", err)
	}
	defer d.Close()

	region, fs, err := findBootPartition(d)
	if err != nil {
		t.Fatalf("findBootPartition failed: %v", err)
	}
	if fs == nil {
		t.Fatal("no filesystem returned")
	}
	if region.index != 0 {
		t.Errorf("partition index = %d, want 0 (whole device)", region.index)
	}
	if region.start != 0 || region.end != 36*1024*1024 {
		t.Errorf("region = [%d, %d), want the whole device", region.start, region.end)
	}
}
