package customizer

import (
	"fmt"

	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
)

// bootRegion locates the boot partition on the device in bytes. The flasher
// uses it to know which region legitimately changed during customization.
type bootRegion struct {
	// index is the 1-based partition number, 0 for a superfloppy device
	// formatted without a partition table.
	index int
	start int64
	// end is exclusive.
	end int64
}

// findBootPartition scans the partition table (GPT or MBR) for the first
// FAT32 filesystem, then falls back to probing the whole device. The
// fallback is not just for devices without a table: a FAT32 superfloppy's
// boot sector carries the 0x55AA signature, so it parses as an MBR whose
// four entries are all empty.
func findBootPartition(d *disk.Disk) (bootRegion, filesystem.FileSystem, error) {
	if table, err := d.GetPartitionTable(); err == nil {
		for i, p := range table.GetPartitions() {
			if p.GetSize() == 0 {
				continue
			}
			fs, err := d.GetFilesystem(i + 1)
			if err != nil || fs.Type() != filesystem.TypeFat32 {
				continue
			}
			start := p.GetStart()
			return bootRegion{index: i + 1, start: start, end: start + p.GetSize()}, fs, nil
		}
	}

	fs, err := d.GetFilesystem(0)
	if err != nil || fs.Type() != filesystem.TypeFat32 {
		return bootRegion{}, nil, fmt.Errorf("no FAT boot partition found: %w", ErrUnsupportedFilesystem)
	}
	return bootRegion{index: 0, start: 0, end: d.Size}, fs, nil
}
