// Package devices enumerates block devices that can serve as flash
// destinations. Enumeration is a snapshot; devices can appear or vanish at
// any time, so callers must treat a Destination as a hint and handle the
// open failing later.
package devices

import "sort"

// Destination describes one candidate flash target.
type Destination struct {
	// Path is the platform-native raw device identifier
	// (/dev/sdb, /dev/rdisk2, \\.\PhysicalDrive2).
	Path string `json:"path"`
	// Name is a human-readable label, usually vendor and model.
	Name string `json:"name"`
	// Size is the device capacity in bytes, 0 when unknown.
	Size int64 `json:"size"`
	// BlockSize is the logical sector size, 0 when unknown.
	BlockSize int `json:"block_size"`
	// Removable reports whether the platform flags the media removable.
	Removable bool `json:"removable"`
	// Mountpoints lists currently mounted filesystems backed by the
	// device or its partitions.
	Mountpoints []string `json:"mountpoints,omitempty"`
	// Bus is the transport the device hangs off (usb, sd, nvme, ...),
	// empty when the platform does not report one.
	Bus string `json:"bus,omitempty"`
}

// List returns the block devices present right now, excluding virtual
// devices (loop, ram, device-mapper) and the disk hosting the running
// system. Removable devices sort first, then by path.
func List() ([]Destination, error) {
	dests, err := list()
	if err != nil {
		return nil, err
	}
	sort.Slice(dests, func(i, j int) bool {
		if dests[i].Removable != dests[j].Removable {
			return dests[i].Removable
		}
		return dests[i].Path < dests[j].Path
	})
	return dests, nil
}
