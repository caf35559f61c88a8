//go:build darwin && !authopen

package blockdev

import (
	"os"
	"os/exec"

	"github.com/jgarman/cardflash/internal/devices"
)

// open on macOS unmounts the whole disk through diskutil, then opens the raw
// device node directly. This requires an already-privileged context (sudo or
// a root daemon); GUI builds use the authopen tag instead, which raises the
// system authorization prompt.
func open(dst devices.Destination) (*Device, error) {
	// Best effort: the disk may not be mounted at all.
	_ = exec.Command("diskutil", "unmountDisk", dst.Path).Run()

	f, err := os.OpenFile(dst.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, classify(dst.Path, err)
	}

	return &Device{
		f:         f,
		path:      dst.Path,
		blockSize: normalizeBlockSize(dst.BlockSize),
		eject: func() error {
			return exec.Command("diskutil", "eject", dst.Path).Run()
		},
	}, nil
}
