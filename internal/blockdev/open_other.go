//go:build !linux && !darwin && !windows

package blockdev

import (
	"fmt"
	"runtime"

	"github.com/jgarman/cardflash/internal/devices"
)

func open(dst devices.Destination) (*Device, error) {
	return nil, fmt.Errorf("raw device access is not supported on %s", runtime.GOOS)
}
