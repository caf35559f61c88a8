//go:build !linux && !darwin && !windows

package devices

import (
	"fmt"
	"runtime"
)

func list() ([]Destination, error) {
	return nil, fmt.Errorf("device enumeration is not supported on %s", runtime.GOOS)
}
