//go:build !linux

package mdns

import (
	"fmt"
	"runtime"
)

func announce(s Service) (Publisher, error) {
	return nil, fmt.Errorf("mdns advertisement is not supported on %s", runtime.GOOS)
}
