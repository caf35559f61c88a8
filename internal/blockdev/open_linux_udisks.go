//go:build linux && udisks

package blockdev

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/jgarman/cardflash/internal/devices"
)

const (
	udisksService = "org.freedesktop.UDisks2"
	udisksManager = "/org/freedesktop/UDisks2/Manager"
)

// open under the udisks build tag goes through the UDisks2 system service:
// the desktop session authorizes raw access (polkit prompt), so GUI and
// flatpak contexts can flash without running as root. The service unmounts,
// opens the device with O_DIRECT on our behalf and passes the descriptor
// back over the bus.
func open(dst devices.Destination) (*Device, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	blockPath, err := resolveBlock(conn, dst.Path)
	if err != nil {
		return nil, err
	}

	block := conn.Object(udisksService, blockPath)
	unmountPartitions(conn, block)

	var fd dbus.UnixFD
	err = block.Call(
		"org.freedesktop.UDisks2.Block.OpenDevice", 0,
		"rw",
		map[string]dbus.Variant{"flags": dbus.MakeVariant(int32(unix.O_DIRECT | unix.O_EXCL))},
	).Store(&fd)
	if err != nil {
		return nil, mapUdisksError(dst.Path, err)
	}

	path := dst.Path
	return &Device{
		f:         os.NewFile(uintptr(fd), path),
		path:      path,
		blockSize: normalizeBlockSize(dst.BlockSize),
		eject: func() error {
			var drivePath dbus.ObjectPath
			if err := block.StoreProperty("org.freedesktop.UDisks2.Block.Drive", &drivePath); err != nil {
				return err
			}
			drive := conn.Object(udisksService, drivePath)
			return drive.Call(
				"org.freedesktop.UDisks2.Drive.Eject", 0,
				map[string]dbus.Variant{},
			).Store()
		},
	}, nil
}

// resolveBlock maps a device path like /dev/sdb to its UDisks2 object path.
func resolveBlock(conn *dbus.Conn, devPath string) (dbus.ObjectPath, error) {
	manager := conn.Object(udisksService, udisksManager)

	var blocks []dbus.ObjectPath
	err := manager.Call(
		"org.freedesktop.UDisks2.Manager.ResolveDevice", 0,
		map[string]dbus.Variant{"path": dbus.MakeVariant(devPath)},
		map[string]dbus.Variant{},
	).Store(&blocks)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s via udisks: %w", devPath, err)
	}
	if len(blocks) == 0 {
		return "", fmt.Errorf("%s: %w", devPath, ErrDeviceNotFound)
	}
	return blocks[0], nil
}

// unmountPartitions force-unmounts every partition of the block device.
// Partitions that are not mounted fail the call; that is fine.
func unmountPartitions(conn *dbus.Conn, block dbus.BusObject) {
	var parts []dbus.ObjectPath
	if err := block.StoreProperty("org.freedesktop.UDisks2.PartitionTable.Partitions", &parts); err != nil {
		// No partition table; the device itself may carry a filesystem.
		parts = []dbus.ObjectPath{block.Path()}
	}

	for _, p := range parts {
		obj := conn.Object(udisksService, p)
		_ = obj.Call(
			"org.freedesktop.UDisks2.Filesystem.Unmount", 0,
			map[string]dbus.Variant{"force": dbus.MakeVariant(true)},
		).Store()
	}
}

// mapUdisksError distinguishes the polkit/not-authorized failures from plain
// device errors so the UI can suggest authenticating.
func mapUdisksError(path string, err error) error {
	if dbusErr, ok := err.(dbus.Error); ok {
		switch dbusErr.Name {
		case "org.freedesktop.UDisks2.Error.NotAuthorized",
			"org.freedesktop.UDisks2.Error.NotAuthorizedCanObtain",
			"org.freedesktop.UDisks2.Error.NotAuthorizedDismissed":
			return fmt.Errorf("%s: %w", path, ErrPermissionDenied)
		case "org.freedesktop.UDisks2.Error.DeviceBusy", "org.freedesktop.UDisks2.Error.AlreadyMounted":
			return fmt.Errorf("%s: %w", path, ErrDeviceBusy)
		}
	}
	return fmt.Errorf("failed to open %s via udisks: %w", path, err)
}
