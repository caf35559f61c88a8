package customizer

import (
	"fmt"
	"io"
	"os"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	log "github.com/sirupsen/logrus"
)

const sysconfName = "/sysconf.txt"

// bootFS abstracts how the boot partition's files are edited. The userspace
// FAT driver works everywhere; Linux roots get a kernel mount instead, which
// is faster and battle-tested. Paths are absolute within the partition.
type bootFS interface {
	// ReadFile returns nil data without error when the file is absent.
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	Mkdir(name string) error
	Close() error
}

// Apply merges the customization into the boot partition of devPath and
// returns the byte range [start, end) of the partition it modified, so the
// caller can exclude it from image verification. The customization must
// already be validated.
func Apply(devPath string, c *Customization) (start, end int64, err error) {
	region, boot, err := openBoot(devPath)
	if err != nil {
		return 0, 0, err
	}

	log.WithFields(log.Fields{"dest": devPath, "partition": region.index}).
		Debug("applying customization")

	if err := writeSettings(boot, c); err != nil {
		boot.Close()
		return 0, 0, fmt.Errorf("%w: %v", ErrCustomization, err)
	}
	if err := boot.Close(); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCustomization, err)
	}
	syncDevice(devPath)
	return region.start, region.end, nil
}

// writeSettings merges the requested keys into sysconf.txt and drops the
// wireless credential file next to it.
func writeSettings(boot bootFS, c *Customization) error {
	data, err := boot.ReadFile(sysconfName)
	if err != nil {
		return err
	}
	conf := parseSysconf(data)

	if c.Hostname != "" {
		conf.set("hostname", c.Hostname)
	}
	if c.Timezone != "" {
		conf.set("timezone", c.Timezone)
	}
	if c.Keymap != "" {
		conf.set("keymap", c.Keymap)
	}
	if c.User != nil {
		conf.set("user_name", c.User.Name)
		conf.set("user_password", c.User.Password)
	}
	if c.WiFi != nil {
		// Errors surface from the write below if the directory is
		// really missing.
		_ = boot.Mkdir("/services")
		name := c.WiFi.SSID + ".psk"
		if err := boot.WriteFile("/services/"+name, iwdProfile(c.WiFi.PSK)); err != nil {
			return err
		}
		conf.set("iwd_psk_file", name)
	}

	return boot.WriteFile(sysconfName, conf.serialize())
}

// iwdProfile renders the iwd network profile the target's wireless daemon
// loads on first boot.
func iwdProfile(psk string) []byte {
	return []byte("[Security]\nPassphrase=" + psk + "\n\n[Settings]\nAutoConnect=true\n")
}

// syncDevice flushes the device's dirty pages so a read back through a
// direct-I/O handle sees the customized bytes.
func syncDevice(devPath string) {
	f, err := os.OpenFile(devPath, os.O_WRONLY, 0)
	if err != nil {
		return
	}
	f.Sync()
	f.Close()
}

// diskfsBoot edits the partition with the userspace FAT driver. No mount,
// no elevation beyond the device handle itself.
type diskfsBoot struct {
	d  *disk.Disk
	fs filesystem.FileSystem
}

func newDiskfsBoot(devPath string) (bootRegion, *diskfsBoot, error) {
	d, err := diskfs.Open(devPath, diskfs.WithOpenMode(diskfs.ReadWrite))
	if err != nil {
		return bootRegion{}, nil, fmt.Errorf("failed to open %s: %w", devPath, err)
	}
	region, fs, err := findBootPartition(d)
	if err != nil {
		d.Close()
		return bootRegion{}, nil, err
	}
	return region, &diskfsBoot{d: d, fs: fs}, nil
}

func (b *diskfsBoot) ReadFile(name string) ([]byte, error) {
	f, err := b.fs.OpenFile(name, os.O_RDONLY)
	if err != nil {
		// The FAT driver has no distinguished not-exist error; a
		// fresh image legitimately lacks the file.
		return nil, nil
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (b *diskfsBoot) WriteFile(name string, data []byte) error {
	f, err := b.fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

func (b *diskfsBoot) Mkdir(name string) error { return b.fs.Mkdir(name) }

func (b *diskfsBoot) Close() error { return b.d.Close() }
