//go:build !linux

package customizer

// openBoot uses the userspace FAT driver on platforms without a usable
// kernel vfat mount.
func openBoot(devPath string) (bootRegion, bootFS, error) {
	return newDiskfsBoot(devPath)
}
