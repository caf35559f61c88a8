// Package customizer injects first-boot settings into the FAT boot partition
// of a freshly written image: hostname, timezone, keymap, initial user and
// wireless credentials, in the sysconf.txt format the target firmware reads
// on first boot.
package customizer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCustomization means the request itself is malformed
	// (partial credential pairs). Detected before any device I/O.
	ErrInvalidCustomization = errors.New("invalid customization")
	// ErrCustomization means applying a valid request to the device
	// failed.
	ErrCustomization = errors.New("customization failed")
	// ErrUnsupportedFilesystem means no FAT boot partition was found to
	// write settings into.
	ErrUnsupportedFilesystem = errors.New("no supported boot filesystem")
)

// UserCredentials is the initial user account. Both fields are required
// together.
type UserCredentials struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// WirelessNetwork is a network to join on first boot. Both fields are
// required together.
type WirelessNetwork struct {
	SSID string `json:"ssid"`
	PSK  string `json:"psk"`
}

// Customization is the set of first-boot settings to apply. Zero-valued
// fields are left untouched on the target.
type Customization struct {
	Hostname string           `json:"hostname,omitempty"`
	Timezone string           `json:"timezone,omitempty"`
	Keymap   string           `json:"keymap,omitempty"`
	User     *UserCredentials `json:"user,omitempty"`
	WiFi     *WirelessNetwork `json:"wifi,omitempty"`
}

// IsEmpty reports whether the customization asks for nothing.
func (c *Customization) IsEmpty() bool {
	return c.Hostname == "" && c.Timezone == "" && c.Keymap == "" &&
		c.User == nil && c.WiFi == nil
}

// Validate rejects partial credential pairs. A name without a password (or
// an SSID without a passphrase) would produce an unbootable or insecure
// target, so it fails up front.
func (c *Customization) Validate() error {
	if c.User != nil && (c.User.Name == "" || c.User.Password == "") {
		return fmt.Errorf("user name and password must both be set: %w", ErrInvalidCustomization)
	}
	if c.WiFi != nil && (c.WiFi.SSID == "" || c.WiFi.PSK == "") {
		return fmt.Errorf("wifi ssid and passphrase must both be set: %w", ErrInvalidCustomization)
	}
	return nil
}
