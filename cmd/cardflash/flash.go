package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jgarman/cardflash/internal/blockdev"
	"github.com/jgarman/cardflash/internal/customizer"
	"github.com/jgarman/cardflash/internal/devices"
	"github.com/jgarman/cardflash/internal/flasher"
	"github.com/jgarman/cardflash/internal/imagesource"
)

var flashFlags struct {
	sha256   string
	cacheDir string
	noVerify bool
	quiet    bool
	eject    bool

	hostname string
	timezone string
	keymap   string
	user     string
	wifi     string
}

var flashCmd = &cobra.Command{
	Use:   "flash IMAGE DESTINATION",
	Short: "Write an image to a destination device or file",
	Long: `Write an image to a destination device or file.

IMAGE is a local file or an http(s) URL, raw or compressed
(xz, gzip, zstd, lz4, zip). DESTINATION is a device path from
"cardflash list", or a regular file for testing.`,
	Args: cobra.ExactArgs(2),
	RunE: runFlash,
}

func init() {
	f := flashCmd.Flags()
	f.StringVar(&flashFlags.sha256, "sha256", "", "expected hex digest of the (compressed) image")
	f.StringVar(&flashFlags.cacheDir, "cache-dir", "", "directory for downloaded images")
	f.BoolVar(&flashFlags.noVerify, "no-verify", false, "skip read-back verification")
	f.BoolVarP(&flashFlags.quiet, "quiet", "q", false, "suppress progress output")
	f.BoolVar(&flashFlags.eject, "eject", false, "eject the media after a successful flash")
	f.StringVar(&flashFlags.hostname, "hostname", "", "hostname to set on first boot")
	f.StringVar(&flashFlags.timezone, "timezone", "", "timezone to set on first boot")
	f.StringVar(&flashFlags.keymap, "keymap", "", "keymap to set on first boot")
	f.StringVar(&flashFlags.user, "user", "", "initial user as NAME:PASSWORD")
	f.StringVar(&flashFlags.wifi, "wifi", "", "wireless network as SSID:PASSWORD")
}

func runFlash(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := buildSource(args[0])
	if err != nil {
		return err
	}
	cust, err := buildCustomization()
	if err != nil {
		return err
	}

	dst, err := openDestination(args[1])
	if err != nil {
		return err
	}
	defer dst.Close()

	progress := make(chan flasher.Event, 64)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderProgress(progress, flashFlags.quiet)
	}()

	err = flasher.Flash(ctx, dst, src, flasher.Options{
		SkipVerify:    flashFlags.noVerify,
		Customization: cust,
		Progress:      progress,
	})
	<-rendered
	if err != nil {
		return err
	}

	if flashFlags.eject {
		if err := dst.Eject(); err != nil {
			log.WithError(err).Warn("eject failed")
		}
	}
	fmt.Fprintf(os.Stderr, "%s written to %s\n", src, dst.Path())
	return nil
}

func buildSource(image string) (imagesource.Source, error) {
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		dir := flashFlags.cacheDir
		if dir == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				return nil, fmt.Errorf("no usable cache directory, pass --cache-dir: %w", err)
			}
			dir = filepath.Join(base, "cardflash")
		}
		return imagesource.Remote{URL: image, SHA256: flashFlags.sha256, CacheDir: dir}, nil
	}
	return imagesource.LocalFile{Path: image}, nil
}

func buildCustomization() (*customizer.Customization, error) {
	c := &customizer.Customization{
		Hostname: flashFlags.hostname,
		Timezone: flashFlags.timezone,
		Keymap:   flashFlags.keymap,
	}
	if flashFlags.user != "" {
		name, password, ok := strings.Cut(flashFlags.user, ":")
		if !ok {
			return nil, fmt.Errorf("--user wants NAME:PASSWORD")
		}
		c.User = &customizer.UserCredentials{Name: name, Password: password}
	}
	if flashFlags.wifi != "" {
		ssid, psk, ok := strings.Cut(flashFlags.wifi, ":")
		if !ok {
			return nil, fmt.Errorf("--wifi wants SSID:PASSWORD")
		}
		c.WiFi = &customizer.WirelessNetwork{SSID: ssid, PSK: psk}
	}
	if c.IsEmpty() {
		return nil, nil
	}
	return c, c.Validate()
}

// openDestination treats regular files as test targets and everything else
// as a device to be enumerated and exclusively opened.
func openDestination(path string) (blockdev.Handle, error) {
	if st, err := os.Stat(path); err == nil && st.Mode().IsRegular() {
		return blockdev.OpenFile(path)
	}
	dest := devices.Destination{Path: path}
	if dests, err := devices.List(); err == nil {
		for _, d := range dests {
			if d.Path == path {
				dest = d
				break
			}
		}
	}
	return blockdev.Open(dest)
}

// renderProgress draws one progress bar per stage and returns after the
// terminal event.
func renderProgress(events <-chan flasher.Event, quiet bool) {
	var (
		bar   *progressbar.ProgressBar
		stage flasher.Stage = -1
	)
	finish := func() {
		if bar != nil {
			bar.Finish()
			bar = nil
		}
	}

	for ev := range events {
		if quiet {
			if ev.Stage.Terminal() {
				return
			}
			continue
		}

		if ev.Stage != stage {
			finish()
			stage = ev.Stage
			switch stage {
			case flasher.StageWriting:
				bar = progressbar.DefaultBytes(orUnknown(ev.BytesTotal), "writing")
			case flasher.StageVerifying:
				bar = progressbar.DefaultBytes(orUnknown(ev.BytesTotal), "verifying")
			case flasher.StageCustomizing:
				fmt.Fprintln(os.Stderr, "customizing boot partition")
			}
		}

		if bar != nil && ev.BytesDone > 0 {
			if ev.BytesTotal > bar.GetMax64() {
				bar.ChangeMax64(ev.BytesTotal)
			}
			bar.Set64(ev.BytesDone)
		}

		if ev.Stage.Terminal() {
			finish()
			return
		}
	}
}

// orUnknown turns a zero total into the spinner mode of the progress bar.
func orUnknown(total int64) int64 {
	if total <= 0 {
		return -1
	}
	return total
}
