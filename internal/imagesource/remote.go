package imagesource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Remote is an image fetched over HTTP and kept in a local content-addressed
// cache, so repeated flashes of the same release never download twice.
type Remote struct {
	// URL of the (possibly compressed) image.
	URL string
	// SHA256 is the expected hex digest of the download. When set, both
	// fresh downloads and cache hits are verified against it. When empty
	// the cache entry is keyed by URL and trusted.
	SHA256 string
	// CacheDir holds downloaded images. Must exist or be creatable.
	CacheDir string
}

func (r Remote) String() string { return r.URL }

func (r Remote) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	path, err := r.fetch(ctx)
	if err != nil {
		return nil, 0, err
	}
	return LocalFile{Path: path}.Open(ctx)
}

// fetch returns the cached path for the image, downloading it first when
// missing or when the cached copy fails its digest check.
func (r Remote) fetch(ctx context.Context) (string, error) {
	if err := os.MkdirAll(r.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	key := r.SHA256
	if key == "" {
		sum := sha256.Sum256([]byte(r.URL))
		key = hex.EncodeToString(sum[:])
	}
	path := filepath.Join(r.CacheDir, key)

	if _, err := os.Stat(path); err == nil {
		if r.SHA256 == "" {
			return path, nil
		}
		ok, err := digestMatches(path, r.SHA256)
		if err != nil {
			return "", err
		}
		if ok {
			log.WithField("path", path).Debug("image cache hit")
			return path, nil
		}
		log.WithField("path", path).Warn("cached image digest mismatch, redownloading")
		os.Remove(path)
	}

	if err := r.download(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

func (r Remote) download(ctx context.Context, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return fmt.Errorf("bad image URL: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download image: %s returned %s", r.URL, resp.Status)
	}

	log.WithFields(log.Fields{"url": r.URL, "size": resp.ContentLength}).Info("downloading image")

	tmp, err := os.CreateTemp(r.CacheDir, "download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body); err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to finish download: %w", err)
	}

	if r.SHA256 != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if got != r.SHA256 {
			return fmt.Errorf("downloaded image digest %s does not match expected %s", got, r.SHA256)
		}
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to store image in cache: %w", err)
	}
	return nil
}

func digestMatches(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open cached image: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return false, fmt.Errorf("failed to hash cached image: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)) == expected, nil
}
