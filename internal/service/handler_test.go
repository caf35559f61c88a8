package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(t.TempDir(), Defaults{}).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestFlashStatusUnknownJob(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/flash/no-such-id")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStartFlashValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"no image", `{"destination":"/tmp/x.img"}`},
		{"both images", `{"image_url":"http://x/i.img","image_path":"/i.img","destination":"/tmp/x.img"}`},
		{"partial user", `{"image_path":"/i.img","destination":"/tmp/x.img","customization":{"user":{"name":"a"}}}`},
		{"garbage", `{{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/flash", "application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestFlashLifecycle(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()

	imgPath := filepath.Join(dir, "image.img")
	if err := os.WriteFile(imgPath, bytes.Repeat([]byte{0x5a}, 64*1024), 0o644); err != nil {
		t.Fatal(err)
	}
	dstPath := filepath.Join(dir, "device.img")
	if err := os.WriteFile(dstPath, make([]byte, 1024*1024), 0o644); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]any{
		"image_path":  imgPath,
		"destination": dstPath,
	})
	resp, err := http.Post(srv.URL+"/api/flash", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var started Status
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if started.ID == "" {
		t.Fatal("no job id returned")
	}

	status := pollUntilTerminal(t, srv.URL, started.ID)
	if status.Stage != "finished" {
		t.Fatalf("final stage = %q (error %q), want finished", status.Stage, status.Error)
	}

	written, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(written[:64*1024], bytes.Repeat([]byte{0x5a}, 64*1024)) {
		t.Error("destination contents differ from image")
	}
}

func TestOrDefault(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name     string
		def      bool
		override *bool
		want     bool
	}{
		{"unset keeps default false", false, nil, false},
		{"unset keeps default true", true, nil, true},
		{"override wins over false", false, &yes, true},
		{"override wins over true", true, &no, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := orDefault(tt.def, tt.override); got != tt.want {
				t.Errorf("orDefault(%v, %v) = %v, want %v", tt.def, tt.override, got, tt.want)
			}
		})
	}
}

// A daemon configured to skip verification must apply that to requests that
// leave skip_verify unset, and still finish the job.
func TestFlashUsesConfiguredDefaults(t *testing.T) {
	srv := httptest.NewServer(New(t.TempDir(), Defaults{SkipVerify: true}).Routes())
	t.Cleanup(srv.Close)
	dir := t.TempDir()

	imgPath := filepath.Join(dir, "image.img")
	if err := os.WriteFile(imgPath, bytes.Repeat([]byte{0x3c}, 32*1024), 0o644); err != nil {
		t.Fatal(err)
	}
	dstPath := filepath.Join(dir, "device.img")
	if err := os.WriteFile(dstPath, make([]byte, 256*1024), 0o644); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]any{
		"image_path":  imgPath,
		"destination": dstPath,
	})
	resp, err := http.Post(srv.URL+"/api/flash", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	var started Status
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	status := pollUntilTerminal(t, srv.URL, started.ID)
	if status.Stage != "finished" {
		t.Fatalf("final stage = %q (error %q), want finished", status.Stage, status.Error)
	}
}

func pollUntilTerminal(t *testing.T, baseURL, id string) Status {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("%s/api/flash/%s", baseURL, id))
		if err != nil {
			t.Fatal(err)
		}
		var status Status
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		switch status.Stage {
		case "finished", "failed", "aborted":
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal stage in time")
	return Status{}
}
