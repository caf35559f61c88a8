// Package service exposes the flasher over HTTP: enumerate destinations,
// start flash jobs, stream their progress, cancel them. Intended for
// companion UIs on the local network, discovered over mDNS.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/jgarman/cardflash/internal/blockdev"
	"github.com/jgarman/cardflash/internal/customizer"
	"github.com/jgarman/cardflash/internal/devices"
	"github.com/jgarman/cardflash/internal/flasher"
	"github.com/jgarman/cardflash/internal/imagesource"
)

// Handler serves the flash API.
type Handler struct {
	cacheDir string
	defaults Defaults
	jobs     *registry
}

// Defaults are the daemon-level flash settings, applied when a request
// leaves the corresponding knob unset.
type Defaults struct {
	SkipVerify bool
	Eject      bool
}

// New creates a Handler. cacheDir holds downloaded images.
func New(cacheDir string, defaults Defaults) *Handler {
	return &Handler{cacheDir: cacheDir, defaults: defaults, jobs: newRegistry()}
}

// Routes registers the API on a fresh router.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", h.HealthHandler).Methods("GET")
	r.HandleFunc("/api/destinations", h.DestinationsHandler).Methods("GET")
	r.HandleFunc("/api/flash", h.StartFlashHandler).Methods("POST")
	r.HandleFunc("/api/flash/{id}", h.FlashStatusHandler).Methods("GET")
	r.HandleFunc("/api/flash/{id}/events", h.FlashEventsHandler).Methods("GET")
	r.HandleFunc("/api/flash/{id}", h.CancelFlashHandler).Methods("DELETE")
	return r
}

// HealthHandler reports liveness.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DestinationsHandler lists candidate flash targets.
func (h *Handler) DestinationsHandler(w http.ResponseWriter, r *http.Request) {
	dests, err := devices.List()
	if err != nil {
		log.WithError(err).Error("device enumeration failed")
		http.Error(w, "failed to enumerate devices", http.StatusInternalServerError)
		return
	}
	if dests == nil {
		dests = []devices.Destination{}
	}
	writeJSON(w, http.StatusOK, dests)
}

// flashRequest is the POST /api/flash body. Exactly one of image_url and
// image_path must be set. skip_verify and eject are tri-state: absent means
// the daemon default applies.
type flashRequest struct {
	ImageURL      string                    `json:"image_url,omitempty"`
	ImagePath     string                    `json:"image_path,omitempty"`
	SHA256        string                    `json:"sha256,omitempty"`
	Destination   string                    `json:"destination"`
	SkipVerify    *bool                     `json:"skip_verify,omitempty"`
	Eject         *bool                     `json:"eject,omitempty"`
	Customization *customizer.Customization `json:"customization,omitempty"`
}

// StartFlashHandler validates the request, opens the destination and starts
// the flash in the background. Responds 202 with the job id.
func (h *Handler) StartFlashHandler(w http.ResponseWriter, r *http.Request) {
	var req flashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	src, err := h.source(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Customization != nil {
		if err := req.Customization.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	dst, err := openDestination(req.Destination)
	if err != nil {
		log.WithError(err).WithField("dest", req.Destination).Error("failed to open destination")
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	skipVerify := orDefault(h.defaults.SkipVerify, req.SkipVerify)
	eject := orDefault(h.defaults.Eject, req.Eject)

	ctx, cancel := context.WithCancel(context.Background())
	j := h.jobs.add(cancel)

	progress := make(chan flasher.Event, 64)
	go func() {
		for ev := range progress {
			j.update(ev)
			if ev.Stage.Terminal() {
				break
			}
		}
	}()

	go func() {
		defer cancel()
		err := flasher.Flash(ctx, dst, src, flasher.Options{
			SkipVerify:    skipVerify,
			Customization: req.Customization,
			Progress:      progress,
		})
		if err == nil && eject {
			if err := dst.Eject(); err != nil {
				log.WithError(err).Warn("eject failed")
			}
		}
		dst.Close()
		if err != nil {
			log.WithError(err).WithField("job", j.id).Error("flash failed")
		} else {
			log.WithField("job", j.id).Info("flash finished")
		}
	}()

	writeJSON(w, http.StatusAccepted, j.snapshot())
}

func (h *Handler) source(req flashRequest) (imagesource.Source, error) {
	switch {
	case req.ImageURL != "" && req.ImagePath != "":
		return nil, fmt.Errorf("image_url and image_path are mutually exclusive")
	case req.ImageURL != "":
		return imagesource.Remote{URL: req.ImageURL, SHA256: req.SHA256, CacheDir: h.cacheDir}, nil
	case req.ImagePath != "":
		return imagesource.LocalFile{Path: req.ImagePath}, nil
	default:
		return nil, fmt.Errorf("one of image_url or image_path is required")
	}
}

// FlashStatusHandler returns the job's latest snapshot.
func (h *Handler) FlashStatusHandler(w http.ResponseWriter, r *http.Request) {
	j, ok := h.jobs.get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, j.snapshot())
}

// FlashEventsHandler streams job progress as server-sent events until the
// job reaches a terminal stage or the client goes away.
func (h *Handler) FlashEventsHandler(w http.ResponseWriter, r *http.Request) {
	j, ok := h.jobs.get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	events, unsubscribe := j.subscribe()
	defer unsubscribe()

	// Send the current snapshot first so late subscribers see something.
	writeSSE(w, j.snapshot())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case _, ok := <-events:
			if !ok {
				writeSSE(w, j.snapshot())
				flusher.Flush()
				return
			}
			writeSSE(w, j.snapshot())
			flusher.Flush()
		}
	}
}

// CancelFlashHandler requests cooperative cancellation of a running job.
func (h *Handler) CancelFlashHandler(w http.ResponseWriter, r *http.Request) {
	j, ok := h.jobs.get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	j.cancel()
	writeJSON(w, http.StatusAccepted, j.snapshot())
}

// openDestination resolves the path through enumeration when possible, so
// platform metadata (mountpoints, block size) rides along into the open.
// Regular files are valid targets for image assembly and tests.
func openDestination(path string) (blockdev.Handle, error) {
	if path == "" {
		return nil, fmt.Errorf("destination is required: %w", blockdev.ErrDeviceNotFound)
	}
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

// orDefault resolves a tri-state request knob against the daemon default.
func orDefault(def bool, override *bool) bool {
	if override != nil {
		return *override
	}
	return def
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, blockdev.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, blockdev.ErrDeviceBusy):
		return http.StatusConflict
	case errors.Is(err, blockdev.ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

func writeSSE(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
