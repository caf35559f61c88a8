package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jgarman/cardflash/internal/flasher"
)

// Status is the externally visible state of a flash job.
type Status struct {
	ID         string `json:"id"`
	Stage      string `json:"stage"`
	BytesDone  int64  `json:"bytes_done"`
	BytesTotal int64  `json:"bytes_total"`
	Error      string `json:"error,omitempty"`
}

// job tracks one running or completed flash. Progress events update the
// snapshot and fan out to any SSE subscribers.
type job struct {
	id     string
	cancel context.CancelFunc

	mu     sync.Mutex
	status Status
	done   bool
	subs   map[chan flasher.Event]struct{}
}

func (j *job) snapshot() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// update folds an event into the snapshot and delivers it to subscribers.
// Slow subscribers lose intermediate events; the terminal event is delivered
// by closing their channels after it is recorded.
func (j *job) update(ev flasher.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status.Stage = ev.Stage.String()
	if ev.BytesDone > 0 || ev.BytesTotal > 0 {
		j.status.BytesDone = ev.BytesDone
		j.status.BytesTotal = ev.BytesTotal
	}
	if ev.Err != nil {
		j.status.Error = ev.Err.Error()
	}

	for ch := range j.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Stage.Terminal() {
		j.done = true
		for ch := range j.subs {
			close(ch)
		}
		j.subs = nil
	}
}

// subscribe registers an event channel; the returned cancel must be called
// unless the channel was closed by a terminal event. A job that already
// finished yields a closed channel immediately.
func (j *job) subscribe() (<-chan flasher.Event, func()) {
	ch := make(chan flasher.Event, 16)
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.done {
		close(ch)
		return ch, func() {}
	}
	if j.subs == nil {
		j.subs = make(map[chan flasher.Event]struct{})
	}
	j.subs[ch] = struct{}{}

	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
		}
	}
}

// registry is the in-memory set of jobs, alive for the daemon's lifetime.
type registry struct {
	mu   sync.Mutex
	jobs map[string]*job
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]*job)}
}

func (r *registry) add(cancel context.CancelFunc) *job {
	j := &job{
		id:     uuid.NewString(),
		cancel: cancel,
		status: Status{Stage: flasher.StagePreparing.String()},
	}
	j.status.ID = j.id
	r.mu.Lock()
	r.jobs[j.id] = j
	r.mu.Unlock()
	return j
}

func (r *registry) get(id string) (*job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}
