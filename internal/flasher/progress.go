package flasher

import "fmt"

// Stage identifies one phase of a flash operation.
type Stage int

const (
	StagePreparing Stage = iota
	StageWriting
	StageCustomizing
	StageVerifying
	StageFinished
	StageAborted
	StageFailed
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StagePreparing:
		return "preparing"
	case StageWriting:
		return "writing"
	case StageCustomizing:
		return "customizing"
	case StageVerifying:
		return "verifying"
	case StageFinished:
		return "finished"
	case StageAborted:
		return "aborted"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Terminal reports whether the stage ends a flash operation.
func (s Stage) Terminal() bool {
	return s == StageFinished || s == StageAborted || s == StageFailed
}

// Event is a single progress notification. BytesDone and BytesTotal are only
// meaningful for StageWriting and StageVerifying. BytesTotal is an estimate
// while the source cannot know its decompressed length; it never shrinks and
// BytesDone is always monotonic within a stage. Err is set for StageFailed.
type Event struct {
	Stage      Stage
	BytesDone  int64
	BytesTotal int64
	Err        error
}

// emit delivers ev without ever blocking the pipeline. A nil channel means
// fire-and-forget; a full channel drops the event (stale progress is worthless,
// stalling the writer is not).
func emit(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

// emitTerminal delivers the single terminal event of a run. Unlike progress
// events it is never dropped, and it must not hang the flash when the
// receiver has stopped draining: if the buffer is full, stale progress
// events are evicted until the terminal event fits. Receivers of an
// unbuffered channel must keep receiving until they see a terminal event.
func emitTerminal(ch chan Event, ev Event) {
	if ch == nil {
		return
	}
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case ch <- ev:
			return
		case <-ch:
			// Evicted a stale progress event; retry the send.
		}
	}
}
