// Package flasher writes OS images to raw block devices: a sequential
// pipeline of write, optional first-boot customization, and optional
// read-back verification, with progress reporting and cooperative
// cancellation at chunk granularity.
package flasher

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/jgarman/cardflash/internal/blockdev"
	"github.com/jgarman/cardflash/internal/customizer"
	"github.com/jgarman/cardflash/internal/imagesource"
)

// Options configures a single flash operation. The zero value writes and
// verifies with no customization and no progress reporting.
type Options struct {
	// SkipVerify disables the read-back verification pass. Verification
	// is on unless explicitly opted out.
	SkipVerify bool

	// Customization, when non-nil and non-empty, is injected into the
	// boot partition after the image is written. Partial field pairs are
	// rejected before any device I/O happens.
	Customization *customizer.Customization

	// Progress receives events for the run. Nil means fire-and-forget.
	// Non-terminal events are dropped when the channel is full; the
	// terminal event is always delivered, evicting buffered stale events
	// if nobody is draining. Receivers should read until they see a
	// terminal stage.
	Progress chan Event
}

// Flash writes src onto dst. Stages run strictly in sequence:
// Preparing, Writing, Customizing (if requested), Verifying (unless skipped),
// Finished. Cancelling ctx aborts at the next chunk boundary; the destination
// is then partially written and must not be trusted until a later flash
// completes. Exactly one terminal event is reported. The returned error is
// nil on success, ctx.Err() on cancellation, and otherwise wraps one of the
// sentinel kinds (blockdev, imagesource, customizer, ErrVerificationMismatch)
// so callers can decide whether a retry makes sense.
func Flash(ctx context.Context, dst blockdev.Handle, src imagesource.Source, opts Options) error {
	cust := opts.Customization
	if cust != nil && cust.IsEmpty() {
		cust = nil
	}
	if cust != nil {
		if err := cust.Validate(); err != nil {
			emitTerminal(opts.Progress, Event{Stage: StageFailed, Err: err})
			return err
		}
	}

	emit(opts.Progress, Event{Stage: StagePreparing})

	img, total, err := src.Open(ctx)
	if err != nil {
		return fail(opts.Progress, ctx, fmt.Errorf("failed to open image source: %w", err))
	}
	defer img.Close()

	log.WithFields(log.Fields{"image": src.String(), "dest": dst.Path(), "size": total}).
		Debug("starting flash")

	digest, err := writeImage(ctx, dst, img, total, opts.Progress)
	if err != nil {
		return fail(opts.Progress, ctx, err)
	}

	if cust != nil {
		// Customization mutates the boot partition; once a filesystem
		// write begins it runs to completion, so cancellation is only
		// honored before this stage starts.
		if err := ctx.Err(); err != nil {
			return fail(opts.Progress, ctx, err)
		}
		emit(opts.Progress, Event{Stage: StageCustomizing})

		start, end, err := customizer.Apply(dst.Path(), cust)
		if err != nil {
			return fail(opts.Progress, ctx, err)
		}
		// The partition region now legitimately differs from the image;
		// refresh its chunk digests from the device before verifying.
		if err := digest.refresh(dst, start, end); err != nil {
			return fail(opts.Progress, ctx, err)
		}
	}

	if !opts.SkipVerify {
		if err := verifyImage(ctx, dst, digest, opts.Progress); err != nil {
			return fail(opts.Progress, ctx, err)
		}
	}

	log.WithField("dest", dst.Path()).Debug("flash finished")
	emitTerminal(opts.Progress, Event{Stage: StageFinished, BytesDone: digest.imageSize, BytesTotal: digest.imageSize})
	return nil
}

// fail reports the terminal event for err, distinguishing cancellation from
// real failures, and returns the error the caller should see.
func fail(progress chan Event, ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		emitTerminal(progress, Event{Stage: StageAborted})
		return err
	}
	if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
		emitTerminal(progress, Event{Stage: StageAborted})
		return err
	}
	emitTerminal(progress, Event{Stage: StageFailed, Err: err})
	return err
}
