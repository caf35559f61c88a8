package flasher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/jgarman/cardflash/internal/blockdev"
)

// verifyImage re-reads the written region of dst from offset zero and
// compares per-chunk SHA-256 digests against what the write pass recorded.
// The chunking is identical on both passes, padding included, so the
// comparison is deterministic. A mismatch means media or transfer corruption;
// it is not retryable without re-flashing.
func verifyImage(ctx context.Context, dst blockdev.Handle, digest *chunkDigest, progress chan<- Event) error {
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek destination: %w", err)
	}

	buf := make([]byte, ChunkSize)
	emit(progress, Event{Stage: StageVerifying, BytesDone: 0, BytesTotal: digest.imageSize})

	var pos int64
	for i := range digest.sums {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := digest.chunkLen(i)
		if _, err := io.ReadFull(dst, buf[:n]); err != nil {
			return fmt.Errorf("failed to read back device: %w", err)
		}
		if sha256.Sum256(buf[:n]) != digest.sums[i] {
			return fmt.Errorf("chunk %d differs: %w", i, ErrVerificationMismatch)
		}

		pos += n
		done := pos
		if done > digest.imageSize {
			done = digest.imageSize
		}
		emit(progress, Event{Stage: StageVerifying, BytesDone: done, BytesTotal: digest.imageSize})
	}

	return nil
}
