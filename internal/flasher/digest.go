package flasher

import (
	"crypto/sha256"
	"fmt"
	"io"
)

// ChunkSize is the unit of both device writes and digest bookkeeping. It is a
// multiple of every sane device block size, large enough to keep syscall
// overhead down and small enough that cancellation is observed within one
// chunk-write duration.
const ChunkSize = 4 * 1024 * 1024

// chunkDigest records one SHA-256 per ChunkSize-sized slice of the written
// device region. Keeping per-chunk digests instead of one rolling digest lets
// the customizer rewrite blocks inside the boot partition after the write
// pass without poisoning verification: only the chunks it touched are
// re-hashed. Memory cost is 32 bytes per 4 MiB written.
type chunkDigest struct {
	sums [][sha256.Size]byte

	// padded is the byte count actually written to the device, rounded up
	// to the block boundary. imageSize is the unpadded source length used
	// for progress reporting.
	padded    int64
	imageSize int64
}

func (d *chunkDigest) add(chunk []byte) {
	d.sums = append(d.sums, sha256.Sum256(chunk))
	d.padded += int64(len(chunk))
}

// chunkLen returns the padded length of chunk i. All chunks are ChunkSize
// except possibly the last.
func (d *chunkDigest) chunkLen(i int) int64 {
	start := int64(i) * ChunkSize
	if start+ChunkSize > d.padded {
		return d.padded - start
	}
	return ChunkSize
}

// refresh re-hashes every chunk overlapping the half-open byte range
// [start, end), reading the current contents back from r. Used after
// customization so that verification compares against what is legitimately
// on the device.
func (d *chunkDigest) refresh(r io.ReadSeeker, start, end int64) error {
	if end > d.padded {
		end = d.padded
	}
	if start >= end {
		return nil
	}

	buf := make([]byte, ChunkSize)
	for i := int(start / ChunkSize); int64(i)*ChunkSize < end; i++ {
		off := int64(i) * ChunkSize
		n := d.chunkLen(i)

		if _, err := r.Seek(off, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to chunk %d: %w", i, err)
		}
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return fmt.Errorf("failed to re-read chunk %d: %w", i, err)
		}
		d.sums[i] = sha256.Sum256(buf[:n])
	}

	return nil
}
