package flasher

import (
	"context"
	"fmt"
	"io"

	"github.com/jgarman/cardflash/internal/blockdev"
)

// readAligned fills buf from img, zero-padding the tail after EOF so that the
// buffer can be written to the device whole. Returns the number of image
// bytes read (which may be less than len(buf) only at EOF).
func readAligned(img io.Reader, buf []byte) (int, error) {
	pos := 0
	for pos < len(buf) {
		n, err := img.Read(buf[pos:])
		pos += n
		if err == io.EOF {
			for i := pos; i < len(buf); i++ {
				buf[i] = 0
			}
			return pos, io.EOF
		}
		if err != nil {
			return pos, err
		}
	}
	return pos, nil
}

// roundUp rounds n up to the next multiple of block.
func roundUp(n int64, block int64) int64 {
	if block <= 0 {
		block = 512
	}
	if rem := n % block; rem != 0 {
		return n + block - rem
	}
	return n
}

// writeImage streams img onto dst in ChunkSize chunks, hashing every chunk as
// written. total is the expected image length, 0 when unknown; the returned
// digest records the padded device length. Cancellation is observed between
// chunks. On I/O error the write aborts immediately; no retries happen at
// this layer and the destination must be considered invalid by the caller.
func writeImage(ctx context.Context, dst blockdev.Handle, img io.Reader, total int64, progress chan<- Event) (*chunkDigest, error) {
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek destination: %w", err)
	}

	block := int64(dst.BlockSize())
	digest := &chunkDigest{}
	buf := make([]byte, ChunkSize)
	var pos int64

	emit(progress, Event{Stage: StageWriting, BytesDone: 0, BytesTotal: total})

	for {
		if err := ctx.Err(); err != nil {
			return digest, err
		}

		n, rerr := readAligned(img, buf)
		if rerr != nil && rerr != io.EOF {
			return digest, fmt.Errorf("failed to read image: %w", rerr)
		}
		if n > 0 {
			// The final chunk is padded only to the device block
			// boundary, not to the full chunk size.
			wlen := roundUp(int64(n), block)
			if _, werr := dst.Write(buf[:wlen]); werr != nil {
				return digest, fmt.Errorf("failed to write device: %w", werr)
			}
			digest.add(buf[:wlen])
			pos += int64(n)
			digest.imageSize = pos

			if total < pos {
				// Decompressed length was unknown or underestimated;
				// keep the total a monotonic running estimate.
				total = pos
			}
			emit(progress, Event{Stage: StageWriting, BytesDone: pos, BytesTotal: total})
		}
		if rerr == io.EOF {
			break
		}
	}

	if err := dst.Sync(); err != nil {
		return digest, fmt.Errorf("failed to sync device: %w", err)
	}
	return digest, nil
}
