package download

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// Chunks splits r into consecutive windows of size bytes. The last window
// may be shorter. The sequence reads r as it goes, so it can be ranged over
// only once. A read error is yielded once and ends the sequence.
func Chunks(r io.Reader, size int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if size <= 0 {
			yield(nil, fmt.Errorf("invalid chunk size %d", size))
			return
		}

		for {
			buf := make([]byte, size)
			n, err := io.ReadFull(r, buf)
			switch {
			case err == nil:
				if !yield(buf, nil) {
					return
				}
			case errors.Is(err, io.ErrUnexpectedEOF):
				yield(buf[:n], nil)
				return
			case errors.Is(err, io.EOF):
				return
			default:
				yield(nil, err)
				return
			}
		}
	}
}

// ChunkCount returns how many windows Chunks produces for total bytes
func ChunkCount(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
