package tail

import (
	"fmt"
	"io"
	"os"

	"github.com/dirtail/dirtail/internal/registry"
)

const blockSize = 64 * 1024

// Reader performs one bounded incremental read per call. It never
// waits for data to arrive; the follow loop decides when to call it
// again, driven by watcher events or the rescan tick.
type Reader struct{}

// ReadNew returns the bytes appended to tf since its last confirmed
// offset and advances the offset past them. rotated reports that the
// path now refers to a different underlying file (or was truncated)
// and the read restarted from the new beginning.
//
// A file that vanished or cannot be opened right now yields no data
// and no error. Concurrent writers and rotators make that an expected
// condition; a later cycle observes the settled state.
func (r *Reader) ReadNew(tf *registry.TrackedFile) (data []byte, rotated bool, err error) {
	f, err := os.Open(tf.Path)
	if err != nil {
		return nil, false, nil
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, false, nil
	}
	if !fi.Mode().IsRegular() {
		return nil, false, nil
	}

	rotated = tf.CheckRotation(fi)

	// The size captured here bounds the read: bytes appended while we
	// are reading belong to the next cycle.
	want := fi.Size() - tf.Offset
	if want <= 0 {
		return nil, rotated, nil
	}
	if _, err := f.Seek(tf.Offset, io.SeekStart); err != nil {
		return nil, rotated, fmt.Errorf("failed to seek %s: %w", tf.Path, err)
	}
	data, err = io.ReadAll(io.LimitReader(f, want))
	tf.Offset += int64(len(data))
	if err != nil {
		return data, rotated, fmt.Errorf("failed to read %s: %w", tf.Path, err)
	}
	return data, rotated, nil
}

// LastLinesOffset returns the byte offset at which the final n lines
// of the file begin, scanning backwards in blocks. n == 0 yields the
// end of the file (follow only new data); a negative n yields zero
// (the whole file). A trailing newline terminates the last line rather
// than starting an empty one.
func LastLinesOffset(f *os.File, size int64, n int) (int64, error) {
	if n < 0 || size == 0 {
		return 0, nil
	}
	if n == 0 {
		return size, nil
	}

	end := size
	var last [1]byte
	if _, err := f.ReadAt(last[:], size-1); err == nil && last[0] == '\n' {
		end--
	}

	buf := make([]byte, blockSize)
	count := 0
	for pos := end; pos > 0; {
		chunk := int64(len(buf))
		if pos < chunk {
			chunk = pos
		}
		pos -= chunk
		m, err := f.ReadAt(buf[:chunk], pos)
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("failed to read %s: %w", f.Name(), err)
		}
		for i := m - 1; i >= 0; i-- {
			if buf[i] == '\n' {
				count++
				if count >= n {
					return pos + int64(i) + 1, nil
				}
			}
		}
	}
	return 0, nil
}
