package registry

import (
	"os"
	"sort"
)

// Identity is a stable fingerprint of the underlying file a path
// currently points at. On unix it is device plus inode; on Windows the
// creation time stands in for the inode. Two stats that disagree on
// Identity mean the path was rotated to a different file.
type Identity struct {
	Dev uint64
	Ino uint64
}

// Fingerprint derives the identity of a file from its stat result.
func Fingerprint(fi os.FileInfo) Identity {
	return fingerprint(fi)
}

// TrackedFile holds the follow state of a single file.
type TrackedFile struct {
	Path     string
	Offset   int64
	Identity Identity

	// FirstOutputDone records whether the file has ever contributed
	// bytes to the output stream. It is cleared on rotation so the
	// new contents get a fresh header.
	FirstOutputDone bool

	dirty bool
}

// CheckRotation compares the current stat of the path against the
// stored identity and offset. An identity mismatch or a size below the
// confirmed offset means the path now refers to a different (or
// truncated) file: the offset is reset, the identity refreshed and the
// next emit re-headers the file. Reports whether a rotation happened.
func (tf *TrackedFile) CheckRotation(fi os.FileInfo) bool {
	id := fingerprint(fi)
	if id == tf.Identity && fi.Size() >= tf.Offset {
		return false
	}
	tf.Offset = 0
	tf.Identity = id
	tf.FirstOutputDone = false
	return true
}

// Registry owns every TrackedFile, keyed by path. It has a single
// owner, the follow loop, so access needs no locking.
type Registry struct {
	files map[string]*TrackedFile
	order []string
}

func New() *Registry {
	return &Registry{files: make(map[string]*TrackedFile)}
}

// Discover starts tracking path. The offset starts at zero so existing
// content is emitted before the follow begins, and the entry is born
// dirty so the first cycle reads it. When the path is already tracked
// the existing entry is returned unchanged.
func (r *Registry) Discover(path string, fi os.FileInfo) (*TrackedFile, bool) {
	if tf, ok := r.files[path]; ok {
		return tf, false
	}
	tf := &TrackedFile{
		Path:     path,
		Identity: fingerprint(fi),
		dirty:    true,
	}
	r.files[path] = tf
	r.order = append(r.order, path)
	return tf, true
}

// Get returns the tracked entry for path, if any.
func (r *Registry) Get(path string) (*TrackedFile, bool) {
	tf, ok := r.files[path]
	return tf, ok
}

// MarkDirty schedules path for a read on the next cycle. It does not
// touch the file itself. Reports whether the path is tracked.
func (r *Registry) MarkDirty(path string) bool {
	tf, ok := r.files[path]
	if !ok {
		return false
	}
	tf.dirty = true
	return true
}

// Remove drops path from the registry. Reports whether it was tracked.
func (r *Registry) Remove(path string) bool {
	if _, ok := r.files[path]; !ok {
		return false
	}
	delete(r.files, path)
	for i, p := range r.order {
		if p == path {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of tracked files.
func (r *Registry) Len() int {
	return len(r.files)
}

// Paths returns the tracked paths in discovery order.
func (r *Registry) Paths() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// TakeDirty returns the files awaiting a read and clears their dirty
// flag. The result is ordered by ascending path so the output of one
// cycle is reproducible regardless of event arrival order.
func (r *Registry) TakeDirty() []*TrackedFile {
	var out []*TrackedFile
	for _, tf := range r.files {
		if tf.dirty {
			tf.dirty = false
			out = append(out, tf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
