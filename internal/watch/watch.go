package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Op identifies the kind of change observed in a watched directory.
type Op uint8

const (
	Create Op = iota + 1
	Write
	Remove
	Rename
)

func (op Op) String() string {
	switch op {
	case Create:
		return "create"
	case Write:
		return "write"
	case Remove:
		return "remove"
	case Rename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is a single filesystem change.
type Event struct {
	Op   Op
	Path string
}

// Subscriber is the capability the follow loop depends on: a stream of
// change events for one directory tree. One variant runs per process;
// tests substitute their own implementation.
type Subscriber interface {
	// Subscribe starts event delivery for dir. The returned channel
	// is closed when ctx is cancelled or the underlying source fails
	// permanently.
	Subscribe(ctx context.Context, dir string) (<-chan Event, error)
}

// Events are buffered between the notification source and the follow
// loop; the loop drains the queue fully each cycle. When the queue is
// full an event is dropped rather than blocking the source, and the
// periodic rescan observes the resulting state instead.
const eventBufferSize = 256

func deliver(out chan<- Event, ev Event) {
	select {
	case out <- ev:
	default:
		log.Debug().Str("op", ev.Op.String()).Str("path", ev.Path).Msg("Event queue full, dropping event")
	}
}

// WalkFiles calls fn for every regular file under root, honoring the
// recursion settings. Non-recursive walks cover only root's direct
// entries; maxDepth limits how many directory levels below root a
// recursive walk descends (0 means unlimited). Inaccessible entries
// are skipped; only a failure to read root itself is returned.
func WalkFiles(root string, recursive bool, maxDepth int, fn func(path string, fi os.FileInfo)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Warn().Err(err).Str("path", path).Msg("Skipping inaccessible path")
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || (maxDepth > 0 && depthBelow(root, path) >= maxDepth) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		fn(path, fi)
		return nil
	})
}

// depthBelow counts directory levels between root and path; a direct
// child of root is at depth 1.
func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
