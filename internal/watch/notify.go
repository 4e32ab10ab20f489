package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Notify delivers native filesystem notifications through fsnotify.
// fsnotify watches a single directory level, so in recursive mode each
// subdirectory gets its own watch, added up front and again whenever a
// directory appears at runtime.
type Notify struct {
	Recursive bool
	Depth     int
}

func (n *Notify) Subscribe(ctx context.Context, dir string) (<-chan Event, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	out := make(chan Event, eventBufferSize)
	if err := n.addTree(fw, dir, dir, nil); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	go n.run(ctx, fw, dir, out)
	return out, nil
}

func (n *Notify) run(ctx context.Context, fw *fsnotify.Watcher, dir string, out chan Event) {
	defer close(out)
	defer fw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			n.handle(fw, dir, ev, out)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (n *Notify) handle(fw *fsnotify.Watcher, dir string, ev fsnotify.Event, out chan Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		if n.Recursive {
			if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
				if n.Depth > 0 && depthBelow(dir, ev.Name) >= n.Depth {
					return
				}
				// A new directory needs its own watch. Its entries
				// may predate the watch taking effect, so they are
				// announced here as creations.
				if err := n.addTree(fw, dir, ev.Name, out); err != nil {
					log.Warn().Err(err).Str("path", ev.Name).Msg("Failed to watch new directory")
				}
				return
			}
		}
		deliver(out, Event{Op: Create, Path: ev.Name})
	case ev.Op.Has(fsnotify.Write):
		deliver(out, Event{Op: Write, Path: ev.Name})
	case ev.Op.Has(fsnotify.Rename):
		deliver(out, Event{Op: Rename, Path: ev.Name})
	case ev.Op.Has(fsnotify.Remove):
		deliver(out, Event{Op: Remove, Path: ev.Name})
	}
}

// addTree puts a watch on dir and, in recursive mode, on every
// subdirectory below it within the depth limit. When out is non-nil
// the files already present are announced as Create events.
func (n *Notify) addTree(fw *fsnotify.Watcher, root, dir string, out chan Event) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			log.Warn().Err(err).Str("path", path).Msg("Skipping inaccessible path")
			return nil
		}
		if d.IsDir() {
			if path != dir && (!n.Recursive || (n.Depth > 0 && depthBelow(root, path) >= n.Depth)) {
				return fs.SkipDir
			}
			if err := fw.Add(path); err != nil {
				if path == dir {
					return err
				}
				log.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
				return fs.SkipDir
			}
			return nil
		}
		if out != nil && d.Type().IsRegular() {
			deliver(out, Event{Op: Create, Path: path})
		}
		return nil
	})
}
