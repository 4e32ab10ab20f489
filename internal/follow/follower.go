package follow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dirtail/dirtail/internal/metrics"
	"github.com/dirtail/dirtail/internal/offset"
	"github.com/dirtail/dirtail/internal/output"
	"github.com/dirtail/dirtail/internal/pattern"
	"github.com/dirtail/dirtail/internal/registry"
	"github.com/dirtail/dirtail/internal/tail"
	"github.com/dirtail/dirtail/internal/watch"
)

const defaultRescanInterval = 5 * time.Second

// Options configures a Follower.
type Options struct {
	Dir       string
	Matcher   *pattern.Matcher
	Recursive bool
	Depth     int

	// InitialLines bounds how much of each startup file is shown
	// before following begins: negative shows everything, zero starts
	// at end of file, positive shows the last N lines. Files
	// discovered after startup always start from the beginning.
	InitialLines int

	// RescanInterval is how often the directory is re-listed to catch
	// anything the event stream missed.
	RescanInterval time.Duration

	Subscriber watch.Subscriber
	Mux        *output.Mux
	Offsets    offset.Store // optional
}

// Follower owns the registry and drives the whole pipeline: watcher
// events in, multiplexed bytes out. It is the sole mutator of the
// registry and the sole caller of the reader and the multiplexer, so
// none of them need locks.
type Follower struct {
	opts   Options
	reg    *registry.Registry
	reader tail.Reader
	tracer trace.Tracer

	// moved remembers the offsets of recently forgotten files by
	// identity, so a file renamed to another matching name resumes
	// where it stood instead of replaying its contents.
	moved map[registry.Identity]movedFile
}

type movedFile struct {
	offset int64
	when   time.Time
}

func New(opts Options) *Follower {
	if opts.RescanInterval <= 0 {
		opts.RescanInterval = defaultRescanInterval
	}
	return &Follower{
		opts:   opts,
		reg:    registry.New(),
		tracer: otel.Tracer("dirtail/follow"),
		moved:  make(map[registry.Identity]movedFile),
	}
}

// Run follows the directory until ctx is cancelled. Cancellation is
// the normal way to stop: pending output is flushed and Run returns
// nil.
func (f *Follower) Run(ctx context.Context) error {
	events, err := f.opts.Subscriber.Subscribe(ctx, f.opts.Dir)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", f.opts.Dir, err)
	}

	// Startup listing: existing files are dumped first, in path
	// order, before any live event is processed.
	f.scan(ctx, true)
	f.cycle(ctx)

	ticker := time.NewTicker(f.opts.RescanInterval)
	defer ticker.Stop()

	var lastClosed time.Time
	for {
		select {
		case <-ctx.Done():
			f.flush()
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					f.flush()
					return nil
				}
				// A source that dies twice in quick succession is
				// left alone; the rescan tick then keeps the follow
				// alive, just slower.
				if !lastClosed.IsZero() && time.Since(lastClosed) < time.Second {
					log.Warn().Msg("Watch event stream closed again, relying on rescans")
					events = nil
					continue
				}
				lastClosed = time.Now()
				log.Warn().Msg("Watch event stream closed, resubscribing")
				var err error
				events, err = f.opts.Subscriber.Subscribe(ctx, f.opts.Dir)
				if err != nil {
					log.Warn().Err(err).Msg("Failed to resubscribe, relying on rescans")
					events = nil
				}
				continue
			}
			f.apply(ev)
			f.drain(events)
			f.cycle(ctx)
		case <-ticker.C:
			f.scan(ctx, false)
			f.cycle(ctx)
		}
	}
}

// drain consumes everything already queued so one cycle covers a burst
// of events instead of running per event.
func (f *Follower) drain(events <-chan watch.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			f.apply(ev)
		default:
			return
		}
	}
}

func (f *Follower) apply(ev watch.Event) {
	metrics.Events.Inc()
	switch ev.Op {
	case watch.Create, watch.Write:
		f.observe(ev.Path, false)
	case watch.Remove, watch.Rename:
		f.handleGone(ev.Path)
	}
}

// observe marks path dirty, discovering it first when it is new and
// passes the filter.
func (f *Follower) observe(path string, initial bool) {
	if f.reg.MarkDirty(path) {
		return
	}
	if !f.matches(path) {
		return
	}
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return
	}
	f.discover(path, fi, initial)
}

func (f *Follower) discover(path string, fi os.FileInfo, initial bool) {
	tf, created := f.reg.Discover(path, fi)
	if !created {
		return
	}
	if mv, ok := f.moved[tf.Identity]; ok && mv.offset <= fi.Size() {
		// Same underlying file under a new name: pick up where the
		// old name left off.
		tf.Offset = mv.offset
		delete(f.moved, tf.Identity)
	} else if initial {
		f.seedOffset(tf, fi)
	}
	metrics.FilesTracked.Set(float64(f.reg.Len()))
	log.Debug().Str("path", path).Int64("offset", tf.Offset).Msg("Tracking file")
}

// seedOffset decides where a startup file begins: a persisted offset
// when the stored identity still matches, otherwise the InitialLines
// position.
func (f *Follower) seedOffset(tf *registry.TrackedFile, fi os.FileInfo) {
	if f.opts.Offsets != nil {
		off, ok, err := f.opts.Offsets.Get(context.Background(), tf.Path, tf.Identity)
		if err != nil {
			log.Warn().Err(err).Str("path", tf.Path).Msg("Failed to load stored offset")
		} else if ok && off <= fi.Size() {
			tf.Offset = off
			log.Debug().Str("path", tf.Path).Int64("offset", off).Msg("Resumed from stored offset")
			return
		}
	}
	if f.opts.InitialLines < 0 {
		return
	}
	fh, err := os.Open(tf.Path)
	if err != nil {
		return
	}
	defer fh.Close()
	off, err := tail.LastLinesOffset(fh, fi.Size(), f.opts.InitialLines)
	if err != nil {
		log.Warn().Err(err).Str("path", tf.Path).Msg("Failed to find tail start position")
		return
	}
	tf.Offset = off
}

// handleGone processes a remove or rename notification. The file is
// dropped only once it is confirmed gone; a path that still resolves
// was renamed away and back (or the event is stale) and stays tracked.
func (f *Follower) handleGone(path string) {
	if _, ok := f.reg.Get(path); !ok {
		return
	}
	if _, err := os.Stat(path); err == nil {
		f.reg.MarkDirty(path)
		return
	}
	f.forget(path)
}

func (f *Follower) forget(path string) {
	if tf, ok := f.reg.Get(path); ok && tf.Offset > 0 {
		f.moved[tf.Identity] = movedFile{offset: tf.Offset, when: time.Now()}
	}
	f.reg.Remove(path)
	f.opts.Mux.Deactivate(path)
	if f.opts.Offsets != nil {
		if err := f.opts.Offsets.Delete(context.Background(), path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to drop stored offset")
		}
	}
	metrics.FilesTracked.Set(float64(f.reg.Len()))
	log.Debug().Str("path", path).Msg("Stopped tracking removed file")
}

func (f *Follower) matches(path string) bool {
	rel, err := filepath.Rel(f.opts.Dir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return f.opts.Matcher.Matches(rel)
}

// scan re-lists the directory and reconciles the registry against it:
// unknown matching files are discovered, tracked files whose size or
// identity moved are marked dirty, and tracked paths that no longer
// exist are dropped. This is both the startup listing and the safety
// net behind coalesced or dropped events.
func (f *Follower) scan(ctx context.Context, initial bool) {
	_, span := f.tracer.Start(ctx, "rescan")
	defer span.End()
	metrics.Rescans.Inc()

	for id, mv := range f.moved {
		if time.Since(mv.when) > f.opts.RescanInterval {
			delete(f.moved, id)
		}
	}

	seen := make(map[string]struct{})
	err := watch.WalkFiles(f.opts.Dir, f.opts.Recursive, f.opts.Depth, func(path string, fi os.FileInfo) {
		seen[path] = struct{}{}
		if tf, ok := f.reg.Get(path); ok {
			if fi.Size() != tf.Offset || registry.Fingerprint(fi) != tf.Identity {
				f.reg.MarkDirty(path)
			}
			return
		}
		if !f.matches(path) {
			return
		}
		f.discover(path, fi, initial)
	})
	if err != nil {
		// Losing sight of the directory for one tick must not read
		// as mass deletion; the registry stays as it is until a
		// listing succeeds again.
		log.Warn().Err(err).Str("dir", f.opts.Dir).Msg("Directory scan failed, keeping state")
		return
	}

	for _, path := range f.reg.Paths() {
		if _, ok := seen[path]; !ok {
			f.forget(path)
		}
	}
	span.SetAttributes(attribute.Int("files.tracked", f.reg.Len()))
}

// cycle reads every dirty file in ascending path order and forwards
// whatever came out. One cycle emits each file's new bytes exactly
// once; files with nothing new stay silent.
func (f *Follower) cycle(ctx context.Context) {
	for _, tf := range f.reg.TakeDirty() {
		data, rotated, err := f.reader.ReadNew(tf)
		if err != nil {
			log.Warn().Err(err).Str("path", tf.Path).Msg("Read failed, retrying on next cycle")
		}
		if rotated {
			metrics.Rotations.Inc()
			log.Debug().Str("path", tf.Path).Msg("File rotated, following new contents")
		}
		if len(data) == 0 {
			continue
		}
		f.opts.Mux.Emit(tf.Path, data, !tf.FirstOutputDone)
		tf.FirstOutputDone = true
		metrics.BytesEmitted.Add(float64(len(data)))
		if f.opts.Offsets != nil {
			if err := f.opts.Offsets.Set(ctx, tf.Path, tf.Identity, tf.Offset); err != nil {
				log.Warn().Err(err).Str("path", tf.Path).Msg("Failed to persist offset")
			}
		}
	}
	f.flush()
}

func (f *Follower) flush() {
	if err := f.opts.Mux.Flush(); err != nil {
		log.Warn().Err(err).Msg("Failed to flush output")
	}
}
