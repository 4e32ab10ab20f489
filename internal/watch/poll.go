package watch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultPollInterval = 500 * time.Millisecond

// Poller synthesizes change events by diffing successive directory
// listings. It is the degraded-mode substitute for native
// notifications: slower, but it works on any filesystem.
type Poller struct {
	Interval  time.Duration
	Recursive bool
	Depth     int
}

type pollState struct {
	size    int64
	modTime time.Time
}

func (p *Poller) Subscribe(ctx context.Context, dir string) (<-chan Event, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	// The baseline is taken now: files already present produce no
	// Create events, startup discovery handles them.
	prev, err := p.listing(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	out := make(chan Event, eventBufferSize)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur, err := p.listing(dir)
				if err != nil {
					// Failing to list the directory is not the same
					// as every file in it disappearing.
					log.Warn().Err(err).Str("dir", dir).Msg("Directory listing failed, skipping diff")
					continue
				}
				for path, st := range cur {
					old, ok := prev[path]
					switch {
					case !ok:
						deliver(out, Event{Op: Create, Path: path})
					case st.size != old.size || !st.modTime.Equal(old.modTime):
						deliver(out, Event{Op: Write, Path: path})
					}
				}
				for path := range prev {
					if _, ok := cur[path]; !ok {
						deliver(out, Event{Op: Remove, Path: path})
					}
				}
				prev = cur
			}
		}
	}()
	return out, nil
}

func (p *Poller) listing(dir string) (map[string]pollState, error) {
	m := make(map[string]pollState)
	err := WalkFiles(dir, p.Recursive, p.Depth, func(path string, fi os.FileInfo) {
		m[path] = pollState{size: fi.Size(), modTime: fi.ModTime()}
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
