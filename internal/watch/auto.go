package watch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dirtail/dirtail/internal/retry"
)

// Auto prefers native notifications and degrades to polling when the
// platform source cannot be opened (unsupported filesystem, watch
// descriptor exhaustion, permissions). Degradation is logged once and
// is not an error.
type Auto struct {
	Native   Subscriber
	Fallback Subscriber

	degraded bool
}

func (a *Auto) Subscribe(ctx context.Context, dir string) (<-chan Event, error) {
	var events <-chan Event
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, func() error {
		var err error
		events, err = a.Native.Subscribe(ctx, dir)
		return err
	})
	if err == nil {
		return events, nil
	}

	a.degraded = true
	log.Warn().Err(err).Str("dir", dir).Msg("Native file notifications unavailable, falling back to polling")
	return a.Fallback.Subscribe(ctx, dir)
}

// Degraded reports whether the last Subscribe fell back to polling.
func (a *Auto) Degraded() bool {
	return a.degraded
}
