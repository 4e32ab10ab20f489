package watch

import (
	"context"
	"errors"
	"testing"
)

type stubSubscriber struct {
	err    error
	events chan Event
	calls  int
}

func (s *stubSubscriber) Subscribe(ctx context.Context, dir string) (<-chan Event, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

func TestAutoPrefersNative(t *testing.T) {
	native := &stubSubscriber{events: make(chan Event)}
	fallback := &stubSubscriber{events: make(chan Event)}
	a := &Auto{Native: native, Fallback: fallback}

	events, err := a.Subscribe(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if events != (<-chan Event)(native.events) {
		t.Error("expected native event channel")
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times, want 0", fallback.calls)
	}
	if a.Degraded() {
		t.Error("Degraded() = true after successful native subscribe")
	}
}

func TestAutoFallsBackWhenNativeFails(t *testing.T) {
	native := &stubSubscriber{err: errors.New("inotify limit reached")}
	fallback := &stubSubscriber{events: make(chan Event)}
	a := &Auto{Native: native, Fallback: fallback}

	events, err := a.Subscribe(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if events != (<-chan Event)(fallback.events) {
		t.Error("expected fallback event channel")
	}
	if native.calls < 2 {
		t.Errorf("native subscribe attempted %d times, want a retry before degrading", native.calls)
	}
	if !a.Degraded() {
		t.Error("Degraded() = false after fallback")
	}
}
