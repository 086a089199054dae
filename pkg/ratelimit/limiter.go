// Package ratelimit implements fixed-window admission control keyed by client
// identity. The limiter is an injected component owning its own
// synchronization; there is no ambient shared state.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a single admission check. ResetAfter is measured
// with the limiter's own clock, so header math stays consistent with the
// admission decision even when a test injects a fake time source.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	ResetAfter time.Duration
}

// Limiter decides whether a request identified by key is admitted.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// window tracks the admission count for one key in the current fixed window.
type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow is an in-memory fixed-window limiter: each key gets at most
// limit admissions per window, and the count resets when the window elapses.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock overrides the time source. Tests inject a fake clock here.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) { l.now = now }
}

// NewFixedWindow creates a limiter admitting limit requests per key per
// windowSize.
func NewFixedWindow(limit int, windowSize time.Duration, opts ...Option) *FixedWindow {
	if limit <= 0 {
		limit = 1
	}
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	l := &FixedWindow{
		limit:   limit,
		window:  windowSize,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow admits or rejects one request for key. Concurrent calls for the same
// key increment the same counter; the count is updated under the limiter's
// lock so no admission is lost.
func (l *FixedWindow) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.windows[key] = w
	}

	d := Decision{Limit: l.limit, ResetAt: w.resetAt, ResetAfter: w.resetAt.Sub(now)}
	if w.count >= l.limit {
		return d, nil
	}

	w.count++
	d.Allowed = true
	d.Remaining = l.limit - w.count
	return d, nil
}

// StartCleanup launches a goroutine that periodically drops expired windows,
// so idle keys do not accumulate and Allow never pays for a map sweep. It
// stops when ctx is cancelled. Allow stays correct without it: an expired
// window is replaced on the key's next request.
func (l *FixedWindow) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.window
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evictExpired(l.now())
			}
		}
	}()
}

// evictExpired drops windows that have fully elapsed.
func (l *FixedWindow) evictExpired(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
