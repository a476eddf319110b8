// Package media implements the bounded retry policy for local camera and
// microphone acquisition, with deterministic release on teardown.
package media

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Track is one acquired local media track. Close must stop the capture.
type Track interface {
	ID() string
	Close() error
}

// AcquireFunc obtains the local tracks. It is called once per attempt.
type AcquireFunc func(ctx context.Context) ([]Track, error)

// State is the terminal acquisition outcome. IsReady is true even after all
// retries failed: the client proceeds degraded rather than blocking the
// session. Err carries the last failure in that case.
type State struct {
	IsReady bool
	Err     error
}

const defaultMaxAttempts = 3

// Backoff is the delay before retry n (1-based): linear, capped at 3s.
func Backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * time.Second
	if d > 3*time.Second {
		d = 3 * time.Second
	}
	return d
}

// Acquirer runs the acquisition attempts and owns the resulting tracks.
// Close releases them unconditionally, whichever retry path succeeded, and
// cancels any backoff still pending.
type Acquirer struct {
	acquire     AcquireFunc
	maxAttempts int
	backoff     func(attempt int) time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	tracks []Track
	cancel context.CancelFunc
	closed bool
}

// Option tweaks an Acquirer. Tests inject a fake sleeper through these.
type Option func(*Acquirer)

func WithMaxAttempts(n int) Option {
	return func(a *Acquirer) { a.maxAttempts = n }
}

func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(a *Acquirer) { a.backoff = f }
}

func WithSleeper(f func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Acquirer) { a.sleep = f }
}

func NewAcquirer(acquire AcquireFunc, opts ...Option) *Acquirer {
	a := &Acquirer{
		acquire:     acquire,
		maxAttempts: defaultMaxAttempts,
		backoff:     Backoff,
		sleep:       sleepTimer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func sleepTimer(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run performs up to maxAttempts acquisitions. It never returns a non-ready
// state except when torn down mid-retry; exhausted retries yield
// {IsReady: true, Err: last} and no timer remains pending.
func (a *Acquirer) Run(ctx context.Context) State {
	ctx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		cancel()
		return State{Err: context.Canceled}
	}
	a.cancel = cancel
	a.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		tracks, err := a.acquire(ctx)
		if err == nil {
			a.mu.Lock()
			if a.closed {
				a.mu.Unlock()
				// Torn down while acquiring: release immediately.
				releaseTracks(tracks)
				return State{Err: context.Canceled}
			}
			a.tracks = tracks
			a.mu.Unlock()
			log.Info().Str("module", "media").Int("attempt", attempt).Int("tracks", len(tracks)).Msg("media acquired")
			return State{IsReady: true}
		}
		lastErr = err
		log.Warn().Err(err).Str("module", "media").Int("attempt", attempt).Msg("media acquisition failed")

		if attempt == a.maxAttempts {
			break
		}
		if err := a.sleep(ctx, a.backoff(attempt)); err != nil {
			// Teardown during backoff: no further attempt may run.
			return State{Err: err}
		}
	}

	// Degraded but ready: the session proceeds without local media.
	return State{IsReady: true, Err: lastErr}
}

// Close cancels any pending retry and stops every acquired track. Safe to
// call more than once and from any retry path.
func (a *Acquirer) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	cancel := a.cancel
	tracks := a.tracks
	a.tracks = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	releaseTracks(tracks)
}

// Tracks returns the currently held tracks.
func (a *Acquirer) Tracks() []Track {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Track(nil), a.tracks...)
}

func releaseTracks(tracks []Track) {
	for _, t := range tracks {
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("track", t.ID()).Msg("track close")
		}
	}
}
