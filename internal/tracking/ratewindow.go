package tracking

import (
	"context"
	"sync"
	"time"
)

// RateWindow is a fixed-window counter reset every wall-clock minute. Callers
// over the cap block until the window resets instead of failing; the lock is
// never held while waiting.
type RateWindow struct {
	mu    sync.Mutex
	cap   int
	count int
	start time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRateWindow(capPerMinute int) *RateWindow {
	return &RateWindow{cap: capPerMinute, now: time.Now, sleep: sleepCtx}
}

// Acquire blocks until a slot is available in the current minute window.
func (w *RateWindow) Acquire(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := w.now()
		window := now.Truncate(time.Minute)
		if !window.Equal(w.start) {
			w.start = window
			w.count = 0
		}
		if w.cap <= 0 || w.count < w.cap {
			w.count++
			w.mu.Unlock()
			return nil
		}
		wait := window.Add(time.Minute).Sub(now)
		w.mu.Unlock()
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Used reports how many slots the current window has consumed.
func (w *RateWindow) Used() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.now().Truncate(time.Minute).Equal(w.start) {
		return 0
	}
	return w.count
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
