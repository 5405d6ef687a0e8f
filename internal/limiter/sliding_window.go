package limiter

import (
	"sync"
	"time"
)

// CallWindow counts calls made during the trailing window. An endpoint's
// recent call rate feeds the selection score, so unlike CallBudget it never
// blocks; it only observes.
type CallWindow struct {
	mu         sync.Mutex
	window     time.Duration
	timestamps []time.Time
	now        func() time.Time
}

func NewCallWindow(window time.Duration) *CallWindow {
	if window <= 0 {
		window = time.Second
	}
	return &CallWindow{window: window, now: time.Now}
}

// Record notes one call at the current time.
func (w *CallWindow) Record() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.evict(now)
	w.timestamps = append(w.timestamps, now)
}

// Count returns the number of calls still inside the window.
func (w *CallWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.now())
	return len(w.timestamps)
}

// Rate is Count normalized to calls per second.
func (w *CallWindow) Rate() float64 {
	return float64(w.Count()) / w.window.Seconds()
}

// evict drops timestamps older than the window. Must be called with w.mu held.
func (w *CallWindow) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}
