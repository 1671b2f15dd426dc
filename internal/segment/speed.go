package segment

import (
	"sync"
	"time"
)

// speedWindow bounds how much history feeds the instantaneous speed.
const speedWindow = 5 * time.Second

type sample struct {
	at    time.Time
	bytes int64
}

// SpeedTracker accumulates bytes-over-time for exactly one connection id.
// It is registered once in the Registry and reused across retries of the
// same id. Start and Stop are paired by the transfer command's lifecycle.
type SpeedTracker struct {
	id string

	mu      sync.Mutex
	now     func() time.Time
	start   time.Time
	active  bool
	total   int64
	samples []sample
}

func NewSpeedTracker(id string) *SpeedTracker {
	return &SpeedTracker{
		id:  id,
		now: time.Now,
	}
}

func (t *SpeedTracker) ID() string { return t.id }

// SetClock swaps the time source. Tests only.
func (t *SpeedTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// DownloadStart opens an active interval. Restarting on the same tracker
// (a retried connection) resets the measurement window, not the total.
func (t *SpeedTracker) DownloadStart() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.start = t.now()
	t.active = true
	t.samples = t.samples[:0]
}

func (t *SpeedTracker) DownloadStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
}

func (t *SpeedTracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *SpeedTracker) StartTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.start
}

func (t *SpeedTracker) TotalBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// AddBytes records raw bytes read off the wire.
func (t *SpeedTracker) AddBytes(n int64) {
	if n <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total += n
	t.samples = append(t.samples, sample{at: t.now(), bytes: n})
	t.trim(t.now())
}

// Speed reports the instantaneous speed in bytes/sec over the sliding
// window, clamped to the time actually spent downloading.
func (t *SpeedTracker) Speed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.trim(now)

	var sum int64
	for _, s := range t.samples {
		sum += s.bytes
	}

	elapsed := now.Sub(t.start)
	if elapsed > speedWindow {
		elapsed = speedWindow
	}
	if elapsed <= 0 {
		return 0
	}

	return sum * int64(time.Second) / int64(elapsed)
}

func (t *SpeedTracker) trim(now time.Time) {
	cutoff := now.Add(-speedWindow)
	i := 0
	for i < len(t.samples) && t.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.samples = append(t.samples[:0], t.samples[i:]...)
	}
}
