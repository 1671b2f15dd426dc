package segment

import "sync"

// Registry is the shared per-download bookkeeping for segment ownership and
// per-connection speed trackers. Ownership is exclusive: a segment is mutated
// only by the connection it is currently granted to, which is what makes
// disjoint-offset writes safe without further locking.
type Registry struct {
	mu       sync.Mutex
	segments []*Segment
	owners   map[int]string
	complete map[int]bool
	trackers map[string]*SpeedTracker
}

func NewRegistry(segments []*Segment) *Registry {
	return &Registry{
		segments: segments,
		owners:   make(map[int]string),
		complete: make(map[int]bool),
		trackers: make(map[string]*SpeedTracker),
	}
}

func (r *Registry) Segments() []*Segment { return r.segments }

// GetSegment grants the segment at index to connID, or returns nil when the
// index is out of range, the segment is complete, or another connection owns it.
func (r *Registry) GetSegment(connID string, index int) *Segment {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.segments) {
		return nil
	}
	if r.complete[index] {
		return nil
	}
	if owner, ok := r.owners[index]; ok && owner != connID {
		return nil
	}

	r.owners[index] = connID
	return r.segments[index]
}

// Assign grants the lowest-indexed unowned, incomplete segment to connID.
func (r *Registry) Assign(connID string) *Segment {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.segments {
		if r.complete[i] {
			continue
		}
		if _, owned := r.owners[i]; owned {
			continue
		}
		r.owners[i] = connID
		return s
	}
	return nil
}

// CompleteSegment retires a segment and releases connID's claim on it.
func (r *Registry) CompleteSegment(connID string, s *Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.complete[s.Index()] = true
	if r.owners[s.Index()] == connID {
		delete(r.owners, s.Index())
	}
}

// CancelSegment releases every segment connID currently owns.
func (r *Registry) CancelSegment(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for idx, owner := range r.owners {
		if owner == connID {
			delete(r.owners, idx)
		}
	}
}

func (r *Registry) IsComplete(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete[index]
}

// AllComplete reports whether every segment has been retired.
func (r *Registry) AllComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.segments {
		if !r.complete[i] {
			return false
		}
	}
	return true
}

// TotalWritten sums persisted bytes across all segments.
func (r *Registry) TotalWritten() int64 {
	var sum int64
	for _, s := range r.segments {
		sum += s.WrittenLength()
	}
	return sum
}

// RegisterSpeedTracker stores a tracker under its connection id. The first
// registration wins; retries of the same id reuse the existing tracker.
func (r *Registry) RegisterSpeedTracker(t *SpeedTracker) *SpeedTracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.trackers[t.ID()]; ok {
		return existing
	}
	r.trackers[t.ID()] = t
	return t
}

func (r *Registry) SpeedTracker(connID string) *SpeedTracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackers[connID]
}

// AggregateSpeed sums the instantaneous speed of every active connection.
func (r *Registry) AggregateSpeed() int64 {
	r.mu.Lock()
	trackers := make([]*SpeedTracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		trackers = append(trackers, t)
	}
	r.mu.Unlock()

	var sum int64
	for _, t := range trackers {
		if t.Active() {
			sum += t.Speed()
		}
	}
	return sum
}

// Speeds snapshots per-connection speeds for progress reporting.
func (r *Registry) Speeds() map[string]int64 {
	r.mu.Lock()
	trackers := make([]*SpeedTracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		trackers = append(trackers, t)
	}
	r.mu.Unlock()

	out := make(map[string]int64, len(trackers))
	for _, t := range trackers {
		if t.Active() {
			out[t.ID()] = t.Speed()
		}
	}
	return out
}
