// Package framequeue implements the ordered, lock-protected frame list
// described in spec §4.4: push/pop/find/remove plus an age-based sweep.
// Queue depths are small (a few hundred entries at peak per spec), so
// find-by-id is a deliberate linear scan rather than an indexed map (spec §9
// design note: "linear find-by-id is acceptable because queue depths are
// small").
package framequeue

import (
	"sync"
	"time"

	"github.com/ardkit/vtxgo/internal/framepool"
)

// Queue is a doubly-linked (here: slice-backed) ordered list of frames,
// guarded by a mutex standing in for the reference spinlock.
type Queue struct {
	mu      sync.Mutex
	items   []*framepool.Frame
	timeout time.Duration
}

// New creates a Queue whose Sweep drops entries older than timeout.
func New(timeout time.Duration) *Queue {
	return &Queue{timeout: timeout}
}

// Push retains f and appends it to the tail of the queue.
func (q *Queue) Push(f *framepool.Frame) {
	f.Retain()
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()
}

// Pop detaches and returns the head of the queue without touching its
// refcount — the caller inherits the reference Push took. Returns nil if
// the queue is empty.
func (q *Queue) Pop() *framepool.Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	f := q.items[0]
	copy(q.items, q.items[1:])
	q.items[len(q.items)-1] = nil
	q.items = q.items[:len(q.items)-1]
	return f
}

// Find scans linearly for a frame with the given frame_id and returns a
// borrowed reference (the caller must not assume exclusivity, and must not
// Release it without a matching Retain). Returns nil if not found.
func (q *Queue) Find(frameID uint16) *framepool.Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, f := range q.items {
		if f.FrameID == frameID {
			return f
		}
	}
	return nil
}

// Remove detaches f (by identity) and releases it. Returns true if f was
// found and removed.
func (q *Queue) Remove(f *framepool.Frame) bool {
	q.mu.Lock()
	idx := -1
	for i, item := range q.items {
		if item == f {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	copy(q.items[idx:], q.items[idx+1:])
	q.items[len(q.items)-1] = nil
	q.items = q.items[:len(q.items)-1]
	q.mu.Unlock()

	f.Release()
	return true
}

// Sweep releases every frame whose FirstReceiveTime is at least q.timeout
// old as of now, and returns the count swept. The engine's poll loop sweeps
// only its reassembly queue this way and counts the result as
// incomplete_frames.
func (q *Queue) Sweep(now time.Time) int {
	q.mu.Lock()
	kept := q.items[:0:0]
	var timedOut []*framepool.Frame
	for _, f := range q.items {
		if q.timeout > 0 && now.Sub(f.FirstReceiveTime) >= q.timeout {
			timedOut = append(timedOut, f)
			continue
		}
		kept = append(kept, f)
	}
	q.items = kept
	q.mu.Unlock()

	for _, f := range timedOut {
		f.Release()
	}
	return len(timedOut)
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Each calls fn for every frame currently in the queue, in order, while
// holding the queue lock. fn must not call back into the queue.
func (q *Queue) Each(fn func(*framepool.Frame)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, f := range q.items {
		fn(f)
	}
}
