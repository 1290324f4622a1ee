// Package fragtracker implements the slab allocator for per-fragment
// tracking arrays described in spec §4.3: contiguous, fixed-capacity arrays
// quantized to {1, 32, 128, 256, 512} slots, used both as RX receive
// bitmaps and as TX per-fragment retransmission records.
package fragtracker

import (
	"errors"
	"sync"
	"time"
)

// Classes are the slab capacities a tracker can be quantized to.
var Classes = [5]int{1, 32, 128, 256, 512}

// ErrTooLarge is returned by Acquire when n exceeds the largest slab class.
var ErrTooLarge = errors.New("fragtracker: capacity request exceeds largest slab class (512)")

// Slot is one fragment's bookkeeping record. RX reassembly uses Received;
// TX retransmission uses SeqNum/LastSendTime/RetransCount/Acknowledged — the
// same struct serves both roles (spec §4.3), with the unused half left zero.
type Slot struct {
	FragIndex    uint16
	SeqNum       uint32
	LastSendTime time.Time
	RetransCount uint32
	Acknowledged bool
	Received     bool
}

// Tracker is a contiguously-allocated array of Slots, quantized to a slab
// class but logically only Length slots long.
type Tracker struct {
	class  int
	Length int
	Slots  []Slot
}

func classFor(n int) (int, error) {
	for _, c := range Classes {
		if c >= n {
			return c, nil
		}
	}
	return 0, ErrTooLarge
}

// Pool is a slab allocator with one free list per capacity class.
type Pool struct {
	mu   sync.Mutex
	free map[int][]*Tracker
}

// NewPool creates an empty tracker pool; slabs are allocated lazily.
func NewPool() *Pool {
	return &Pool{free: make(map[int][]*Tracker, len(Classes))}
}

// Acquire returns a tracker of the smallest class with capacity >= n, with
// its logical length set to n and all slots zeroed. It fails with
// ErrTooLarge if n > 512.
func (p *Pool) Acquire(n int) (*Tracker, error) {
	class, err := classFor(n)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	bucket := p.free[class]
	var t *Tracker
	if len(bucket) > 0 {
		t = bucket[len(bucket)-1]
		p.free[class] = bucket[:len(bucket)-1]
	}
	p.mu.Unlock()

	if t == nil {
		t = &Tracker{class: class, Slots: make([]Slot, class)}
	}
	t.Length = n
	for i := range t.Slots {
		t.Slots[i] = Slot{}
	}
	return t, nil
}

// Release returns t to the free list of its capacity class.
func (p *Pool) Release(t *Tracker) {
	if t == nil {
		return
	}
	p.mu.Lock()
	p.free[t.class] = append(p.free[t.class], t)
	p.mu.Unlock()
}

// Capacity returns the tracker's quantized slab capacity (>= Length).
func (t *Tracker) Capacity() int { return cap(t.Slots) }

// AllAcknowledged reports whether every slot up to Length is Acknowledged —
// used by the sender to decide a frame on its reliable-data queue has been
// fully acknowledged and can be removed.
func (t *Tracker) AllAcknowledged() bool {
	for i := 0; i < t.Length; i++ {
		if !t.Slots[i].Acknowledged {
			return false
		}
	}
	return true
}

// AllReceived reports whether every slot up to Length is Received — used by
// RX to decide a reassembly entry is complete.
func (t *Tracker) AllReceived() bool {
	for i := 0; i < t.Length; i++ {
		if !t.Slots[i].Received {
			return false
		}
	}
	return true
}

// CountReceived returns how many slots up to Length are Received.
func (t *Tracker) CountReceived() int {
	n := 0
	for i := 0; i < t.Length; i++ {
		if t.Slots[i].Received {
			n++
		}
	}
	return n
}
