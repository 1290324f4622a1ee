// Package framepool implements the reference-counted frame buffers described
// in spec §4.2: two size classes (media and control), a mutex-guarded free
// list standing in for the reference spinlock (see SPEC_FULL.md §9), and
// unbounded growth under load.
package framepool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardkit/vtxgo/internal/fragtracker"
	"github.com/ardkit/vtxgo/internal/wire"
)

// SizeClass identifies which capacity class a pool serves.
type SizeClass int

const (
	Media SizeClass = iota
	Control
)

// Default capacities per spec §6: media frames up to 512 KiB, control
// frames/datagrams up to 128 bytes.
const (
	MediaCapacity   = 512 * 1024
	ControlCapacity = 128
)

// State is a frame's lifecycle state (spec §3).
type State int

const (
	StateFree State = iota
	StateSending
	StateReceiving
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateSending:
		return "sending"
	case StateReceiving:
		return "receiving"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Frame is a reference-counted buffer holding one logical media or control
// unit. A freshly-acquired Frame has refcount 1; Retain bumps it, Release
// drops it and resets+returns the frame to its pool at zero.
type Frame struct {
	pool *Pool

	// mu guards buf and length; reset also holds it while clearing the
	// metadata fields, which are otherwise read and written without it.
	// refcount is independently atomic per spec §5 ("every frame's refcount
	// [is] atomic; no lock is required for their reads/writes"). The mutex
	// keeps the payload buffer consistent for a frame handed across
	// goroutines outside a queue (e.g. the retained last-I-frame).
	mu sync.Mutex

	refcount atomic.Int32

	buf    []byte
	length int

	FrameID   uint16
	FrameType wire.FrameType
	State     State

	Tracker *fragtracker.Tracker

	FirstReceiveTime time.Time
	LastReceiveTime  time.Time
	SendTime         time.Time
	RetransCount     uint32
}

// Capacity returns the frame's fixed backing-buffer capacity.
func (f *Frame) Capacity() int {
	return cap(f.buf)
}

// Payload returns the frame's current contents (length bytes of buf). The
// returned slice aliases the frame's internal buffer and is only valid while
// the caller holds a reference.
func (f *Frame) Payload() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf[:f.length]
}

// SetPayload copies p into the frame's buffer, replacing its contents. It
// fails (returns false) if p does not fit in Capacity.
func (f *Frame) SetPayload(p []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(p) > cap(f.buf) {
		return false
	}
	f.buf = f.buf[:len(p)]
	copy(f.buf, p)
	f.length = len(p)
	return true
}

// WriteAt copies p into the frame's buffer at offset, growing the logical
// length if this extends it. Returns false if offset+len(p) exceeds Capacity
// (spec §4.6 reassembly: "reject with a boundary error").
func (f *Frame) WriteAt(offset int, p []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset < 0 || offset+len(p) > cap(f.buf) {
		return false
	}
	if offset+len(p) > len(f.buf) {
		f.buf = f.buf[:offset+len(p)]
	}
	copy(f.buf[offset:offset+len(p)], p)
	if offset+len(p) > f.length {
		f.length = offset + len(p)
	}
	return true
}

// Len returns the frame's current logical length.
func (f *Frame) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.length
}

// SetLen sets the frame's logical length directly, clamped to Capacity, for
// callers that know the total payload size up front.
func (f *Frame) SetLen(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > cap(f.buf) {
		n = cap(f.buf)
	}
	f.buf = f.buf[:n]
	f.length = n
}

// Retain increments the frame's refcount and returns the same frame, in the
// style of the reference implementation's retain/release pairs (spec §9).
func (f *Frame) Retain() *Frame {
	f.refcount.Add(1)
	return f
}

// Release decrements the frame's refcount. When it reaches zero the frame is
// reset and returned to its originating pool.
func (f *Frame) Release() {
	if f.refcount.Add(-1) == 0 {
		f.pool.release(f)
	}
}

// RefCount reports the frame's current reference count (for diagnostics/tests).
func (f *Frame) RefCount() int32 {
	return f.refcount.Load()
}

func (f *Frame) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = f.buf[:0]
	f.length = 0
	f.FrameID = 0
	f.FrameType = 0
	f.State = StateFree
	f.Tracker = nil
	f.FirstReceiveTime = time.Time{}
	f.LastReceiveTime = time.Time{}
	f.SendTime = time.Time{}
	f.RetransCount = 0
}

// Pool is a growable, mutex-guarded free list of same-capacity Frames.
type Pool struct {
	mu       sync.Mutex
	free     []*Frame
	capacity int
	class    SizeClass

	allocated atomic.Int64
	acquired  atomic.Int64
	released  atomic.Int64
}

// New creates a Pool pre-populated with initialCount frames of the given
// capacity and size class.
func New(initialCount, capacity int, class SizeClass) *Pool {
	p := &Pool{capacity: capacity, class: class}
	p.free = make([]*Frame, 0, initialCount)
	for i := 0; i < initialCount; i++ {
		p.free = append(p.free, p.newFrame())
	}
	return p
}

func (p *Pool) newFrame() *Frame {
	p.allocated.Add(1)
	f := &Frame{pool: p, buf: make([]byte, 0, p.capacity)}
	f.refcount.Store(0)
	return f
}

// Acquire pops a frame from the free list, or allocates a new one if the
// list is empty (growth is unbounded, per spec §4.2). The returned frame has
// refcount 1, state Free, and length 0; its buffer contents are unspecified.
func (p *Pool) Acquire() *Frame {
	p.mu.Lock()
	n := len(p.free)
	var f *Frame
	if n > 0 {
		f = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if f == nil {
		// Allocation happens outside the lock, per spec §4.2: "the free-list
		// lock must not be held during allocation of new buffers."
		f = p.newFrame()
	}

	f.refcount.Store(1)
	f.State = StateFree
	p.acquired.Add(1)
	return f
}

// release resets f and returns it to the free list. Called by Frame.Release
// once the refcount reaches zero.
func (p *Pool) release(f *Frame) {
	f.reset()
	p.released.Add(1)
	p.mu.Lock()
	p.free = append(p.free, f)
	p.mu.Unlock()
}

// Capacity returns the per-frame buffer capacity this pool serves.
func (p *Pool) Capacity() int { return p.capacity }

// Class reports whether this is the media or control pool.
func (p *Pool) Class() SizeClass { return p.class }

// Outstanding returns the number of frames acquired but not yet released,
// for diagnostics and tests.
func (p *Pool) Outstanding() int64 {
	return p.acquired.Load() - p.released.Load()
}
