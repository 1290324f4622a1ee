package framequeue

import (
	"testing"
	"time"

	"github.com/ardkit/vtxgo/internal/framepool"
)

func TestPushPopOrder(t *testing.T) {
	pool := framepool.New(4, framepool.ControlCapacity, framepool.Control)
	q := New(time.Hour)

	f1 := pool.Acquire()
	f1.FrameID = 1
	f2 := pool.Acquire()
	f2.FrameID = 2
	q.Push(f1)
	q.Push(f2)
	f1.Release()
	f2.Release() // queue still holds its own reference

	got := q.Pop()
	if got.FrameID != 1 {
		t.Errorf("Pop() frameID = %d, want 1", got.FrameID)
	}
	got.Release()

	got2 := q.Pop()
	if got2.FrameID != 2 {
		t.Errorf("Pop() frameID = %d, want 2", got2.FrameID)
	}
	got2.Release()

	if q.Pop() != nil {
		t.Error("Pop() on empty queue should return nil")
	}
}

func TestFindBorrowsReference(t *testing.T) {
	pool := framepool.New(1, framepool.ControlCapacity, framepool.Control)
	q := New(time.Hour)
	f := pool.Acquire()
	f.FrameID = 7
	q.Push(f)
	f.Release()

	found := q.Find(7)
	if found == nil {
		t.Fatal("Find(7) returned nil")
	}
	if found.FrameID != 7 {
		t.Errorf("Find(7).FrameID = %d", found.FrameID)
	}
	if q.Find(8) != nil {
		t.Error("Find(8) should return nil")
	}
}

func TestRemoveReleases(t *testing.T) {
	pool := framepool.New(1, framepool.ControlCapacity, framepool.Control)
	q := New(time.Hour)
	f := pool.Acquire()
	q.Push(f)
	f.Release() // refcount now 1 (queue's own)

	if !q.Remove(f) {
		t.Fatal("Remove should find and remove f")
	}
	if pool.Outstanding() != 0 {
		t.Errorf("Outstanding = %d, want 0 after Remove releases the queue's ref", pool.Outstanding())
	}
	if q.Remove(f) {
		t.Error("second Remove of the same frame should fail")
	}
}

func TestSweepDropsTimedOutFrames(t *testing.T) {
	pool := framepool.New(2, framepool.MediaCapacity, framepool.Media)
	q := New(100 * time.Millisecond)

	now := time.Now()
	stale := pool.Acquire()
	stale.FirstReceiveTime = now.Add(-200 * time.Millisecond)
	q.Push(stale)
	stale.Release()

	fresh := pool.Acquire()
	fresh.FirstReceiveTime = now
	q.Push(fresh)
	fresh.Release()

	n := q.Sweep(now)
	if n != 1 {
		t.Fatalf("Sweep swept %d frames, want 1", n)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1 after sweep", q.Len())
	}
	remaining := q.Pop()
	if remaining == nil || remaining.FirstReceiveTime != now {
		t.Error("sweep removed the wrong frame")
	}
}
