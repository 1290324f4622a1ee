// Package stats holds the per-endpoint counters named throughout spec §7/§8:
// every number here is incremented inline by the engine and is safe to read
// concurrently while the engine runs. Counters are plain atomics rather than
// a single mutex-guarded struct, since each is independent and none needs to
// be read-modify-written together with another.
package stats

import "sync/atomic"

// Stats is the statistics record carried by each endpoint (spec §3: "a
// statistics, guarded by their own lock" — realized here as a struct of
// independent atomics, which needs no lock at all).
type Stats struct {
	ChecksumErrors   atomic.Int64
	PacketInvalid    atomic.Int64
	LostPackets      atomic.Int64
	DupPackets       atomic.Int64
	RecvFrags        atomic.Int64
	RetransPackets   atomic.Int64
	IncompleteFrames atomic.Int64
	NoMemory         atomic.Int64
	OverflowErrors   atomic.Int64
	FramesSent       atomic.Int64
	FramesDelivered  atomic.Int64
	HandshakeRetrans atomic.Int64
	LastSkewMs       atomic.Int64
}

// Snapshot is a point-in-time copy of Stats suitable for logging or export.
type Snapshot struct {
	ChecksumErrors   int64
	PacketInvalid    int64
	LostPackets      int64
	DupPackets       int64
	RecvFrags        int64
	RetransPackets   int64
	IncompleteFrames int64
	NoMemory         int64
	OverflowErrors   int64
	FramesSent       int64
	FramesDelivered  int64
	HandshakeRetrans int64
	LastSkewMs       int64
}

// Snapshot reads all counters. Individual fields may be torn relative to one
// another (each atomic load is independent) but each field itself is exact.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		ChecksumErrors:   s.ChecksumErrors.Load(),
		PacketInvalid:    s.PacketInvalid.Load(),
		LostPackets:      s.LostPackets.Load(),
		DupPackets:       s.DupPackets.Load(),
		RecvFrags:        s.RecvFrags.Load(),
		RetransPackets:   s.RetransPackets.Load(),
		IncompleteFrames: s.IncompleteFrames.Load(),
		NoMemory:         s.NoMemory.Load(),
		OverflowErrors:   s.OverflowErrors.Load(),
		FramesSent:       s.FramesSent.Load(),
		FramesDelivered:  s.FramesDelivered.Load(),
		HandshakeRetrans: s.HandshakeRetrans.Load(),
		LastSkewMs:       s.LastSkewMs.Load(),
	}
}
