package engine

import (
	"net"

	"github.com/ardkit/vtxgo/internal/conn"
	"github.com/ardkit/vtxgo/internal/fragtracker"
	"github.com/ardkit/vtxgo/internal/framepool"
	"github.com/ardkit/vtxgo/internal/wire"
)

// SubmitFrame sends one media frame, fragmenting it across the MTU (spec
// §4.6). Key frames (I, SPS, PPS) are retained and per-fragment
// retransmitted until acknowledged or the retry budget is exhausted (spec
// §4.2 "retained last I-frame"); P-frames and audio are sent best-effort and
// never retransmitted — a loss there is simply dropped, never recovered
// (spec §1 latency-over-completeness design goal).
func (e *Endpoint) SubmitFrame(frameType wire.FrameType, payload []byte) error {
	if !frameType.IsMedia() {
		return ErrInvalidParam
	}
	if e.machine.State() != conn.Connected {
		return ErrNotReady
	}
	if len(payload) > e.cfg.MaxFramePayload {
		return ErrOverflow
	}
	peer := e.machine.Peer()
	if peer == nil {
		return ErrNotReady
	}

	fragCount := wire.FragmentCount(len(payload), e.cfg.MTU)
	if fragCount == 0 {
		return ErrInvalidParam
	}

	frameID := e.nextFrameID()
	now := e.clock()

	var tracker *fragtracker.Tracker
	var nf *framepool.Frame
	if isKeyFrameType(frameType) {
		var err error
		tracker, err = e.fragPool.Acquire(fragCount)
		if err != nil {
			e.stats.NoMemory.Add(1)
			return ErrNoMemory
		}
		nf = e.mediaPool.Acquire()
		if !nf.SetPayload(payload) {
			nf.Release()
			e.fragPool.Release(tracker)
			return ErrOverflow
		}
		nf.FrameID = frameID
		nf.FrameType = frameType
		nf.State = framepool.StateSending
		nf.Tracker = tracker
		nf.SendTime = now
	}

	for i := 0; i < fragCount; i++ {
		size := wire.FragmentSize(len(payload), i, e.cfg.MTU)
		offset := wire.FragmentOffset(i, e.cfg.MTU)
		h := wire.Header{
			SeqNum:      e.nextSeq(),
			FrameID:     frameID,
			FrameType:   frameType,
			FragIndex:   uint16(i),
			TotalFrags:  uint16(fragCount),
			PayloadSize: uint16(size),
		}
		if i == fragCount-1 {
			h.Flags |= wire.FlagLastFrag
		}
		if err := e.sendPacket(h, payload[offset:offset+size], peer); err != nil {
			if nf != nil {
				nf.Release()
			}
			return err
		}
		if tracker != nil {
			tracker.Slots[i].LastSendTime = now
		}
	}

	e.stats.FramesSent.Add(1)

	if nf != nil {
		e.iframeMu.Lock()
		old := e.retainedIFrame
		e.retainedIFrame = nf
		e.iframeMu.Unlock()
		if old != nil {
			old.Release()
		}
	}
	return nil
}

// SendUserData sends one reliable, single-fragment control datagram (spec
// §4.4's "reliable data queue"): USER payloads, or RX-initiated START/STOP
// media control. It is pushed onto the retransmission queue immediately so
// a lost packet is retried on the next sweep, unlike media frames.
func (e *Endpoint) SendUserData(dataType wire.FrameType, payload []byte) error {
	switch dataType {
	case wire.FrameTypeUser, wire.FrameTypeStart, wire.FrameTypeStop:
	default:
		return ErrInvalidParam
	}
	if e.machine.State() != conn.Connected {
		return ErrNotReady
	}
	if len(payload) > e.controlPool.Capacity() {
		return ErrOverflow
	}
	peer := e.machine.Peer()
	if peer == nil {
		return ErrNotReady
	}

	tracker, err := e.fragPool.Acquire(1)
	if err != nil {
		e.stats.NoMemory.Add(1)
		return ErrNoMemory
	}
	nf := e.controlPool.Acquire()
	if !nf.SetPayload(payload) {
		nf.Release()
		e.fragPool.Release(tracker)
		return ErrOverflow
	}

	frameID := e.nextFrameID()
	now := e.clock()
	nf.FrameID = frameID
	nf.FrameType = dataType
	nf.State = framepool.StateSending
	nf.Tracker = tracker
	nf.SendTime = now
	tracker.Slots[0].LastSendTime = now

	e.txReliableQueue.Push(nf)
	nf.Release() // the queue now owns the sole reference

	h := wire.Header{
		SeqNum:      e.nextSeq(),
		FrameID:     frameID,
		FrameType:   dataType,
		FragIndex:   0,
		TotalFrags:  1,
		PayloadSize: uint16(len(payload)),
		Flags:       wire.FlagLastFrag,
	}
	return e.sendPacket(h, payload, peer)
}

// sendPacket serializes h and appends payload into a single freshly
// allocated buffer and issues one WriteToUDP call. The reference design scatter-writes the
// header and payload as two segments to avoid a copy; net.UDPConn offers no
// vectored write to an unconnected peer address, so this engine accepts one
// copy instead (see DESIGN.md).
func (e *Endpoint) sendPacket(h wire.Header, payload []byte, peer *net.UDPAddr) error {
	prefix := e.codec.Encode(h, uint64(e.clock().UnixMilli()))
	buf := make([]byte, len(prefix)+len(payload))
	copy(buf, prefix)
	copy(buf[len(prefix):], payload)
	wire.ComputeAndSetCRC(buf, payload)

	_, err := e.sock.WriteToUDP(buf, peer)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ErrBusy
		}
		return err
	}
	return nil
}
