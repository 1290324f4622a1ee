package engine

import (
	"net"
	"time"

	"github.com/ardkit/vtxgo/internal/conn"
	"github.com/ardkit/vtxgo/internal/framepool"
	"github.com/ardkit/vtxgo/internal/sessionlog"
	"github.com/ardkit/vtxgo/internal/wire"
)

// sweep runs the scheduled half of one Poll call: handshake/heartbeat
// housekeeping, reliable-data and retained-I-frame retransmission, and the
// reassembly-timeout sweep (spec §4.6). All of it is driven from whatever
// goroutine calls Poll — there is no background timer.
func (e *Endpoint) sweep() {
	now := e.clock()
	peer := e.machine.Peer()

	switch e.machine.PollHandshake(now) {
	case conn.HandshakeActionRetransmit:
		e.stats.HandshakeRetrans.Add(1)
		if peer != nil {
			e.resendHandshake(peer)
		}
	case conn.HandshakeActionGiveUp:
		logf(e, "handshake retry budget exhausted, giving up")
		e.logEvent(sessionlog.EventHandshakeFailed, "handshake retry budget exhausted")
		if e.role == conn.RoleRX && e.cb.OnConnect != nil {
			e.cb.OnConnect(false)
		}
	}

	if e.role == conn.RoleRX && e.machine.ShouldSendHeartbeat(now) {
		if peer != nil {
			e.sendHeartbeat(peer)
		}
		e.machine.MarkHeartbeatSent(now)
	}

	if e.machine.CheckLivenessTimeout(now) {
		logf(e, "liveness timeout, connection lost")
		e.logEvent(sessionlog.EventHeartbeatLost, "liveness timeout")
		if e.metrics != nil {
			e.metrics.SetConnected(false)
		}
		if e.role == conn.RoleRX && e.cb.OnConnect != nil {
			e.cb.OnConnect(false)
		}
	}

	e.sweepReliableData(now, peer)
	e.sweepRetainedIFrame(now, peer)

	if n := e.recvQueue.Sweep(now); n > 0 {
		e.stats.IncompleteFrames.Add(int64(n))
	}

	if e.metrics != nil {
		cur := e.stats.Snapshot()
		e.metrics.Observe(e.lastSnapshot, cur)
		e.lastSnapshot = cur
	}
}

func (e *Endpoint) resendHandshake(peer *net.UDPAddr) {
	ft := wire.FrameTypeConnected
	if e.role == conn.RoleRX {
		ft = wire.FrameTypeConnect
	}
	h := wire.Header{SeqNum: e.nextSeq(), FrameID: 0, FrameType: ft, FragIndex: 0, TotalFrags: 1, Flags: wire.FlagRetrans}
	_ = e.sendPacket(h, nil, peer)
}

func (e *Endpoint) sendHeartbeat(peer *net.UDPAddr) {
	h := wire.Header{SeqNum: e.nextSeq(), FrameID: 0, FrameType: wire.FrameTypeHeartbeat, FragIndex: 0, TotalFrags: 1}
	_ = e.sendPacket(h, nil, peer)
}

// sweepReliableData retransmits or abandons each frame on the reliable-data
// queue. Frames are collected under the queue's lock and acted on outside
// it, since Queue.Each holds its mutex for the duration of the callback and
// Remove would otherwise deadlock against it.
func (e *Endpoint) sweepReliableData(now time.Time, peer *net.UDPAddr) {
	if peer == nil {
		return
	}
	var pending []*framepool.Frame
	e.txReliableQueue.Each(func(f *framepool.Frame) {
		pending = append(pending, f)
	})

	for _, f := range pending {
		slot := &f.Tracker.Slots[0]
		if slot.Acknowledged {
			continue
		}
		if now.Sub(slot.LastSendTime) < e.cfg.DataRetransTimeout {
			continue
		}
		if slot.RetransCount >= uint32(e.cfg.DataMaxRetrans) {
			e.txReliableQueue.Remove(f)
			continue
		}
		if !e.pacer.Allow() {
			continue
		}
		slot.RetransCount++
		slot.LastSendTime = now
		h := wire.Header{
			SeqNum:      e.nextSeq(),
			FrameID:     f.FrameID,
			FrameType:   f.FrameType,
			FragIndex:   0,
			TotalFrags:  1,
			PayloadSize: uint16(f.Len()),
			Flags:       wire.FlagRetrans | wire.FlagLastFrag,
		}
		e.stats.RetransPackets.Add(1)
		_ = e.sendPacket(h, f.Payload(), peer)
	}
}

// sweepRetainedIFrame retransmits individual un-acked fragments of the last
// key frame. A fragment that exhausts its retry budget is simply abandoned
// — the whole frame is never resent, since by the time that budget is spent
// a fresher I-frame has likely already superseded it (spec §4.2).
func (e *Endpoint) sweepRetainedIFrame(now time.Time, peer *net.UDPAddr) {
	if peer == nil {
		return
	}
	e.iframeMu.Lock()
	f := e.retainedIFrame
	e.iframeMu.Unlock()
	if f == nil {
		return
	}

	payload := f.Payload()
	for i := 0; i < f.Tracker.Length; i++ {
		slot := &f.Tracker.Slots[i]
		if slot.Acknowledged {
			continue
		}
		if now.Sub(slot.LastSendTime) < e.cfg.IFragRetransTimeout {
			continue
		}
		if slot.RetransCount >= uint32(e.cfg.IFragMaxRetrans) {
			continue
		}
		if !e.pacer.Allow() {
			continue
		}

		size := wire.FragmentSize(len(payload), i, e.cfg.MTU)
		offset := wire.FragmentOffset(i, e.cfg.MTU)
		h := wire.Header{
			SeqNum:      e.nextSeq(),
			FrameID:     f.FrameID,
			FrameType:   f.FrameType,
			FragIndex:   uint16(i),
			TotalFrags:  uint16(f.Tracker.Length),
			PayloadSize: uint16(size),
			Flags:       wire.FlagRetrans,
		}
		if i == f.Tracker.Length-1 {
			h.Flags |= wire.FlagLastFrag
		}

		slot.RetransCount++
		slot.LastSendTime = now
		e.stats.RetransPackets.Add(1)
		_ = e.sendPacket(h, payload[offset:offset+size], peer)
	}
}
