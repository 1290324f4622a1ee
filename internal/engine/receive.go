package engine

import (
	"net"
	"time"

	"github.com/ardkit/vtxgo/internal/conn"
	"github.com/ardkit/vtxgo/internal/framepool"
	"github.com/ardkit/vtxgo/internal/sessionlog"
	"github.com/ardkit/vtxgo/internal/wire"
)

// handlePacket validates one received datagram and dispatches it by frame
// type (spec §4.6 receive path). Anything that fails validation is counted
// and silently dropped — no error is surfaced to the caller, per the §7
// propagation policy.
func (e *Endpoint) handlePacket(buf []byte, addr *net.UDPAddr) {
	now := e.clock()

	if len(buf) < e.codec.Size() {
		e.stats.PacketInvalid.Add(1)
		return
	}
	h, sendTimeMs, err := e.codec.Decode(buf)
	if err != nil {
		e.stats.PacketInvalid.Add(1)
		return
	}
	payload := buf[e.codec.Size():]
	if int(h.PayloadSize) != len(payload) {
		e.stats.PacketInvalid.Add(1)
		return
	}
	if !wire.Validate(h, e.cfg.maxFragmentPayload()) {
		e.stats.PacketInvalid.Add(1)
		return
	}
	if !wire.Verify(buf, payload) {
		e.stats.ChecksumErrors.Add(1)
		return
	}
	if e.codec.Debug {
		e.stats.LastSkewMs.Store(now.UnixMilli() - int64(sendTimeMs))
	}

	e.trackSequence(h.SeqNum)

	switch h.FrameType {
	case wire.FrameTypeConnect:
		e.handleConnect(now, addr)
	case wire.FrameTypeConnected:
		e.handleConnected(now)
	case wire.FrameTypeAck:
		e.handleAck(now, h)
	case wire.FrameTypeHeartbeat:
		e.handleHeartbeat(now, addr)
	case wire.FrameTypeDisconnect:
		e.handleDisconnect(now, addr)
	default:
		if h.FrameType.IsMedia() {
			e.handleMediaFragment(now, h, payload, addr)
		} else {
			e.handleControlData(h, payload, addr)
		}
	}
}

// trackSequence counts a gap in the incoming sequence number as lost
// packets. Duplicate/retransmitted packets and reordering within a single
// path are not distinguished from loss here — this mirrors the reference
// implementation's simple monotonic expectation, not a full reorder buffer
// (see DESIGN.md).
func (e *Endpoint) trackSequence(seq uint32) {
	if !e.sawFirstSeq.Swap(true) {
		e.lastSeq.Store(seq)
		return
	}
	prev := e.lastSeq.Load()
	if seq > prev {
		if gap := seq - prev - 1; gap > 0 {
			e.stats.LostPackets.Add(int64(gap))
		}
		e.lastSeq.Store(seq)
	}
}

func (e *Endpoint) handleConnect(now time.Time, addr *net.UDPAddr) {
	if e.role != conn.RoleTX {
		return
	}
	if !e.machine.OnConnectReceived(now, addr) {
		return
	}
	logf(e, "CONNECT received from %s, sending CONNECTED", addr)
	h := wire.Header{SeqNum: e.nextSeq(), FrameID: 0, FrameType: wire.FrameTypeConnected, FragIndex: 0, TotalFrags: 1}
	_ = e.sendPacket(h, nil, addr)
}

func (e *Endpoint) handleConnected(now time.Time) {
	if e.role != conn.RoleRX {
		return
	}
	if !e.machine.OnConnectedReceived(now) {
		return
	}
	peer := e.machine.Peer()
	logf(e, "CONNECTED received, sending ACK to %s", peer)
	h := wire.Header{SeqNum: e.nextSeq(), FrameID: 0, FrameType: wire.FrameTypeAck, FragIndex: 0, TotalFrags: 1}
	_ = e.sendPacket(h, nil, peer)
	e.onHandshakeComplete()
}

func (e *Endpoint) handleAck(now time.Time, h wire.Header) {
	if h.FrameID == 0 {
		switch e.machine.State() {
		case conn.HandshakeReplyPending:
			if e.machine.OnHandshakeAckReceived(now) {
				logf(e, "handshake ACK received, connection established")
				e.onHandshakeComplete()
			}
		case conn.Connected:
			e.machine.OnHeartbeatAckReceived(now)
		}
		return
	}
	e.handleDataAck(h)
}

func (e *Endpoint) onHandshakeComplete() {
	if e.metrics != nil {
		e.metrics.SetConnected(true)
	}
	e.logEvent(sessionlog.EventHandshakeOK, "three-way handshake complete")
	if e.role == conn.RoleRX && e.cb.OnConnect != nil {
		e.cb.OnConnect(true)
	}
}

func (e *Endpoint) handleDataAck(h wire.Header) {
	if f := e.txReliableQueue.Find(h.FrameID); f != nil {
		if int(h.FragIndex) < f.Tracker.Length && !f.Tracker.Slots[h.FragIndex].Acknowledged {
			f.Tracker.Slots[h.FragIndex].Acknowledged = true
		}
		if f.Tracker.AllAcknowledged() {
			e.txReliableQueue.Remove(f)
		}
		return
	}

	e.iframeMu.Lock()
	rf := e.retainedIFrame
	e.iframeMu.Unlock()
	if rf != nil && rf.FrameID == h.FrameID && int(h.FragIndex) < rf.Tracker.Length {
		rf.Tracker.Slots[h.FragIndex].Acknowledged = true
	}
}

func (e *Endpoint) handleHeartbeat(now time.Time, addr *net.UDPAddr) {
	if e.role != conn.RoleTX {
		return
	}
	e.machine.OnHeartbeatReceived(now)
	h := wire.Header{SeqNum: e.nextSeq(), FrameID: 0, FrameType: wire.FrameTypeAck, FragIndex: 0, TotalFrags: 1}
	_ = e.sendPacket(h, nil, addr)
}

// handleDisconnect acks the DISCONNECT (spec §4.6 dispatch table), then
// tears the connection down and notifies via callback. The ack must go to
// addr, the packet's source address, rather than machine.Peer(): by the time
// OnDisconnectReceived returns, it has already cleared the machine's peer as
// part of the same state transition.
func (e *Endpoint) handleDisconnect(now time.Time, addr *net.UDPAddr) {
	if !e.machine.OnDisconnectReceived() {
		return
	}
	h := wire.Header{SeqNum: e.nextSeq(), FrameID: 0, FrameType: wire.FrameTypeAck, FragIndex: 0, TotalFrags: 1}
	_ = e.sendPacket(h, nil, addr)
	logf(e, "DISCONNECT received from %s, tearing down", addr)
	e.logEvent(sessionlog.EventDisconnected, "peer teardown")
	if e.metrics != nil {
		e.metrics.SetConnected(false)
	}
	if e.cb.OnData != nil {
		e.cb.OnData(wire.FrameTypeDisconnect, nil)
	}
	if e.role == conn.RoleRX && e.cb.OnConnect != nil {
		e.cb.OnConnect(false)
	}
}

// handleMediaFragment writes one fragment into its frame's reassembly
// buffer, acking key-frame fragments individually so TX can retire them from
// its retransmission ledger, and delivers the frame once every fragment has
// arrived (spec §4.6 reassembly).
func (e *Endpoint) handleMediaFragment(now time.Time, h wire.Header, payload []byte, addr *net.UDPAddr) {
	nf := e.recvQueue.Find(h.FrameID)
	owned := false
	if nf == nil {
		tracker, err := e.fragPool.Acquire(int(h.TotalFrags))
		if err != nil {
			e.stats.NoMemory.Add(1)
			return
		}
		nf = e.mediaPool.Acquire()
		owned = true
		nf.FrameID = h.FrameID
		nf.FrameType = h.FrameType
		nf.State = framepool.StateReceiving
		nf.FirstReceiveTime = now
		nf.Tracker = tracker
	}
	nf.LastReceiveTime = now

	if int(h.FragIndex) >= nf.Tracker.Length {
		e.stats.PacketInvalid.Add(1)
		if owned {
			nf.Release()
		}
		return
	}

	offset := wire.FragmentOffset(int(h.FragIndex), e.cfg.MTU)
	switch {
	case nf.Tracker.Slots[h.FragIndex].Received:
		e.stats.DupPackets.Add(1)
	case !nf.WriteAt(offset, payload):
		e.stats.OverflowErrors.Add(1)
		if owned {
			nf.Release()
		}
		return
	default:
		nf.Tracker.Slots[h.FragIndex].Received = true
		e.stats.RecvFrags.Add(1)
	}

	if isKeyFrameType(h.FrameType) {
		e.sendFragAck(h.FrameID, h.FragIndex, h.TotalFrags, addr)
	}

	if nf.Tracker.AllReceived() {
		nf.State = framepool.StateComplete
		if !owned {
			nf.Retain()
			e.recvQueue.Remove(nf)
		}
		if e.cb.OnFrame != nil {
			e.cb.OnFrame(nf.Payload(), nf.FrameType)
		}
		e.stats.FramesDelivered.Add(1)
		nf.Release()
		return
	}

	if owned {
		e.recvQueue.Push(nf)
		nf.Release()
	}
}

func (e *Endpoint) sendFragAck(frameID uint16, fragIndex, totalFrags uint16, addr *net.UDPAddr) {
	h := wire.Header{SeqNum: e.nextSeq(), FrameID: frameID, FrameType: wire.FrameTypeAck, FragIndex: fragIndex, TotalFrags: totalFrags}
	if totalFrags > 0 && fragIndex == totalFrags-1 {
		h.Flags |= wire.FlagLastFrag
	}
	_ = e.sendPacket(h, nil, addr)
}

// handleControlData dispatches single-fragment USER/START/STOP payloads: ack
// the sender and surface the payload through the relevant callback.
func (e *Endpoint) handleControlData(h wire.Header, payload []byte, addr *net.UDPAddr) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	e.sendFragAck(h.FrameID, 0, 1, addr)

	switch h.FrameType {
	case wire.FrameTypeUser:
		if e.cb.OnData != nil {
			e.cb.OnData(h.FrameType, cp)
		}
	case wire.FrameTypeStart, wire.FrameTypeStop:
		if e.cb.OnMediaControl != nil {
			e.cb.OnMediaControl(h.FrameType, e.parseURL(cp))
		}
	}
}

// parseURL implements the spec §4.5 URL-parsing rule: a zero-length payload
// or one that isn't null-terminated means no URL was carried, not a decode
// error, so it's logged as a warning rather than counted as invalid.
func (e *Endpoint) parseURL(payload []byte) *string {
	if len(payload) == 0 || payload[len(payload)-1] != 0 {
		logf(e, "media control payload has no null terminator, treating URL as absent")
		return nil
	}
	body := payload[:len(payload)-1]
	if len(body) > e.cfg.URLMaxLen {
		body = body[:e.cfg.URLMaxLen]
	}
	s := string(body)
	return &s
}
