// Package conn implements the connection state machine from spec §4.5: the
// three-way handshake, heartbeat liveness, and graceful teardown shared by
// both TX and RX. It owns no socket — the engine calls into Machine and acts
// on the returned Action values.
package conn

import (
	"net"
	"sync"
	"time"
)

// State is one of the five connection states in spec §4.5.
type State int

const (
	Idle State = iota
	HandshakeSent           // RX only: CONNECT sent, awaiting CONNECTED
	HandshakeReplyPending   // TX only: CONNECTED sent, awaiting ACK
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case HandshakeSent:
		return "handshake-sent"
	case HandshakeReplyPending:
		return "handshake-reply-pending"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role distinguishes which side of the pair a Machine drives.
type Role int

const (
	RoleTX Role = iota
	RoleRX
)

// Config holds the connection timeouts and retry budgets from spec §6.
type Config struct {
	ConnectTimeout        time.Duration // handshake-reply retransmit interval
	ConnectMaxRetrans     int
	HeartbeatInterval     time.Duration
	HeartbeatMaxMiss      int
}

// DefaultConfig matches the defaults enumerated in spec §6.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    100 * time.Millisecond,
		ConnectMaxRetrans: 3,
		HeartbeatInterval: 60 * time.Second,
		HeartbeatMaxMiss:  3,
	}
}

// Machine is the per-endpoint connection state machine. All methods are
// safe for concurrent use; the engine calls them from its poll loop and,
// for SubmitFrame/SendData style calls, from application goroutines.
type Machine struct {
	mu  sync.Mutex
	cfg Config
	role Role

	state State
	peer  *net.UDPAddr

	handshakeRetransCount int
	handshakeSendTime     time.Time

	lastHeartbeatSentTime time.Time // RX only: pacing clock for ShouldSendHeartbeat
	lastLivenessTime      time.Time // last proof the peer is alive (received heartbeat/ack)
}

// New creates a Machine for the given role, starting in Idle.
func New(role Role, cfg Config) *Machine {
	return &Machine{role: role, cfg: cfg, state: Idle}
}

// State returns the current connection state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Peer returns the current peer address, or nil if none is set.
func (m *Machine) Peer() *net.UDPAddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peer
}

// BeginHandshake is called by RX to start the three-way handshake: it
// transitions Idle -> HandshakeSent and reports that a CONNECT packet should
// be sent now.
func (m *Machine) BeginHandshake(now time.Time, peer *net.UDPAddr) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return false
	}
	m.state = HandshakeSent
	m.peer = peer
	m.handshakeRetransCount = 0
	m.handshakeSendTime = now
	return true
}

// HandshakeAction is what the engine's retransmission sweep should do about
// an in-flight handshake.
type HandshakeAction int

const (
	HandshakeActionNone HandshakeAction = iota
	HandshakeActionRetransmit
	HandshakeActionGiveUp
)

// PollHandshake is called on every retransmission sweep while the machine is
// in HandshakeSent (RX, re-sending CONNECT) or HandshakeReplyPending (TX,
// re-sending CONNECTED). It returns what the engine should do.
func (m *Machine) PollHandshake(now time.Time) HandshakeAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != HandshakeSent && m.state != HandshakeReplyPending {
		return HandshakeActionNone
	}
	if now.Sub(m.handshakeSendTime) < m.cfg.ConnectTimeout {
		return HandshakeActionNone
	}
	if m.handshakeRetransCount >= m.cfg.ConnectMaxRetrans {
		m.state = Idle
		m.peer = nil
		return HandshakeActionGiveUp
	}
	m.handshakeRetransCount++
	m.handshakeSendTime = now
	return HandshakeActionRetransmit
}

// OnConnectReceived is called by TX when a CONNECT packet arrives. It
// records peer, transitions Idle -> HandshakeReplyPending, and reports that
// a CONNECTED packet should be sent now. Returns false if not in Idle (a
// stray or duplicate CONNECT while already connected/handshaking).
func (m *Machine) OnConnectReceived(now time.Time, peer *net.UDPAddr) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return false
	}
	m.state = HandshakeReplyPending
	m.peer = peer
	m.handshakeRetransCount = 0
	m.handshakeSendTime = now
	return true
}

// OnConnectedReceived is called by RX when a CONNECTED packet arrives while
// HandshakeSent. It transitions to Connected and reports that an ACK
// (frame_id 0) should be sent now. Returns false if not awaiting one.
func (m *Machine) OnConnectedReceived(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != HandshakeSent {
		return false
	}
	m.state = Connected
	m.lastHeartbeatSentTime = now
	m.lastLivenessTime = now
	return true
}

// OnHandshakeAckReceived is called by TX when the ACK (frame_id 0) that
// completes the handshake arrives while HandshakeReplyPending. It
// transitions to Connected and resets handshake counters. Returns false if
// not awaiting one.
func (m *Machine) OnHandshakeAckReceived(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != HandshakeReplyPending {
		return false
	}
	m.state = Connected
	m.handshakeRetransCount = 0
	m.lastLivenessTime = now
	return true
}

// ShouldSendHeartbeat is called by RX's poll loop; it reports whether a
// HEARTBEAT packet is due.
func (m *Machine) ShouldSendHeartbeat(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return false
	}
	return now.Sub(m.lastHeartbeatSentTime) >= m.cfg.HeartbeatInterval
}

// MarkHeartbeatSent records that RX just sent a HEARTBEAT, resetting its own
// send-pacing clock. This is deliberately a separate field from
// lastLivenessTime: RX sends a HEARTBEAT every interval regardless of
// whether the peer is actually alive, so reusing this timestamp as the
// liveness signal would make CheckLivenessTimeout's deadline unreachable.
func (m *Machine) MarkHeartbeatSent(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHeartbeatSentTime = now
}

// OnHeartbeatReceived is called by TX when a HEARTBEAT arrives; it is TX's
// only proof of peer liveness (TX never sends its own heartbeats).
func (m *Machine) OnHeartbeatReceived(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Connected {
		m.lastLivenessTime = now
	}
}

// OnHeartbeatAckReceived is called by RX when the ACK for its HEARTBEAT
// arrives ("RX applies the symmetric check on received ACKs", spec §4.5).
// This is RX's proof of liveness, tracked separately from
// lastHeartbeatSentTime so a silent peer is still caught by
// CheckLivenessTimeout even though RX keeps sending heartbeats on schedule.
func (m *Machine) OnHeartbeatAckReceived(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Connected {
		m.lastLivenessTime = now
	}
}

// CheckLivenessTimeout is called on every poll tick while Connected. If no
// heartbeat/ack activity has been observed for heartbeat_interval *
// heartbeat_max_miss, it tears the connection down to Idle and reports true
// so the caller invokes OnConnect(false, ...).
func (m *Machine) CheckLivenessTimeout(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return false
	}
	deadline := time.Duration(m.cfg.HeartbeatMaxMiss) * m.cfg.HeartbeatInterval
	if now.Sub(m.lastLivenessTime) < deadline {
		return false
	}
	m.state = Idle
	m.peer = nil
	return true
}

// OnDisconnectReceived handles an incoming DISCONNECT: transitions to Idle
// and reports that an ACK should be sent and the disconnect callback fired.
// Returns false if already Idle/Closed (nothing to tear down).
func (m *Machine) OnDisconnectReceived() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle || m.state == Closed {
		return false
	}
	m.state = Idle
	m.peer = nil
	return true
}

// BeginDisconnect is called when the local side initiates teardown. Per
// spec §4.5, DISCONNECT is never retransmitted, so this immediately
// transitions to Idle; the caller is responsible for sending the packet.
func (m *Machine) BeginDisconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle || m.state == Closed {
		return false
	}
	m.state = Idle
	m.peer = nil
	return true
}

// Close transitions the machine to Closed, its terminal state (engine
// shutdown). No further handshake/heartbeat activity is valid afterward.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Closed
	m.peer = nil
}
