// Package engine ties the wire codec, frame pools, fragment trackers, frame
// queues, and connection state machine into the single-peer TX/RX transport
// described in spec §4.6: one UDP socket, one application-driven poll loop,
// no internal goroutines of its own.
package engine

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardkit/vtxgo/internal/conn"
	"github.com/ardkit/vtxgo/internal/fragtracker"
	"github.com/ardkit/vtxgo/internal/framepool"
	"github.com/ardkit/vtxgo/internal/framequeue"
	"github.com/ardkit/vtxgo/internal/metrics"
	"github.com/ardkit/vtxgo/internal/pacer"
	"github.com/ardkit/vtxgo/internal/sessionlog"
	"github.com/ardkit/vtxgo/internal/stats"
	"github.com/ardkit/vtxgo/internal/vtxclock"
	"github.com/ardkit/vtxgo/internal/wire"
)

// Endpoint is one side (TX or RX) of a connection pair. The caller owns the
// socket's lifecycle and drives Endpoint entirely through Poll; nothing here
// spawns a goroutine.
type Endpoint struct {
	cfg  Config
	cb   Callbacks
	role conn.Role
	name string // stable identifier for log lines, e.g. "primary"

	sock *net.UDPConn

	machine *conn.Machine

	mediaPool   *framepool.Pool
	controlPool *framepool.Pool
	fragPool    *fragtracker.Pool

	txReliableQueue *framequeue.Queue // outbound USER/START/STOP frames awaiting ACK (either role)
	recvQueue       *framequeue.Queue // RX: frames under reassembly

	iframeMu       sync.Mutex
	retainedIFrame *framepool.Frame // TX: last key frame, kept for per-fragment retransmission

	codec wire.Codec
	clock vtxclock.Source
	pacer *pacer.Pacer

	seqNum         atomic.Uint32
	frameIDCounter atomic.Uint32
	lastSeq        atomic.Uint32
	sawFirstSeq    atomic.Bool

	stats      stats.Stats
	metrics    *metrics.Set
	sessionLog *sessionlog.Log
	lastSnapshot stats.Snapshot

	readBuf []byte
}

// Option configures optional collaborators on an Endpoint at construction.
type Option func(*Endpoint)

// WithMetrics attaches a Prometheus metric set; Observe is called once per
// Poll sweep. Omit for endpoints that don't export metrics.
func WithMetrics(m *metrics.Set) Option { return func(e *Endpoint) { e.metrics = m } }

// WithSessionLog attaches a SQLite-backed lifecycle event log.
func WithSessionLog(l *sessionlog.Log) Option { return func(e *Endpoint) { e.sessionLog = l } }

// WithClock overrides the monotonic time source, for deterministic tests.
func WithClock(c vtxclock.Source) Option { return func(e *Endpoint) { e.clock = c } }

// WithName sets the identifier used in log lines (default "endpoint").
func WithName(name string) Option { return func(e *Endpoint) { e.name = name } }

// NewEndpoint wraps an already-bound, already-connected-or-not UDP socket.
// sock must not be shared with any other Endpoint.
func NewEndpoint(sock *net.UDPConn, role conn.Role, cfg Config, cb Callbacks, opts ...Option) *Endpoint {
	codec := wire.Codec{Debug: cfg.Debug}
	e := &Endpoint{
		cfg:  cfg,
		cb:   cb,
		role: role,
		name: "endpoint",
		sock: sock,
		machine: conn.New(role, conn.Config{
			ConnectTimeout:    cfg.ConnectTimeout,
			ConnectMaxRetrans: cfg.ConnectMaxRetrans,
			HeartbeatInterval: cfg.HeartbeatInterval,
			HeartbeatMaxMiss:  cfg.HeartbeatMaxMiss,
		}),
		mediaPool:       framepool.New(4, framepool.MediaCapacity, framepool.Media),
		controlPool:     framepool.New(8, framepool.ControlCapacity, framepool.Control),
		fragPool:        fragtracker.NewPool(),
		txReliableQueue: framequeue.New(cfg.DataRetransTimeout * time.Duration(cfg.DataMaxRetrans+1)),
		recvQueue:       framequeue.New(cfg.FrameTimeout),
		codec:           codec,
		clock:           vtxclock.Real,
		pacer:           pacer.New(cfg.RetransRatePerSecond, cfg.RetransBurst),
		// A maximum-size fragment is codec.Size() header/checksum/debug-suffix
		// bytes plus maxFragmentPayload() of payload; ReadFromUDP truncates
		// (and silently drops, via the length check in handlePacket) anything
		// that doesn't fit, so the buffer must hold the largest legal datagram,
		// not just cfg.MTU.
		readBuf: make([]byte, codec.Size()+cfg.maxFragmentPayload()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// roleName returns "tx" or "rx", used for log lines and session-log rows.
func (e *Endpoint) roleName() string {
	if e.role == conn.RoleTX {
		return "tx"
	}
	return "rx"
}

// Role reports which side of the pair this Endpoint drives.
func (e *Endpoint) Role() conn.Role { return e.role }

// State reports the current connection state.
func (e *Endpoint) State() conn.State { return e.machine.State() }

// Stats returns a snapshot of this endpoint's counters.
func (e *Endpoint) Stats() stats.Snapshot { return e.stats.Snapshot() }

// Connect begins the three-way handshake. RX-only: TX passively waits for an
// incoming CONNECT (spec §4.5).
func (e *Endpoint) Connect(peer *net.UDPAddr) error {
	if e.role != conn.RoleRX {
		return ErrInvalidParam
	}
	now := e.clock()
	if !e.machine.BeginHandshake(now, peer) {
		return ErrAlreadyInit
	}
	log.Printf("engine[%s/%s]: sending CONNECT to %s", e.roleName(), e.name, peer)
	h := wire.Header{SeqNum: e.nextSeq(), FrameID: 0, FrameType: wire.FrameTypeConnect, FragIndex: 0, TotalFrags: 1}
	return e.sendPacket(h, nil, peer)
}

// Close tears the connection down (sending DISCONNECT if one is active) and
// marks the underlying state machine Closed. It does not close the socket;
// the caller owns that.
func (e *Endpoint) Close() error {
	peer := e.machine.Peer()
	if peer != nil && e.machine.BeginDisconnect() {
		log.Printf("engine[%s/%s]: sending DISCONNECT to %s", e.roleName(), e.name, peer)
		h := wire.Header{SeqNum: e.nextSeq(), FrameID: 0, FrameType: wire.FrameTypeDisconnect, FragIndex: 0, TotalFrags: 1}
		_ = e.sendPacket(h, nil, peer)
		e.logEvent(sessionlog.EventDisconnected, "local shutdown")
	}
	e.machine.Close()
	if e.metrics != nil {
		e.metrics.SetConnected(false)
	}
	return nil
}

// Poll performs one non-blocking read attempt (bounded by timeout) followed
// by one retransmission/liveness sweep, per spec §4.6: "a single poll call
// does at most one socket read and one pass of scheduled work." Callers loop
// on Poll from their own goroutine; Endpoint never blocks longer than
// timeout.
func (e *Endpoint) Poll(timeout time.Duration) error {
	if err := e.sock.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	n, addr, err := e.sock.ReadFromUDP(e.readBuf)
	if err == nil {
		e.handlePacket(e.readBuf[:n], addr)
	} else if !isTimeout(err) {
		return err
	}
	e.sweep()
	return nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func (e *Endpoint) nextSeq() uint32 { return e.seqNum.Add(1) }

func (e *Endpoint) nextFrameID() uint16 {
	id := e.frameIDCounter.Add(1)
	if uint16(id) == 0 {
		id = e.frameIDCounter.Add(1)
	}
	return uint16(id)
}

func (e *Endpoint) logEvent(kind sessionlog.EventKind, detail string) {
	if e.sessionLog == nil {
		return
	}
	peer := ""
	if p := e.machine.Peer(); p != nil {
		peer = p.String()
	}
	if err := e.sessionLog.Record(e.roleName(), peer, kind, detail, e.clock()); err != nil {
		log.Printf("engine[%s/%s]: session log record failed: %v", e.roleName(), e.name, err)
	}
}

// logf prefixes a log line with the endpoint's role and name, matching the
// component-prefixed style used throughout this codebase.
func logf(e *Endpoint, format string, args ...any) {
	log.Printf("engine[%s/%s]: "+format, append([]any{e.roleName(), e.name}, args...)...)
}

func isKeyFrameType(t wire.FrameType) bool {
	switch t {
	case wire.FrameTypeI, wire.FrameTypeSPS, wire.FrameTypePPS:
		return true
	default:
		return false
	}
}
