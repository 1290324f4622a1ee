package engine

import (
	"time"

	"github.com/ardkit/vtxgo/internal/wire"
)

// Config holds the per-endpoint tunables enumerated in spec §6. The zero
// value is not usable; use DefaultConfig and override as needed.
type Config struct {
	MTU int

	SocketSendBufferBytes int
	SocketRecvBufferBytes int

	IFragRetransTimeout time.Duration
	IFragMaxRetrans     int

	DataRetransTimeout time.Duration
	DataMaxRetrans     int

	ConnectTimeout    time.Duration
	ConnectMaxRetrans int

	HeartbeatInterval time.Duration
	HeartbeatMaxMiss  int

	FrameTimeout time.Duration // receive-reassembly timeout

	MaxFramePayload int
	URLMaxLen       int

	// Debug enables the optional per-packet send-timestamp suffix (spec §3, §9).
	Debug bool

	// RetransRatePerSecond and RetransBurst configure the retransmission
	// pacer (SPEC_FULL.md §6 expansion); 0 disables pacing.
	RetransRatePerSecond float64
	RetransBurst         int
}

// DefaultConfig matches the defaults enumerated in spec §6.
func DefaultConfig() Config {
	return Config{
		MTU:                   1400,
		SocketSendBufferBytes: 2 * 1024 * 1024,
		SocketRecvBufferBytes: 2 * 1024 * 1024,

		IFragRetransTimeout: 5 * time.Millisecond,
		IFragMaxRetrans:     3,

		DataRetransTimeout: 30 * time.Millisecond,
		DataMaxRetrans:     3,

		ConnectTimeout:    100 * time.Millisecond,
		ConnectMaxRetrans: 3,

		HeartbeatInterval: 60 * time.Second,
		HeartbeatMaxMiss:  3,

		FrameTimeout: 100 * time.Millisecond,

		MaxFramePayload: 512 * 1024,
		URLMaxLen:       100,

		RetransRatePerSecond: 2000,
		RetransBurst:         64,
	}
}

// maxFragmentPayload returns the same per-fragment capacity wire.FragmentCount
// and wire.FragmentSize use (mtu - wire.HeaderSize). It deliberately does not
// also subtract the 2-byte checksum or, in debug mode, the 8-byte debug
// suffix: the spec's own worked example (MTU 1400, header_size 14 ->
// 1386-byte fragment capacity) sizes fragments against HeaderSize alone, and
// the checksum/debug suffix are wire bytes appended on top of that capacity
// rather than carved out of it — so a max-size fragment is MTU+2 bytes on
// the wire (MTU+10 with Debug set). Callers sizing receive buffers must
// account for codec.Size() on top of this value (see DESIGN.md).
func (c Config) maxFragmentPayload() int {
	return c.MTU - wire.HeaderSize
}

// Callbacks are invoked from the poll goroutine after the relevant internal
// lock has been released (spec §5). Every field is optional; the role that
// doesn't use a given callback simply never triggers it (spec §6: on_frame
// and on_connect are RX-only, on_media_control is TX-only, on_data is
// shared).
type Callbacks struct {
	// OnFrame is invoked once per completed media frame (RX only).
	OnFrame func(payload []byte, frameType wire.FrameType)

	// OnData is invoked for USER datagrams and surfaced disconnect
	// notifications (both roles).
	OnData func(dataType wire.FrameType, payload []byte)

	// OnConnect reports handshake completion/liveness loss (RX only).
	OnConnect func(connected bool)

	// OnMediaControl is invoked for START/STOP (TX only). url is nil when
	// the payload carried no URL (spec §4.5 URL parsing rules).
	OnMediaControl func(dataType wire.FrameType, url *string)
}
