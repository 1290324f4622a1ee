package engine

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/ardkit/vtxgo/internal/conn"
	"github.com/ardkit/vtxgo/internal/vtxclock"
	"github.com/ardkit/vtxgo/internal/wire"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MTU = 256
	cfg.ConnectTimeout = 20 * time.Millisecond
	cfg.HeartbeatInterval = 50 * time.Millisecond
	cfg.HeartbeatMaxMiss = 2
	cfg.IFragRetransTimeout = 20 * time.Millisecond
	cfg.DataRetransTimeout = 20 * time.Millisecond
	cfg.FrameTimeout = 200 * time.Millisecond
	return cfg
}

// pumpUntil alternates Poll on both endpoints until cond reports true or the
// deadline elapses.
func pumpUntil(t *testing.T, rx, tx *Endpoint, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := rx.Poll(5 * time.Millisecond); err != nil {
			t.Fatalf("rx.Poll: %v", err)
		}
		if err := tx.Poll(5 * time.Millisecond); err != nil {
			t.Fatalf("tx.Poll: %v", err)
		}
		if cond() {
			return
		}
	}
	t.Fatal("condition not met before deadline")
}

func TestHandshakeCompletes(t *testing.T) {
	rxSock, txSock := listenLoopback(t), listenLoopback(t)

	var rxConnected, txConnected bool
	rx := NewEndpoint(rxSock, conn.RoleRX, testConfig(), Callbacks{
		OnConnect: func(connected bool) { rxConnected = connected },
	})
	tx := NewEndpoint(txSock, conn.RoleTX, testConfig(), Callbacks{})

	if err := rx.Connect(txSock.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pumpUntil(t, rx, tx, func() bool {
		txConnected = tx.State() == conn.Connected
		return rxConnected && txConnected
	}, 2*time.Second)

	if rx.State() != conn.Connected {
		t.Errorf("rx state = %v, want Connected", rx.State())
	}
	if tx.State() != conn.Connected {
		t.Errorf("tx state = %v, want Connected", tx.State())
	}
}

func connectPair(t *testing.T) (rx, tx *Endpoint) {
	t.Helper()
	rxSock, txSock := listenLoopback(t), listenLoopback(t)
	rx = NewEndpoint(rxSock, conn.RoleRX, testConfig(), Callbacks{})
	tx = NewEndpoint(txSock, conn.RoleTX, testConfig(), Callbacks{})
	if err := rx.Connect(txSock.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	pumpUntil(t, rx, tx, func() bool {
		return rx.State() == conn.Connected && tx.State() == conn.Connected
	}, 2*time.Second)
	return rx, tx
}

func TestMultiFragmentIFrameDelivery(t *testing.T) {
	rx, tx := connectPair(t)

	var delivered []byte
	var deliveredType wire.FrameType
	rx.cb.OnFrame = func(payload []byte, ft wire.FrameType) {
		delivered = append([]byte(nil), payload...)
		deliveredType = ft
	}

	payload := bytes.Repeat([]byte("ABCDEFGH"), 100) // 800 bytes, several fragments at MTU 256
	if err := tx.SubmitFrame(wire.FrameTypeI, payload); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}

	pumpUntil(t, rx, tx, func() bool { return delivered != nil }, 2*time.Second)

	if !bytes.Equal(delivered, payload) {
		t.Errorf("delivered payload mismatch: got %d bytes, want %d", len(delivered), len(payload))
	}
	if deliveredType != wire.FrameTypeI {
		t.Errorf("delivered frame type = %v, want I", deliveredType)
	}
	if got := rx.Stats().FramesDelivered; got != 1 {
		t.Errorf("FramesDelivered = %d, want 1", got)
	}
}

func TestSingleFragmentUserData(t *testing.T) {
	rx, tx := connectPair(t)

	received := make(chan []byte, 1)
	rx.cb.OnData = func(ft wire.FrameType, payload []byte) {
		if ft == wire.FrameTypeUser {
			received <- payload
		}
	}

	msg := []byte("hello, rx")
	if err := tx.SendUserData(wire.FrameTypeUser, msg); err != nil {
		t.Fatalf("SendUserData: %v", err)
	}

	pumpUntil(t, rx, tx, func() bool { return len(received) > 0 }, 2*time.Second)

	got := <-received
	if !bytes.Equal(got, msg) {
		t.Errorf("received %q, want %q", got, msg)
	}
}

func TestPFrameLossIsNotRetransmitted(t *testing.T) {
	rx, tx := connectPair(t)

	if err := tx.SubmitFrame(wire.FrameTypeP, []byte("ephemeral")); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	// Drain whatever arrived; TX must neither retain the P-frame nor retransmit it.
	for i := 0; i < 5; i++ {
		_ = rx.Poll(5 * time.Millisecond)
		_ = tx.Poll(5 * time.Millisecond)
	}
	if tx.retainedIFrame != nil {
		t.Error("P-frame must not become the retained key frame")
	}
	if got := tx.Stats().RetransPackets; got != 0 {
		t.Errorf("RetransPackets = %d, want 0 for a P-frame", got)
	}
}

func TestHeartbeatTimeoutTearsDownConnection(t *testing.T) {
	fake := vtxclock.NewFake(time.Unix(1700000000, 0))
	rxSock, txSock := listenLoopback(t), listenLoopback(t)

	var rxLost bool
	cfg := testConfig()
	rx := NewEndpoint(rxSock, conn.RoleRX, cfg, Callbacks{
		OnConnect: func(connected bool) {
			if !connected {
				rxLost = true
			}
		},
	}, WithClock(fake.Now))
	tx := NewEndpoint(txSock, conn.RoleTX, cfg, Callbacks{}, WithClock(fake.Now))

	if err := rx.Connect(txSock.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	pumpUntil(t, rx, tx, func() bool {
		return rx.State() == conn.Connected && tx.State() == conn.Connected
	}, 2*time.Second)

	// Advance well past heartbeat_interval * heartbeat_max_miss with no
	// further real traffic, then sweep directly (no socket I/O needed).
	fake.Advance(cfg.HeartbeatInterval * time.Duration(cfg.HeartbeatMaxMiss+1))
	rx.sweep()

	if !rxLost {
		t.Error("expected OnConnect(false) after liveness timeout")
	}
	if rx.State() != conn.Idle {
		t.Errorf("rx state = %v, want Idle after liveness timeout", rx.State())
	}
}

func TestDisconnectTearsDownBothSides(t *testing.T) {
	rx, tx := connectPair(t)

	if err := tx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	pumpUntil(t, rx, tx, func() bool { return rx.State() == conn.Idle }, 2*time.Second)

	if rx.State() != conn.Idle {
		t.Errorf("rx state = %v, want Idle after peer disconnect", rx.State())
	}
	if tx.State() != conn.Closed {
		t.Errorf("tx state = %v, want Closed after local Close", tx.State())
	}
}
