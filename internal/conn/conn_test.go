package conn

import (
	"net"
	"testing"
	"time"
)

func peerAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}
}

func TestHandshakeHappyPath(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()

	rx := New(RoleRX, cfg)
	if !rx.BeginHandshake(now, peerAddr()) {
		t.Fatal("RX BeginHandshake should succeed from Idle")
	}
	if rx.State() != HandshakeSent {
		t.Fatalf("RX state = %v, want HandshakeSent", rx.State())
	}

	tx := New(RoleTX, cfg)
	if !tx.OnConnectReceived(now, peerAddr()) {
		t.Fatal("TX OnConnectReceived should succeed from Idle")
	}
	if tx.State() != HandshakeReplyPending {
		t.Fatalf("TX state = %v, want HandshakeReplyPending", tx.State())
	}

	if !rx.OnConnectedReceived(now) {
		t.Fatal("RX OnConnectedReceived should succeed from HandshakeSent")
	}
	if rx.State() != Connected {
		t.Fatalf("RX state = %v, want Connected", rx.State())
	}

	if !tx.OnHandshakeAckReceived(now) {
		t.Fatal("TX OnHandshakeAckReceived should succeed from HandshakeReplyPending")
	}
	if tx.State() != Connected {
		t.Fatalf("TX state = %v, want Connected", tx.State())
	}
}

func TestHandshakeRetransAndGiveUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 10 * time.Millisecond
	cfg.ConnectMaxRetrans = 2
	now := time.Now()

	tx := New(RoleTX, cfg)
	tx.OnConnectReceived(now, peerAddr())

	for i := 0; i < cfg.ConnectMaxRetrans; i++ {
		now = now.Add(cfg.ConnectTimeout)
		if a := tx.PollHandshake(now); a != HandshakeActionRetransmit {
			t.Fatalf("attempt %d: action = %v, want Retransmit", i, a)
		}
	}
	now = now.Add(cfg.ConnectTimeout)
	if a := tx.PollHandshake(now); a != HandshakeActionGiveUp {
		t.Fatalf("final action = %v, want GiveUp", a)
	}
	if tx.State() != Idle {
		t.Fatalf("state after give-up = %v, want Idle", tx.State())
	}
}

func TestHeartbeatTimeoutTearsDownTX(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.HeartbeatMaxMiss = 3
	now := time.Now()

	tx := New(RoleTX, cfg)
	tx.OnConnectReceived(now, peerAddr())
	tx.OnHandshakeAckReceived(now)
	if tx.State() != Connected {
		t.Fatal("TX should be Connected")
	}

	// Just under the deadline: still alive.
	almost := now.Add(3*cfg.HeartbeatInterval - time.Millisecond)
	if tx.CheckLivenessTimeout(almost) {
		t.Fatal("should not time out before heartbeat_interval * max_miss")
	}

	past := now.Add(3 * cfg.HeartbeatInterval)
	if !tx.CheckLivenessTimeout(past) {
		t.Fatal("should time out at heartbeat_interval * max_miss")
	}
	if tx.State() != Idle {
		t.Fatalf("state after timeout = %v, want Idle", tx.State())
	}
}

func TestHeartbeatReceivedResetsDeadline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.HeartbeatMaxMiss = 3
	now := time.Now()

	tx := New(RoleTX, cfg)
	tx.OnConnectReceived(now, peerAddr())
	tx.OnHandshakeAckReceived(now)

	now = now.Add(2 * cfg.HeartbeatInterval)
	tx.OnHeartbeatReceived(now)

	check := now.Add(2*cfg.HeartbeatInterval - time.Millisecond)
	if tx.CheckLivenessTimeout(check) {
		t.Fatal("heartbeat activity should have reset the deadline")
	}
}

func TestDisconnectTeardown(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	rx := New(RoleRX, cfg)
	rx.BeginHandshake(now, peerAddr())
	rx.OnConnectedReceived(now)

	if !rx.OnDisconnectReceived() {
		t.Fatal("OnDisconnectReceived should succeed while Connected")
	}
	if rx.State() != Idle {
		t.Fatalf("state after disconnect = %v, want Idle", rx.State())
	}
	if rx.OnDisconnectReceived() {
		t.Fatal("second OnDisconnectReceived from Idle should report nothing to do")
	}
}

func TestBeginDisconnectLocalInitiated(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	tx := New(RoleTX, cfg)
	tx.OnConnectReceived(now, peerAddr())
	tx.OnHandshakeAckReceived(now)

	if !tx.BeginDisconnect() {
		t.Fatal("BeginDisconnect should succeed while Connected")
	}
	if tx.State() != Idle {
		t.Fatalf("state = %v, want Idle", tx.State())
	}
}

func TestStrayConnectWhileConnectedIsRejected(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	tx := New(RoleTX, cfg)
	tx.OnConnectReceived(now, peerAddr())
	tx.OnHandshakeAckReceived(now)

	if tx.OnConnectReceived(now, peerAddr()) {
		t.Fatal("OnConnectReceived while already Connected should be rejected")
	}
	if tx.State() != Connected {
		t.Fatalf("state = %v, want still Connected", tx.State())
	}
}
