// Command vtxrx is the receive-side demo endpoint: it connects to a vtxtx
// peer, writes every delivered media frame to a file (standing in for the
// out-of-scope media sink), and optionally exports Prometheus metrics and a
// SQLite session-event log.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardkit/vtxgo/internal/conn"
	"github.com/ardkit/vtxgo/internal/engine"
	"github.com/ardkit/vtxgo/internal/metrics"
	"github.com/ardkit/vtxgo/internal/sessionlog"
	"github.com/ardkit/vtxgo/internal/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	listenAddr := flag.String("addr", ":9100", "UDP address to bind")
	peerAddr := flag.String("peer", "", "vtxtx peer address (host:port)")
	outPath := flag.String("out", "received.media", "file to append delivered frame payloads to")
	metricsAddr := flag.String("metrics-addr", "", "optional HTTP address to serve /metrics on")
	sessionDB := flag.String("session-db", "", "optional path to a SQLite session-event log")
	mtu := flag.Int("mtu", 1400, "maximum transmission unit")
	flag.Parse()

	if *peerAddr == "" {
		log.Fatalf("vtxrx: -peer is required")
	}

	peer, err := net.ResolveUDPAddr("udp", *peerAddr)
	if err != nil {
		log.Fatalf("vtxrx: resolve peer: %v", err)
	}
	local, err := net.ResolveUDPAddr("udp", *listenAddr)
	if err != nil {
		log.Fatalf("vtxrx: resolve listen address: %v", err)
	}
	sock, err := net.ListenUDP("udp", local)
	if err != nil {
		log.Fatalf("vtxrx: listen: %v", err)
	}
	defer sock.Close()

	out, err := os.OpenFile(*outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("vtxrx: open %s: %v", *outPath, err)
	}
	defer out.Close()

	opts := []engine.Option{engine.WithName("vtxrx")}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		m := metrics.NewSet(reg, "rx", *listenAddr)
		opts = append(opts, engine.WithMetrics(m))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("vtxrx: metrics server: %v", err)
			}
		}()
		log.Printf("vtxrx: metrics on http://%s/metrics", *metricsAddr)
	}

	if *sessionDB != "" {
		sl, err := sessionlog.Open(*sessionDB)
		if err != nil {
			log.Fatalf("vtxrx: open session log: %v", err)
		}
		defer sl.Close()
		opts = append(opts, engine.WithSessionLog(sl))
	}

	cfg := engine.DefaultConfig()
	cfg.MTU = *mtu

	cb := engine.Callbacks{
		OnFrame: func(payload []byte, ft wire.FrameType) {
			if _, err := out.Write(payload); err != nil {
				log.Printf("vtxrx: write frame: %v", err)
			}
		},
		OnData: func(dt wire.FrameType, payload []byte) {
			log.Printf("vtxrx: data frame %s: %d bytes", dt, len(payload))
		},
		OnConnect: func(connected bool) {
			log.Printf("vtxrx: connection state -> connected=%v", connected)
		},
	}

	ep := engine.NewEndpoint(sock, conn.RoleRX, cfg, cb, opts...)
	if err := ep.Connect(peer); err != nil {
		log.Fatalf("vtxrx: connect: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sig
		close(done)
	}()

	log.Printf("vtxrx: polling, peer=%s", peer)
	for {
		select {
		case <-done:
			ep.Close()
			fmt.Println("vtxrx: shutting down")
			return
		default:
			if err := ep.Poll(10 * time.Millisecond); err != nil {
				log.Printf("vtxrx: poll: %v", err)
			}
		}
	}
}
