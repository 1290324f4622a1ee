// Command vtxtx is the transmit-side demo endpoint: it waits for a vtxrx
// peer to connect, then streams a file's contents as a sequence of I-frames
// once it receives a START control message (standing in for the out-of-scope
// media source). Frames are chunked at a fixed size to simulate successive
// encoded pictures; this is a stand-in, not a real codec.
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
	listenAddr := flag.String("addr", ":9000", "UDP address to bind")
	mediaPath := flag.String("media", "", "path to the file to stream as simulated media frames")
	frameBytes := flag.Int("frame-size", 32*1024, "simulated picture size in bytes")
	metricsAddr := flag.String("metrics-addr", "", "optional HTTP address to serve /metrics on")
	sessionDB := flag.String("session-db", "", "optional path to a SQLite session-event log")
	mtu := flag.Int("mtu", 1400, "maximum transmission unit")
	flag.Parse()

	if *mediaPath == "" {
		log.Fatalf("vtxtx: -media is required")
	}
	media, err := os.ReadFile(*mediaPath)
	if err != nil {
		log.Fatalf("vtxtx: read media: %v", err)
	}

	local, err := net.ResolveUDPAddr("udp", *listenAddr)
	if err != nil {
		log.Fatalf("vtxtx: resolve listen address: %v", err)
	}
	sock, err := net.ListenUDP("udp", local)
	if err != nil {
		log.Fatalf("vtxtx: listen: %v", err)
	}
	defer sock.Close()

	opts := []engine.Option{engine.WithName("vtxtx")}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		m := metrics.NewSet(reg, "tx", *listenAddr)
		opts = append(opts, engine.WithMetrics(m))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("vtxtx: metrics server: %v", err)
			}
		}()
		log.Printf("vtxtx: metrics on http://%s/metrics", *metricsAddr)
	}

	if *sessionDB != "" {
		sl, err := sessionlog.Open(*sessionDB)
		if err != nil {
			log.Fatalf("vtxtx: open session log: %v", err)
		}
		defer sl.Close()
		opts = append(opts, engine.WithSessionLog(sl))
	}

	cfg := engine.DefaultConfig()
	cfg.MTU = *mtu

	streaming := make(chan bool, 1)
	cb := engine.Callbacks{
		OnMediaControl: func(dt wire.FrameType, url *string) {
			switch dt {
			case wire.FrameTypeStart:
				log.Printf("vtxtx: START received")
				select {
				case streaming <- true:
				default:
				}
			case wire.FrameTypeStop:
				log.Printf("vtxtx: STOP received")
				select {
				case streaming <- false:
				default:
				}
			}
		},
	}

	ep := engine.NewEndpoint(sock, conn.RoleTX, cfg, cb, opts...)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sig
		close(done)
	}()

	log.Printf("vtxtx: waiting for a peer on %s", sock.LocalAddr())
	go pollLoop(ep, done)

	active := false
	offset := 0
	ticker := time.NewTicker(33 * time.Millisecond) // ~30fps pacing
	defer ticker.Stop()

	for {
		select {
		case <-done:
			ep.Close()
			fmt.Println("vtxtx: shutting down")
			return
		case s := <-streaming:
			active = s
		case <-ticker.C:
			if !active || ep.State() != conn.Connected {
				continue
			}
			end := offset + *frameBytes
			if end > len(media) {
				end = len(media)
			}
			if offset >= len(media) {
				offset = 0
				continue
			}
			if err := ep.SubmitFrame(wire.FrameTypeI, media[offset:end]); err != nil {
				log.Printf("vtxtx: submit frame: %v", err)
			}
			offset = end
		}
	}
}

func pollLoop(ep *engine.Endpoint, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
			if err := ep.Poll(10 * time.Millisecond); err != nil {
				log.Printf("vtxtx: poll: %v", err)
			}
		}
	}
}
