// Package pacer caps the rate of the engine's own retransmissions using a
// token bucket (golang.org/x/time/rate), independent of the primary send
// path. This is not flow/congestion control of the media stream — spec.md
// §1 explicitly excludes that — it only smooths bursts of simultaneously
// retransmit-eligible fragments so they cannot themselves saturate the link.
package pacer

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer wraps a rate.Limiter with a pass-through mode for ratePerSec <= 0.
type Pacer struct {
	limiter *rate.Limiter
}

// New returns a Pacer allowing ratePerSec retransmitted packets per second,
// with burst allowed to spike above that momentarily. ratePerSec <= 0
// disables pacing (every Allow/Wait call succeeds immediately).
func New(ratePerSec float64, burst int) *Pacer {
	if ratePerSec <= 0 {
		return &Pacer{}
	}
	if burst < 1 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Allow reports whether a retransmission may proceed right now, consuming a
// token if so. Callers on the poll loop must never block, so the
// retransmission scheduler uses Allow (not Wait): a fragment that doesn't
// get a token this sweep is simply retried on the next one.
func (p *Pacer) Allow() bool {
	if p == nil || p.limiter == nil {
		return true
	}
	return p.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done. Provided for
// callers (tests, offline tools) that can afford to block; the poll loop
// itself always uses Allow.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
