package worker

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Backoff computes jittered exponential delays after consecutive probe
// failures. A zero Base disables waiting.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the next probe after failures consecutive
// failures (1-based). The result lies in [d/2, d) where d is Base*2^(n-1)
// capped at Max.
func (b Backoff) Delay(failures int) time.Duration {
	if b.Base <= 0 || failures <= 0 {
		return 0
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = 30 * b.Base
	}
	delay := float64(b.Base) * math.Pow(2, float64(failures-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + jitter(half)
}

// Wait sleeps for Delay(failures) or until ctx ends. It reports whether the
// full delay elapsed.
func (b Backoff) Wait(ctx context.Context, failures int) bool {
	d := b.Delay(failures)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
