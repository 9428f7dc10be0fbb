// Package chaos injects timing faults into stress workloads. Operations
// run under randomly short deadlines so transactions abort at arbitrary
// points; the invariant oracles must still hold afterwards.
package chaos

import (
	"context"
	"math/rand"
	"time"
)

// Injector wraps contexts with random deadlines.
type Injector struct {
	Rand *rand.Rand
	// MaxDelay bounds the injected deadline. A fraction of calls get a
	// deadline short enough to cut transactions off mid-flight.
	MaxDelay time.Duration
	// CutRate is the share of calls (0..1) that get a short deadline.
	CutRate float64
}

// Context returns a derived context, sometimes with a deadline tight
// enough to interrupt the database round trip.
func (i *Injector) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if i.Rand.Float64() >= i.CutRate {
		return context.WithCancel(parent)
	}
	delay := time.Duration(i.Rand.Int63n(int64(i.MaxDelay)))
	return context.WithTimeout(parent, delay)
}
