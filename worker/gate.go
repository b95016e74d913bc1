package worker

import "context"

// Gate is the admission gate: a counting permit pool of fixed capacity
// bounding how many tasks execute concurrently. It is a buffered
// channel of tokens, so acquisition blocks without busy-polling and
// fulfillment is FIFO-ish under contention. Safe for concurrent use.
type Gate struct {
	permits chan struct{}
}

// NewGate creates a gate with the given capacity.
// Capacity must be positive; anything else is a programming error.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		panic("worker: gate capacity must be positive")
	}
	return &Gate{permits: make(chan struct{}, capacity)}
}

// Acquire blocks until a permit is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a permit without blocking.
func (g *Gate) TryAcquire() bool {
	select {
	case g.permits <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a permit. Releasing more than was acquired is a
// programming error and panics.
func (g *Gate) Release() {
	select {
	case <-g.permits:
	default:
		panic("worker: gate release without acquire")
	}
}

// Available reports the number of free permits.
func (g *Gate) Available() int {
	return cap(g.permits) - len(g.permits)
}

// InFlight reports the number of permits currently held.
func (g *Gate) InFlight() int {
	return len(g.permits)
}

// Capacity reports the total permit count.
func (g *Gate) Capacity() int {
	return cap(g.permits)
}
