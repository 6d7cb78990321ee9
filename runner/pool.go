package runner

import "context"

// Pool bounds the number of tool queries executing at once. Each query holds
// one slot for its full lifetime, covering the server session and every model
// round, so a burst of queries degrades into queueing instead of opening an
// unbounded number of upstream connections.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool with the given capacity. A capacity <= 0 disables
// limiting.
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		return &Pool{}
	}
	return &Pool{sem: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or the context ends.
func (p *Pool) Acquire(ctx context.Context) error {
	if p.sem == nil {
		return ctx.Err()
	}

	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire. Calling Release without a matching
// Acquire corrupts the pool accounting.
func (p *Pool) Release() {
	if p.sem == nil {
		return
	}
	<-p.sem
}

// Active reports the number of slots currently held.
func (p *Pool) Active() int {
	return len(p.sem)
}
