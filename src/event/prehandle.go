package event

import (
	"context"
	"sync"
)

// Prehandle is a one-shot completion signal. A single writer completes it;
// any number of readers may wait on it.
type Prehandle struct {
	once sync.Once
	done chan struct{}
}

// NewPrehandle returns an incomplete latch.
func NewPrehandle() *Prehandle {
	return &Prehandle{done: make(chan struct{})}
}

// Complete releases every waiter. Later calls have no effect.
func (p *Prehandle) Complete() {
	p.once.Do(func() { close(p.done) })
}

// Done returns a channel that is closed once the latch completes.
func (p *Prehandle) Done() <-chan struct{} {
	return p.done
}

// IsComplete reports whether Complete has been called.
func (p *Prehandle) IsComplete() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the latch completes or ctx is done.
func (p *Prehandle) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
