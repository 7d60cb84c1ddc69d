// Package radio guards the single physical receiver.
package radio

import (
	"context"
	"sync"
)

// Arbiter is a mutual-exclusion gate around the receiver. Waiters are
// granted the gate strictly in arrival order.
type Arbiter struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

// NewArbiter creates an idle arbiter
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// Acquire blocks until the gate is granted to the caller
func (a *Arbiter) Acquire() {
	_ = a.AcquireContext(context.Background())
}

// AcquireContext blocks until the gate is granted or ctx is done. On error
// the caller does not hold the gate.
func (a *Arbiter) AcquireContext(ctx context.Context) error {
	a.mu.Lock()
	if !a.busy {
		a.busy = true
		a.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	a.waiters = append(a.waiters, ch)
	a.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, w := range a.waiters {
			if w == ch {
				a.waiters = append(a.waiters[:i], a.waiters[i+1:]...)
				return ctx.Err()
			}
		}
		// Granted while cancelling: hand the gate on
		a.releaseLocked()
		return ctx.Err()
	}
}

// Release passes the gate to the longest waiter, or frees it
func (a *Arbiter) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
}

func (a *Arbiter) releaseLocked() {
	if !a.busy {
		panic("radio: release of idle arbiter")
	}
	if len(a.waiters) == 0 {
		a.busy = false
		return
	}
	next := a.waiters[0]
	a.waiters = a.waiters[1:]
	close(next)
}

// Busy reports whether the gate is held
func (a *Arbiter) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// Waiting returns the number of callers blocked in Acquire
func (a *Arbiter) Waiting() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.waiters)
}
