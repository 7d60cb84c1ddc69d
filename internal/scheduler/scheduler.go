// Package scheduler runs jobs at absolute times and at fixed intervals.
// Every firing runs on its own goroutine so a long job never delays others.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Job is a scheduled unit of work
type Job func(ctx context.Context)

// Scheduler owns fire-once and recurring timers
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time

	mu      sync.Mutex
	pending int
}

// New creates a scheduler whose jobs receive a context derived from parent
func New(parent context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// At runs job once at the given time. A time in the past fires immediately.
func (s *Scheduler) At(when time.Time, job Job) {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(when.Sub(s.now()))
		defer timer.Stop()

		select {
		case <-timer.C:
			s.mu.Lock()
			s.pending--
			s.mu.Unlock()
			job(s.ctx)
		case <-s.ctx.Done():
			s.mu.Lock()
			s.pending--
			s.mu.Unlock()
		}
	}()
}

// Every runs job every interval until the scheduler stops. The first run is
// one interval from now. Each tick starts its own goroutine.
func (s *Scheduler) Every(interval time.Duration, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					job(s.ctx)
				}()
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// Pending returns the number of fire-once jobs waiting for their time
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Stop cancels all timers and waits for running jobs to return
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
