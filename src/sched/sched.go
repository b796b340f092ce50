// Package sched supervises the kernel's boot-time daemons: the timer
// tick driver, and whatever other long-running loops cmd/kernel starts
// (network receive pumps, the idle task). Grounded on scheduler.c's idle
// task -- the one process that never blocks and always has something
// runnable -- generalized from "one idle loop" to "a supervised group of
// loops" because a hosted simulation's boot sequence has several
// independent background pumps (clock, network) instead of a single PIT
// interrupt handler driving everything.
package sched

import "context"
import "time"

import "golang.org/x/sync/errgroup"

import "timer"

// Supervisor_t runs a set of daemons under one cancellation scope: if any
// daemon returns an error, every other daemon's context is cancelled,
// mirroring a kernel panic taking the whole system down rather than
// leaving half the boot daemons running against a dead one.
type Supervisor_t struct {
	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a Supervisor_t whose daemons run until Stop is called or one
// of them fails, derived from parent.
func New(parent context.Context) *Supervisor_t {
	cctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(cctx)
	return &Supervisor_t{g: g, ctx: gctx, cancel: cancel}
}

// Go runs fn as a supervised daemon.
func (s *Supervisor_t) Go(fn func(ctx context.Context) error) {
	s.g.Go(func() error { return fn(s.ctx) })
}

// RunTimerDaemon starts the system clock daemon: every period of real
// wall-clock time, it folds the elapsed time into timer.Tick's monotonic
// millisecond clock, firing any alarm, sleep, retransmit or ARP-cache
// timer that has expired. Grounded on kernel/timer.c's timer_tick being
// invoked from the PIT interrupt handler; here a ticker goroutine stands
// in for the PIT, the same goroutine-for-interrupt substitution
// process.go's package doc already documents for context switches.
func (s *Supervisor_t) RunTimerDaemon(period time.Duration) {
	s.Go(func(ctx context.Context) error {
		t := time.NewTicker(period)
		defer t.Stop()
		start := time.Now()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-t.C:
				timer.Tick(now.Sub(start).Milliseconds())
			}
		}
	})
}

// Stop cancels every supervised daemon.
func (s *Supervisor_t) Stop() { s.cancel() }

// Wait blocks until every daemon has returned, yielding the first
// non-context.Canceled error, if any. A plain Stop-induced shutdown
// reports nil, since cancellation is the ordinary way a supervisor ends.
func (s *Supervisor_t) Wait() error {
	err := s.g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}
