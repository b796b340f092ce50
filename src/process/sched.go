package process

import "runtime"
import "sync"

// runq is spec.md 4.10's "single FIFO queue" of runnable PCBs, plus the two
// sleep queues (wait, generic) process.c/scheduler.c keep as separate
// list_t heads. Grounded on scheduler.c's scheduler_queue/scheduler_next_pcb
// /scheduler_add/scheduler_remove, reduced to bookkeeping: since Go
// goroutines are scheduled by the Go runtime and not by this package, the
// queue exists to preserve the testable invariants spec.md 8 names ("every
// runnable PCB appears at most once; the idle task is never in the
// queue"), not to actually dispatch a CPU.
var runqMu sync.Mutex
var runq []*Pcb_t

// Add appends pcb to the runnable queue, per scheduler.c's scheduler_add.
// A no-op if pcb is already queued (idempotent, unlike the original's
// assert-only guard, since a Go caller has no equivalent of "this can only
// happen once by construction").
func Add(pcb *Pcb_t) {
	pcb.Lock()
	already := pcb.inQueue
	pcb.inQueue = true
	pcb.Unlock()
	if already {
		return
	}
	runqMu.Lock()
	runq = append(runq, pcb)
	runqMu.Unlock()
}

// Remove drops pcb from the runnable queue, per scheduler.c's
// scheduler_remove. A no-op if not queued.
func Remove(pcb *Pcb_t) {
	pcb.Lock()
	queued := pcb.inQueue
	pcb.inQueue = false
	pcb.Unlock()
	if !queued {
		return
	}
	runqMu.Lock()
	for i, p := range runq {
		if p == pcb {
			runq = append(runq[:i], runq[i+1:]...)
			break
		}
	}
	runqMu.Unlock()
}

// Runnable returns a snapshot of the runnable queue's current PIDs, for
// tests and diagnostics exercising spec.md 8's scheduler invariants.
func Runnable() []int {
	runqMu.Lock()
	defer runqMu.Unlock()
	out := make([]int, len(runq))
	for i, p := range runq {
		out[i] = p.Pid
	}
	return out
}

// Yield is spec.md 4.10's scheduler_yield: in the original it picks the
// next PCB and performs a manual context switch. Here, every process is
// already its own goroutine, so the equivalent suspension point is simply
// giving the Go runtime a chance to run someone else; the FIFO queue's
// ordering guarantee comes from Go's own goroutine scheduler plus the
// sleep/wake channel discipline below, not from this call picking a
// specific successor.
func Yield() {
	runtime.Gosched()
}

// Sleep removes the calling PCB from the runnable queue, marks it
// Sleeping, and blocks until a matching Wake, per scheduler.c's
// scheduler_sleep. The channel receive is this simulation's suspension
// point (SPEC_FULL's "whose scheduler suspension points are channel
// receives").
func Sleep(pcb *Pcb_t) {
	since := pcb.Accnt.Now()
	pcb.Lock()
	pcb.State = Sleeping
	pcb.Unlock()
	Remove(pcb)
	<-pcb.resume
	pcb.Accnt.Sleep_time(since)
}

// Wake reinstates a sleeping pcb onto the runnable queue and unblocks its
// Sleep call, per scheduler.c's scheduler_wake. A no-op if pcb is not
// currently sleeping.
func Wake(pcb *Pcb_t) {
	pcb.Lock()
	if pcb.State != Sleeping {
		pcb.Unlock()
		return
	}
	pcb.State = Running
	pcb.Unlock()
	Add(pcb)
	pcb.resume <- struct{}{}
}
