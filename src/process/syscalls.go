package process

import "defs"
import "timer"

// Getpid returns self's PID, per spec.md 6's getpid syscall.
func Getpid(self *Pcb_t) int { return self.Pid }

// Getpgrp returns self's process group, per spec.md 6's getpgrp syscall.
func Getpgrp(self *Pcb_t) int {
	self.Lock()
	defer self.Unlock()
	return self.Pgrp
}

// Setpgrp sets pid's process group to pgrp, per spec.md 6's setpgrp
// syscall. pid == 0 means self.
func Setpgrp(self *Pcb_t, pid, pgrp int) defs.Err_t {
	target := self
	if pid != 0 {
		target = Global.Get(pid)
		if target == nil {
			return -defs.ESRCH
		}
	}
	target.Lock()
	target.Pgrp = pgrp
	target.Unlock()
	return 0
}

// Sbrk grows or shrinks self's heap by delta bytes, per spec.md 6's sbrk
// syscall, returning the break prior to the adjustment (matching
// process_sbrk's "orig_brk" out-param convention) or failing with
// whatever heap.Sbrk reports (spec.md 7's "paddr-vector realloc failure
// during sbrk -> no state change, return failure").
func Sbrk(self *Pcb_t, delta int) (int, defs.Err_t) {
	self.Lock()
	h := self.Heap
	self.Unlock()
	if h == nil {
		return 0, -defs.EINVAL
	}
	origBrk := h.Brk()
	if _, err := h.Sbrk(delta); err != 0 {
		return 0, err
	}
	return origBrk, 0
}

// monosleepTimer_t pairs a timer with the PCB it should wake, per
// scheduler.c's scheduler_sleep_timer_t.
type monosleepTimer_t struct {
	t   timer.Timer_t
	pcb *Pcb_t
}

// Monosleep implements spec.md 4.10's monosleep syscall: arms a per-PCB
// sleep timer that wakes self at the absolute monotonic deadline, then
// sleeps; returns whether the deadline was actually reached (false means
// woken early by something else -- the caller then knows to report
// "interrupted", per spec.md 234's "otherwise returns interrupted").
func Monosleep(self *Pcb_t, deadline int64) bool {
	mt := &monosleepTimer_t{pcb: self}
	timer.SetupAbs(&mt.t, deadline, func() { Wake(mt.pcb) })
	Sleep(self)
	timer.Cancel(&mt.t)
	return timer.Now() >= deadline
}

// Monotime returns the current monotonic time in ms, per spec.md 6's
// monotime syscall.
func Monotime() int64 { return timer.Now() }
