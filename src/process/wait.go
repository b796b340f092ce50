package process

import "defs"
import "timer"

// Wait implements spec.md 4.10's Wait: "examine children; if any matches
// the requested PID/PGID and is a zombie, read its exit code, free its PCB
// slot, return. If any matches but is still alive, sleep on the wait queue
// and retry. If no process matches at all, fail." pid == 0 matches any
// child, mirroring process_wait_impl's wildcard.
func Wait(self *Pcb_t, pid int) (int, int, defs.Err_t) {
	for {
		children := Global.Children(self.Pid)
		var matched bool
		for _, c := range children {
			if pid != 0 && c.Pid != pid {
				continue
			}
			matched = true
			c.Lock()
			zombie := c.State == Zombie
			exitCode := c.ExitCode
			childPid := c.Pid
			c.Unlock()
			if zombie {
				Global.free(childPid)
				return childPid, exitCode, 0
			}
		}
		if !matched {
			return 0, 0, -defs.ESRCH
		}
		Sleep(self)
	}
}

// Halt implements spec.md 4.10's Halt: releases the process's resources,
// orphans live children to the kernel, reaps already-dead children,
// transitions to zombie and wakes the parent's wait if the parent is
// still alive, otherwise self-reaps. Does not spawn a fresh shell into
// the vacated terminal, and no other package in this tree does so either.
func Halt(self *Pcb_t, status int) {
	self.Lock()
	fds := self.Fds
	alarm := &self.AlarmTimer
	sleepT := &self.SleepTimer
	parentPid := self.ParentPid
	self.Unlock()

	timer.Cancel(alarm)
	timer.Cancel(sleepT)
	if fds != nil {
		fds.Deinit(nil)
	}
	self.Lock()
	self.Heap = nil
	self.Fds = nil
	self.ExitCode = status
	self.Unlock()

	// Orphan live children to the kernel, reap already-dead ones outright
	// (spec.md 4.10's Halt): a single pass over Children, since reparenting
	// first would hide the zombies this loop also needs to find.
	for _, c := range Global.Children(self.Pid) {
		c.Lock()
		dead := c.State == Zombie
		c.Unlock()
		if dead {
			Global.free(c.Pid)
		} else {
			c.Lock()
			c.ParentPid = -1
			c.Unlock()
		}
	}

	Remove(self)

	if parentPid <= 0 {
		Global.free(self.Pid)
		return
	}
	parent := Global.Get(parentPid)
	if parent == nil {
		Global.free(self.Pid)
		return
	}
	self.Lock()
	self.State = Zombie
	self.Unlock()
	Wake(parent)
}
