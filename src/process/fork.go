package process

import "defs"
import "heap"
import "timer"

// EntryFunc is the body a forked or newly-created process runs, taking the
// place of "jump to the saved register set's EIP" in a goroutine world.
// The child runs childFn in a fresh goroutine once its PCB is fully
// populated; childFn is expected to call Halt when it's done, the way a
// real process's last instruction eventually does.
type EntryFunc func(self *Pcb_t)

// Fork clones parent into a freshly allocated PCB and starts it running
// childFn in its own goroutine, per spec.md 4.10's Fork: "clone caller's
// PCB into a fresh slot; allocate a new user frame; deep-copy the heap;
// copy register snapshot with return value 0 in the child; clone
// file-descriptor table, signal table, alarm timer, and argument string;
// ... add to scheduler queue." The "allocate a new user frame"/"copy
// register snapshot" steps are folded into heap.Clone (which owns frame
// allocation) and childFn (which replaces a register-snapshot jump
// target), since this simulation has no literal register file to copy.
func Fork(parent *Pcb_t, childFn EntryFunc) (*Pcb_t, defs.Err_t) {
	child, err := Global.alloc()
	if err != 0 {
		return nil, err
	}

	parent.Lock()
	parentHeap := parent.Heap
	parentFds := parent.Fds
	parentSig := parent.Sig
	parentArgs := parent.Args
	parentPgrp := parent.Pgrp
	parentTerm := parent.TerminalIndex
	parentVidmap := parent.Vidmap
	parentFbmap := parent.Fbmap
	parentCompat := parent.Compat
	parent.Unlock()

	var childHeap *heap.Heap_t
	if parentHeap != nil {
		childHeap, err = parentHeap.Clone()
		if err != 0 {
			Global.free(child.Pid)
			return nil, err
		}
	}

	child.Lock()
	child.ParentPid = parent.Pid
	child.State = New
	child.Pgrp = parentPgrp
	child.TerminalIndex = parentTerm
	child.Vidmap = parentVidmap
	child.Fbmap = parentFbmap
	child.Compat = parentCompat
	child.Args = parentArgs
	child.Heap = childHeap
	if parentFds != nil {
		child.Fds = parentFds.Clone()
	}
	if parentSig != nil {
		child.Sig = parentSig.clone()
	}
	child.Unlock()

	parent.Lock()
	timer.Clone(&child.AlarmTimer, &parent.AlarmTimer)
	parent.Unlock()

	child.State = Running
	Add(child)
	go childFn(child)

	return child, 0
}
