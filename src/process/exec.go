package process

import "defs"
import "heap"
import "mem"
import "paging"
import "timer"

// Loader_i loads an executable image into self's own address space, per
// spec.md 4.10's Exec: "if the file-descriptor table mode is compat... use
// a dumb copy-entire-file-into-user-page loader; otherwise walk program
// headers and copy each LOAD segment... replace the caller's register
// snapshot to point at the entry address." Load receives self directly
// (rather than a bare byte slice) because building the new image means
// growing and mapping self.Heap itself; package loader implements this
// against debug/elf. process only needs the entry point handed back,
// since "jump to entry" is EntryFunc's job here instead of an IRET frame
// rewrite.
type Loader_i interface {
	Load(self *Pcb_t, image []byte, compat bool) (entry EntryFunc, err defs.Err_t)
}

// Exec implements spec.md 4.10's Exec: resets the signal table and heap
// first (so ldr.Load has a clean address space to build the new image
// into), then validates and loads image via ldr, and rearms the alarm
// timer. Does not start the new image: on success it returns entryFn, and
// the caller runs it in a goroutine of its own (go entryFn(self)) and then
// returns, since the new image now owns the PCB.
func Exec(self *Pcb_t, ldr Loader_i, image []byte, args string) (EntryFunc, defs.Err_t) {
	self.Lock()
	if self.Sig != nil {
		self.Sig.reset()
	}
	if self.Heap != nil {
		self.Heap.Clear()
	} else {
		self.Heap = heap.NewUserHeap(paging.HeapBase, paging.HeapBase+paging.HeapSlots*mem.SUPERSIZE)
	}
	compat := self.Compat
	self.Unlock()

	entryFn, err := ldr.Load(self, image, compat)
	if err != 0 {
		return nil, err
	}

	self.Lock()
	self.Args = args
	self.Unlock()

	timer.Setup(&self.AlarmTimer, alarmPeriodMs, func() { raiseAlarm(self) })

	return entryFn, 0
}

// alarmHandler is installed by package signal's init (SetAlarmHandler),
// which turns a fired alarm into a SIGALRM raise. Until something calls
// SetAlarmHandler a fired alarm is silently ignored, matching spec.md
// 4.10's own default ("alarm is ignored by default") for a process with
// no SIGALRM handler installed.
var alarmHandler func(*Pcb_t) = func(*Pcb_t) {}

// SetAlarmHandler installs the system-wide SIGALRM delivery hook.
func SetAlarmHandler(h func(*Pcb_t)) { alarmHandler = h }

func raiseAlarm(self *Pcb_t) {
	alarmHandler(self)
	self.Lock()
	dying := self.State == Zombie
	self.Unlock()
	if !dying {
		timer.Setup(&self.AlarmTimer, alarmPeriodMs, func() { raiseAlarm(self) })
	}
}
