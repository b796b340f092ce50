// Package signal implements spec.md 3/4.10's five-signal delivery
// machinery: sigaction, raise, sigreturn, pending/masked bookkeeping, and
// the default actions spec.md 7 names for an unhandled signal.
//
// Grounded on original_source/student-distrib/signal.c's signal_set_handler
// /signal_sigreturn/signal_handle/signal_handle_all/signal_has_pending/
// signal_raise. The original's signal_deliver pushes a small "movl
// $SYS_SIGRETURN, %eax; int 0x80" shellcode plus a saved int_regs_t onto
// the user stack so that a handler's own `ret` lands back in the kernel
// via sigreturn. This simulation has no user stack or saved register
// context to push that onto -- the same gap process.go's doc comment
// already names for ESP/EBP context switches -- so Trampoline_t records
// the bookkeeping half of signal_deliver (which signal, which handler,
// masking it so delivery can't re-enter) and hands it to a pluggable
// delivery hook instead of actually redirecting execution; syscall391
// installs the hook that turns a Trampoline_t into an observable effect.
package signal

import "sync"

import "defs"
import "process"

// Trampoline_t is the bookkeeping signal_deliver would push onto a user
// stack: which signal fired and which handler address it targets.
type Trampoline_t struct {
	Signum  defs.Signum_t
	Handler uintptr
}

var hookMu sync.Mutex
var deliveryHook func(self *process.Pcb_t, t Trampoline_t) = func(*process.Pcb_t, Trampoline_t) {}

// SetDeliveryHook installs the system-wide handler-invocation callback,
// called once per delivered signal with the trampoline signal_deliver
// would have built. Until installed, delivery is pure bookkeeping: the
// handler is marked masked and the pending bit is cleared, but nothing
// runs, matching the fact that there is no interpreter to run it on.
func SetDeliveryHook(h func(self *process.Pcb_t, t Trampoline_t)) {
	hookMu.Lock()
	defer hookMu.Unlock()
	deliveryHook = h
}

func callHook(self *process.Pcb_t, t Trampoline_t) {
	hookMu.Lock()
	h := deliveryHook
	hookMu.Unlock()
	h(self, t)
}

func init() {
	process.SetAlarmHandler(func(self *process.Pcb_t) {
		Raise(self, defs.SIGALRM)
	})
}

func validSignum(signum defs.Signum_t) bool {
	return signum >= 1 && int(signum) <= defs.NSIG
}

func bit(signum defs.Signum_t) uint32 {
	return 1 << uint(signum)
}

// Sigaction implements spec.md 6's sigaction syscall (signal_set_handler):
// installs handler as signum's handler address. A handler of 0 restores
// the default action, mirroring signal_init's "handler_addr = 0" meaning
// "no handler installed".
func Sigaction(self *process.Pcb_t, signum defs.Signum_t, handler uintptr) defs.Err_t {
	if !validSignum(signum) {
		return -defs.EINVAL
	}
	self.Sig.Lock()
	self.Sig.Handlers[signum] = handler
	self.Sig.Unlock()
	return 0
}

// Raise implements signal_raise: marks signum pending for self, then
// attempts immediate delivery. The original defers delivery to the next
// interrupt return (signal_handle_all runs from the IRET path); a hosted
// simulation has no such path, so delivery happens synchronously here,
// the same way Wake immediately resumes a sleeper instead of waiting for
// a scheduler tick.
func Raise(self *process.Pcb_t, signum defs.Signum_t) defs.Err_t {
	if !validSignum(signum) {
		return -defs.EINVAL
	}
	self.Sig.Lock()
	self.Sig.Pending |= bit(signum)
	self.Sig.Unlock()
	DeliverPending(self)
	return 0
}

// Sigreturn implements signal_sigreturn's surviving half: unmasking signum
// once its handler has run to completion. The original also restores a
// saved int_regs_t and sanitizes EFLAGS/segment registers from the
// trampoline's stashed context; with no register file to restore, only
// the unmask bookkeeping remains observable here.
func Sigreturn(self *process.Pcb_t, signum defs.Signum_t) defs.Err_t {
	if !validSignum(signum) {
		return -defs.EINVAL
	}
	self.Sig.Lock()
	self.Sig.Masked &^= bit(signum)
	self.Sig.Unlock()
	return 0
}

// HasPending implements signal_has_pending: true if some pending signal
// would actually do something, either because it has an unmasked handler
// installed, or because its default action is not "ignore" (division
// fault, segfault and Ctrl-C all default to killing the process; alarm
// and user-defined signals default to being ignored).
func HasPending(self *process.Pcb_t) bool {
	self.Sig.Lock()
	defer self.Sig.Unlock()
	for s := defs.Signum_t(1); int(s) <= defs.NSIG; s++ {
		if self.Sig.Pending&bit(s) == 0 {
			continue
		}
		if self.Sig.Handlers[s] != 0 && self.Sig.Masked&bit(s) == 0 {
			return true
		}
		switch s {
		case defs.SIGFPE, defs.SIGSEGV, defs.SIGINT:
			return true
		}
	}
	return false
}

// DeliverPending implements signal_handle_all: walks every signal number
// in order, delivering (or applying the default action for) the first one
// that is pending, exactly as the original's "break on first handled
// signal" loop does. Safe to call any number of times; a process with
// nothing pending is a no-op.
func DeliverPending(self *process.Pcb_t) {
	for s := defs.Signum_t(1); int(s) <= defs.NSIG; s++ {
		self.Sig.Lock()
		pending := self.Sig.Pending&bit(s) != 0
		self.Sig.Unlock()
		if !pending {
			continue
		}
		if handleOne(self, s) {
			return
		}
	}
}

// handleOne is signal_handle: if a handler is installed and the signal
// isn't masked, deliver it (mask it so delivery can't re-enter, clear
// pending, invoke the delivery hook) and report true. Otherwise apply the
// fixed default action spec.md 7 specifies, and report whether that
// default action did anything observable.
func handleOne(self *process.Pcb_t, signum defs.Signum_t) bool {
	self.Sig.Lock()
	handler := self.Sig.Handlers[signum]
	masked := self.Sig.Masked&bit(signum) != 0
	if handler != 0 && !masked {
		self.Sig.Masked |= bit(signum)
		self.Sig.Pending &^= bit(signum)
		self.Sig.Unlock()
		callHook(self, Trampoline_t{Signum: signum, Handler: handler})
		return true
	}
	self.Sig.Unlock()

	switch signum {
	case defs.SIGFPE, defs.SIGSEGV:
		process.Halt(self, 256)
		return true
	case defs.SIGINT:
		process.Halt(self, 130)
		return true
	}

	self.Sig.Lock()
	self.Sig.Pending &^= bit(signum)
	self.Sig.Unlock()
	return false
}
