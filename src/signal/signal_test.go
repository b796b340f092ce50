package signal

import "testing"

import "defs"
import "process"

func newChild(t *testing.T) *process.Pcb_t {
	t.Helper()
	idle := process.Global.Idle()
	child, err := process.Fork(idle, func(self *process.Pcb_t) {})
	if err != 0 {
		t.Fatalf("Fork failed: %d", err)
	}
	return child
}

func TestRaiseWithNoHandlerIgnoresUserSignal(t *testing.T) {
	child := newChild(t)
	if err := Raise(child, defs.SIGUSR1); err != 0 {
		t.Fatalf("Raise failed: %d", err)
	}
	if HasPending(child) {
		t.Fatal("an unhandled SIGUSR1 must not read as pending once delivered (default action is ignore)")
	}
}

func TestSigactionThenRaiseInvokesDeliveryHook(t *testing.T) {
	child := newChild(t)
	var got Trampoline_t
	called := make(chan struct{}, 1)
	SetDeliveryHook(func(self *process.Pcb_t, tr Trampoline_t) {
		got = tr
		called <- struct{}{}
	})
	defer SetDeliveryHook(func(*process.Pcb_t, Trampoline_t) {})

	if err := Sigaction(child, defs.SIGUSR1, 0x1000); err != 0 {
		t.Fatalf("Sigaction failed: %d", err)
	}
	if err := Raise(child, defs.SIGUSR1); err != 0 {
		t.Fatalf("Raise failed: %d", err)
	}
	select {
	case <-called:
	default:
		t.Fatal("delivery hook was not invoked for an installed handler")
	}
	if got.Signum != defs.SIGUSR1 || got.Handler != 0x1000 {
		t.Fatalf("hook got %+v, want signum=%d handler=0x1000", got, defs.SIGUSR1)
	}

	child.Sig.Lock()
	masked := child.Sig.Masked
	child.Sig.Unlock()
	if masked&(1<<uint(defs.SIGUSR1)) == 0 {
		t.Fatal("a delivered signal must be masked until sigreturn")
	}

	if err := Sigreturn(child, defs.SIGUSR1); err != 0 {
		t.Fatalf("Sigreturn failed: %d", err)
	}
	child.Sig.Lock()
	masked = child.Sig.Masked
	child.Sig.Unlock()
	if masked&(1<<uint(defs.SIGUSR1)) != 0 {
		t.Fatal("Sigreturn must unmask the signal")
	}
}

func TestSigactionRejectsOutOfRangeSignum(t *testing.T) {
	child := newChild(t)
	if err := Sigaction(child, defs.Signum_t(99), 1); err == 0 {
		t.Fatal("Sigaction must reject an out-of-range signal number")
	}
}
