package process

import "testing"

func TestAddIsIdempotentInRunq(t *testing.T) {
	p, _ := Global.alloc()
	defer func() { Remove(p); Global.free(p.Pid) }()

	Add(p)
	Add(p)
	count := 0
	for _, pid := range Runnable() {
		if pid == p.Pid {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("pid %d appears %d times in the runnable queue, want 1", p.Pid, count)
	}
}

func TestSleepWakeRoundTrip(t *testing.T) {
	p, _ := Global.alloc()
	defer Global.free(p.Pid)
	Add(p)

	asleep := make(chan struct{})
	woke := make(chan struct{})
	go func() {
		close(asleep)
		Sleep(p)
		close(woke)
	}()
	<-asleep

	// Give the goroutine a moment to actually reach the channel receive
	// inside Sleep before waking it; Yield's runtime.Gosched() is this
	// simulation's cooperative handoff point.
	for i := 0; i < 100; i++ {
		Yield()
		p.Lock()
		st := p.State
		p.Unlock()
		if st == Sleeping {
			break
		}
	}

	Wake(p)
	<-woke

	p.Lock()
	st := p.State
	p.Unlock()
	if st != Running {
		t.Fatalf("state after Wake = %v, want Running", st)
	}
	found := false
	for _, pid := range Runnable() {
		if pid == p.Pid {
			found = true
		}
	}
	if !found {
		t.Fatal("Wake must reinstate the PCB onto the runnable queue")
	}
}

func TestWakeOnNonSleepingPcbIsNoop(t *testing.T) {
	p, _ := Global.alloc()
	defer Global.free(p.Pid)
	p.State = Running
	Wake(p) // must not block or panic
}
