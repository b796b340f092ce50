package process

import "testing"

func TestAllocAssignsSlotAndFreeReleasesIt(t *testing.T) {
	tbl := MkTable(4)
	p, err := tbl.alloc()
	if err != 0 {
		t.Fatal(err)
	}
	if p.Pid != 1 {
		t.Fatalf("first alloc got pid %d, want 1", p.Pid)
	}
	if p.State != New {
		t.Fatal("a freshly allocated PCB must start in state New")
	}
	tbl.free(p.Pid)
	if tbl.Get(p.Pid) != nil {
		t.Fatal("Get must miss a freed slot")
	}
}

func TestAllocExhaustionReturnsENOMEM(t *testing.T) {
	tbl := MkTable(1)
	if _, err := tbl.alloc(); err != 0 {
		t.Fatal(err)
	}
	if _, err := tbl.alloc(); err == 0 {
		t.Fatal("expected ENOMEM once the table's single slot is taken")
	}
}

func TestForkClonesStateAndStartsChild(t *testing.T) {
	parent, err := Global.alloc()
	if err != 0 {
		t.Fatal(err)
	}
	parent.Lock()
	parent.Args = "sh -c ls"
	parent.Pgrp = 7
	parent.Unlock()

	started := make(chan int, 1)
	child, err := Fork(parent, func(self *Pcb_t) {
		started <- self.Pid
	})
	if err != 0 {
		t.Fatal(err)
	}
	if child.Pid == parent.Pid {
		t.Fatal("child must get a distinct PID")
	}
	if got := <-started; got != child.Pid {
		t.Fatalf("child goroutine ran with pid %d, want %d", got, child.Pid)
	}
	child.Lock()
	args := child.Args
	pgrp := child.Pgrp
	child.Unlock()
	if args != "sh -c ls" {
		t.Fatalf("child args = %q, want inherited from parent", args)
	}
	if pgrp != 7 {
		t.Fatalf("child pgrp = %d, want inherited 7", pgrp)
	}

	Global.free(child.Pid)
	Global.free(parent.Pid)
}

func TestWaitReturnsExitCodeOnceChildIsZombie(t *testing.T) {
	parent, _ := Global.alloc()
	child, _ := Global.alloc()
	child.Lock()
	child.ParentPid = parent.Pid
	child.Unlock()

	done := make(chan struct{})
	go func() {
		Halt(child, 42)
		close(done)
	}()
	<-done

	pid, code, err := Wait(parent, 0)
	if err != 0 {
		t.Fatal(err)
	}
	if pid != child.Pid || code != 42 {
		t.Fatalf("Wait returned (pid=%d, code=%d), want (%d, 42)", pid, code, child.Pid)
	}
	if Global.Get(child.Pid) != nil {
		t.Fatal("Wait must free the reaped child's slot")
	}
	Global.free(parent.Pid)
}

func TestWaitWithNoMatchingChildFails(t *testing.T) {
	parent, _ := Global.alloc()
	defer Global.free(parent.Pid)
	if _, _, err := Wait(parent, 999); err == 0 {
		t.Fatal("expected ESRCH waiting on a nonexistent pid")
	}
}

func TestHaltOrphansLiveChildren(t *testing.T) {
	parent, _ := Global.alloc()
	child, _ := Global.alloc()
	child.Lock()
	child.ParentPid = parent.Pid
	child.State = Running
	child.Unlock()
	Add(child)

	Halt(parent, 0)

	child.Lock()
	orphaned := child.ParentPid
	child.Unlock()
	if orphaned != -1 {
		t.Fatalf("live child's parent pid = %d, want -1 (orphaned to kernel)", orphaned)
	}
	Remove(child)
	Global.free(child.Pid)
	Global.free(parent.Pid)
}
