package timer

import "testing"

// resetGlobal isolates each test from the package-level timer list, since
// Tick/Setup operate on a single global list.
func resetGlobal(t *testing.T) {
	t.Helper()
	global.Lock()
	global.head, global.tail, global.now = nil, nil, 0
	global.Unlock()
}

func TestInactiveTimerZeroValue(t *testing.T) {
	resetGlobal(t)
	var tm Timer_t
	if tm.Active() {
		t.Fatal("zero-value timer must be inactive")
	}
}

func TestSetupActivatesAndFires(t *testing.T) {
	resetGlobal(t)
	var tm Timer_t
	fired := false
	Setup(&tm, 10, func() { fired = true })
	if !tm.Active() {
		t.Fatal("Setup must activate the timer")
	}
	Tick(5)
	if fired {
		t.Fatal("fired before deadline")
	}
	Tick(10)
	if !fired {
		t.Fatal("did not fire at deadline")
	}
	if tm.Active() {
		t.Fatal("timer must deactivate once fired")
	}
}

func TestCancelDeactivates(t *testing.T) {
	resetGlobal(t)
	var tm Timer_t
	Setup(&tm, 10, func() { t.Fatal("cancelled timer must not fire") })
	Cancel(&tm)
	if tm.Active() {
		t.Fatal("Cancel must deactivate")
	}
	Tick(100)
}

func TestCancelOnInactiveIsNoop(t *testing.T) {
	resetGlobal(t)
	var tm Timer_t
	Cancel(&tm) // must not panic
	if tm.Active() {
		t.Fatal("still inactive")
	}
}

func TestReSetupCancelsPriorCallback(t *testing.T) {
	resetGlobal(t)
	var tm Timer_t
	first := false
	second := false
	Setup(&tm, 10, func() { first = true })
	Setup(&tm, 20, func() { second = true })
	Tick(20)
	if first {
		t.Fatal("first callback must be cancelled by the re-arm")
	}
	if !second {
		t.Fatal("second callback must fire")
	}
}

func TestFiresInDeadlineOrder(t *testing.T) {
	resetGlobal(t)
	var a, b, c Timer_t
	var order []int
	Setup(&c, 30, func() { order = append(order, 3) })
	Setup(&a, 10, func() { order = append(order, 1) })
	Setup(&b, 20, func() { order = append(order, 2) })
	Tick(100)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("fire order = %v, want [1 2 3]", order)
	}
}

func TestTickOnlyFiresExpired(t *testing.T) {
	resetGlobal(t)
	var a, b Timer_t
	aFired, bFired := false, false
	Setup(&a, 10, func() { aFired = true })
	Setup(&b, 50, func() { bFired = true })
	Tick(10)
	if !aFired {
		t.Fatal("a should have fired")
	}
	if bFired {
		t.Fatal("b should not have fired yet")
	}
	Tick(50)
	if !bFired {
		t.Fatal("b should have fired")
	}
}

func TestCallbackMayRearmItself(t *testing.T) {
	resetGlobal(t)
	var tm Timer_t
	count := 0
	var rearm func()
	rearm = func() {
		count++
		if count < 3 {
			Setup(&tm, 10, rearm)
		}
	}
	Setup(&tm, 10, rearm)
	Tick(10)
	Tick(20)
	Tick(30)
	if count != 3 {
		t.Fatalf("count = %d want 3", count)
	}
}

func TestCloneCopiesArmedState(t *testing.T) {
	resetGlobal(t)
	var src, dst Timer_t
	fired := false
	Setup(&src, 15, func() { fired = true })
	Clone(&dst, &src)
	if !dst.Active() {
		t.Fatal("Clone must activate dest when src is active")
	}
	if dst.When() != src.When() {
		t.Fatalf("dst.When() = %d want %d", dst.When(), src.When())
	}
	Tick(15)
	if !fired {
		t.Fatal("cloned timer must fire")
	}
}

func TestCloneOfInactiveLeavesDestInactive(t *testing.T) {
	resetGlobal(t)
	var src, dst Timer_t
	Clone(&dst, &src)
	if dst.Active() {
		t.Fatal("cloning an inactive timer must leave dest inactive")
	}
}

func TestCloneIntoActiveDestPanics(t *testing.T) {
	resetGlobal(t)
	var src, dst Timer_t
	Setup(&src, 10, func() {})
	Setup(&dst, 10, func() {})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic cloning into an active destination")
		}
	}()
	Clone(&dst, &src)
}

func TestNowTracksTick(t *testing.T) {
	resetGlobal(t)
	Tick(7)
	if Now() != 7 {
		t.Fatalf("Now() = %d want 7", Now())
	}
	Tick(3) // must not regress
	if Now() != 7 {
		t.Fatalf("Now() regressed to %d", Now())
	}
}
