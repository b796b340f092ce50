// Package timer implements spec.md 3's "Timer": a global, monotonic-time
// sorted list of one-shot callbacks. A timer is active iff its callback is
// non-nil. Grounded directly on kernel/timer.c's timer_setup_abs/
// timer_cancel/timer_tick/timer_clone (insert into a sorted intrusive
// list, O(1) cancellation, fire-then-clear on expiry, clone-while-inactive
// assertion), translated from the C intrusive list_t into an explicit
// doubly-linked Timer_t chain since Go has no generic list head to embed.
package timer

import "sync"

// Callback_t is invoked once when a timer's deadline is reached.
type Callback_t func()

// Timer_t is spec.md 3's "Timer": {expiration time (absolute monotonic
// ms), callback, intrusive list node}. The zero value is inactive and
// ready to use.
type Timer_t struct {
	when       int64
	callback   Callback_t
	prev, next *Timer_t
}

// Active reports whether the timer's callback is non-nil, per spec.md 3
// "A timer is 'active' iff its callback is non-null".
func (t *Timer_t) Active() bool {
	global.Lock()
	defer global.Unlock()
	return t.callback != nil
}

// When returns the timer's absolute deadline in monotonic ms; only
// meaningful while Active.
func (t *Timer_t) When() int64 {
	global.Lock()
	defer global.Unlock()
	return t.when
}

type list_t struct {
	sync.Mutex
	head, tail *Timer_t
	now        int64
}

var global = &list_t{}

// unlink removes t from the list. O(1), per spec.md 244 "cancellation is
// O(1) on the intrusive list". Caller holds global.Mutex.
func (l *list_t) unlink(t *Timer_t) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		l.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		l.tail = t.prev
	}
	t.prev, t.next = nil, nil
}

// insert places t in its sorted position (ascending by when), inserted
// before the first existing entry with a strictly later deadline so that
// timers sharing a deadline fire in arm order. Caller holds global.Mutex.
func (l *list_t) insert(t *Timer_t) {
	pos := l.head
	for pos != nil && pos.when <= t.when {
		pos = pos.next
	}
	if pos == nil {
		t.prev = l.tail
		t.next = nil
		if l.tail != nil {
			l.tail.next = t
		} else {
			l.head = t
		}
		l.tail = t
		return
	}
	t.next = pos
	t.prev = pos.prev
	if pos.prev != nil {
		pos.prev.next = t
	} else {
		l.head = t
	}
	pos.prev = t
}

func setupAbsLocked(t *Timer_t, when int64, cb Callback_t) {
	if cb == nil {
		panic("timer: nil callback")
	}
	if t.callback != nil {
		global.unlink(t)
	}
	t.when = when
	t.callback = cb
	global.insert(t)
}

// Setup arms t to fire delayMs after the current monotonic time, per
// spec.md 3/kernel/timer.c's timer_setup. Re-arms (cancelling the prior
// callback) if t is already active.
func Setup(t *Timer_t, delayMs int64, cb Callback_t) {
	if delayMs < 0 {
		panic("timer: negative delay")
	}
	global.Lock()
	defer global.Unlock()
	setupAbsLocked(t, global.now+delayMs, cb)
}

// SetupAbs arms t to fire at the given absolute monotonic time.
func SetupAbs(t *Timer_t, when int64, cb Callback_t) {
	global.Lock()
	defer global.Unlock()
	setupAbsLocked(t, when, cb)
}

// Cancel deactivates t. A no-op if t is not active, per kernel/timer.c's
// timer_cancel.
func Cancel(t *Timer_t) {
	global.Lock()
	defer global.Unlock()
	if t.callback != nil {
		global.unlink(t)
		t.callback = nil
	}
}

// Clone copies src's armed state into dest, per kernel/timer.c's
// timer_clone (used by process fork to carry over a PCB's alarm/sleep
// timers into the child). dest must be inactive.
func Clone(dest, src *Timer_t) {
	global.Lock()
	defer global.Unlock()
	if dest.callback != nil {
		panic("timer: Clone into an already-active timer")
	}
	dest.callback = src.callback
	if dest.callback != nil {
		dest.when = src.when
		global.insert(dest)
	}
}

// Now returns the current monotonic time in ms, as last advanced by Tick.
func Now() int64 {
	global.Lock()
	defer global.Unlock()
	return global.now
}

// Tick advances the monotonic clock to now (a no-op if now does not
// advance it) and fires every timer whose deadline has passed, in
// deadline order, per kernel/timer.c's timer_tick. Matches spec.md 225's
// "the timer tick... advances monotonic time, fires expired timers".
// Callbacks run after the list is unlocked, so a callback that arms or
// cancels another timer (or itself) never deadlocks.
func Tick(now int64) {
	global.Lock()
	if now > global.now {
		global.now = now
	}
	var fired []Callback_t
	for global.head != nil && global.head.when <= global.now {
		t := global.head
		global.unlink(t)
		fired = append(fired, t.callback)
		t.callback = nil
	}
	global.Unlock()
	for _, cb := range fired {
		cb()
	}
}
