// Package terminal implements spec.md 4's per-terminal stdin/stdout file
// objects: a cooked-mode line buffer gated by foreground-process-group
// membership, plus tcgetpgrp/tcsetpgrp and the Ctrl-C interrupt path.
//
// Grounded directly on original_source/kernel/terminal.c's
// terminal_wait_kbd_input (foreground check, newline scan, nonblocking
// EAGAIN, signal_has_pending EINTR, otherwise block), terminal_stdin_read/
// _write, terminal_stdout_read/_write (foreground-gated, "write always
// fails" for stdin swapped the other way for stdout), terminal_kbd_close
// ("always fails"), terminal_stdin_ioctl (STDIN_NONBLOCK), and
// terminal_tcsetpgrp_impl/terminal_interrupt. circbuf's Rawread/Copyin
// give this package the committed-line queue terminal.c's kbd_input_buf_t
// plays; unlike the original's raw keystroke buffer, a line is normalized
// to NFC (golang.org/x/text/unicode/norm) at commit time -- the character
// composition a real PS2 keyboard driver never has to worry about, but a
// Go-native terminal accepting arbitrary UTF-8 keystrokes does.
package terminal

import "io"
import "sync"

import "golang.org/x/text/unicode/norm"

import "circbuf"
import "defs"
import "fdops"
import "file"
import "process"
import "signal"

// cookedBufSz bounds a terminal's committed-line queue to one circbuf
// frame (circbuf.Cb_init's own limit is mem.PGSIZE).
const cookedBufSz = 4096

// STDIN_NONBLOCK is terminal_stdin_ioctl's request code.
const STDIN_NONBLOCK = 1

// Term_t is one spec.md 3 "Terminal": a committed-line queue readers
// drain, an in-progress edit line backspace/newline operate on, and the
// foreground process group that gates both stdin reads and stdout writes.
type Term_t struct {
	mu      sync.Mutex
	Index   int
	fgPgrp  int
	cooked  circbuf.Circbuf_t
	edit    []byte
	dataCh  chan struct{}
	Sink    io.Writer // where stdout writes are echoed; nil discards
}

// New returns a Term_t at the given terminal index with no foreground
// group set, per terminal_state_t's zero-initialized fg_group.
func New(index int) *Term_t {
	t := &Term_t{Index: index, dataCh: make(chan struct{})}
	t.cooked.Cb_init(cookedBufSz)
	return t
}

// Tcgetpgrp implements terminal_tcgetpgrp: the foreground group's pid, or
// 0 if none is set.
func (t *Term_t) Tcgetpgrp() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fgPgrp
}

// Tcsetpgrp implements terminal_tcsetpgrp_impl: installs pgrp as the
// terminal's foreground group.
func (t *Term_t) Tcsetpgrp(pgrp int) defs.Err_t {
	if pgrp <= 0 {
		return -defs.EINVAL
	}
	t.mu.Lock()
	t.fgPgrp = pgrp
	t.mu.Unlock()
	return 0
}

func (t *Term_t) broadcastLocked() {
	close(t.dataCh)
	t.dataCh = make(chan struct{})
}

// Feed delivers raw input bytes to the terminal's cooked-mode editor, the
// replacement for a PS2 keyboard interrupt handler appending scancodes:
// backspace (0x08 or DEL) erases the last uncommitted byte, and any other
// byte is appended to the in-progress line. A newline commits the line
// -- NFC-normalized -- to the readable queue and wakes any blocked
// readers, mirroring kbd_input_buf_t gaining a line for
// terminal_wait_kbd_input's newline scan to find.
func (t *Term_t) Feed(raw []byte) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range raw {
		switch b {
		case 0x08, 0x7f:
			if n := len(t.edit); n > 0 {
				t.edit = t.edit[:n-1]
			}
		default:
			t.edit = append(t.edit, b)
			if b == '\n' {
				line := norm.NFC.Bytes(t.edit)
				t.edit = t.edit[:0]
				if err := t.commitLocked(line); err != 0 {
					return err
				}
			}
		}
	}
	return 0
}

func (t *Term_t) commitLocked(line []byte) defs.Err_t {
	if err := t.cooked.Cb_ensure(); err != 0 {
		return err
	}
	if t.cooked.Left() < len(line) {
		return -defs.ENOSPC
	}
	if _, err := t.cooked.Copyin(fdops.MkKernelBuf(line)); err != 0 {
		return err
	}
	t.broadcastLocked()
	return 0
}

// peekLocked scans the cooked queue's live bytes for a newline, returning
// the number of bytes up to and including it, or -1 if none is buffered
// yet, per terminal_wait_kbd_input's own newline scan.
func (t *Term_t) peekLocked() int {
	if t.cooked.Empty() {
		return -1
	}
	r1, r2 := t.cooked.Rawread(0)
	for i, b := range r1 {
		if b == '\n' {
			return i + 1
		}
	}
	for i, b := range r2 {
		if b == '\n' {
			return len(r1) + i + 1
		}
	}
	return -1
}

// waitForLine blocks self until the cooked queue holds a complete line,
// honoring the same three early-exit conditions
// terminal_wait_kbd_input checks: not in the foreground group (EPERM,
// generalized from the original's silent -1), nonblocking with nothing
// ready (EAGAIN), and a pending signal (EINTR).
func (t *Term_t) waitForLine(self *process.Pcb_t, nonblock bool) (int, defs.Err_t) {
	for {
		t.mu.Lock()
		if t.fgPgrp != 0 && t.fgPgrp != process.Getpgrp(self) {
			t.mu.Unlock()
			return 0, -defs.EPERM
		}
		if n := t.peekLocked(); n >= 0 {
			t.mu.Unlock()
			return n, 0
		}
		ch := t.dataCh
		t.mu.Unlock()

		if nonblock {
			return 0, -defs.EAGAIN
		}
		if signal.HasPending(self) {
			return 0, -defs.EINTR
		}
		<-ch
	}
}

// stdinOps_t is terminal_stdin_read/_write/_kbd_close/_stdin_ioctl as an
// fdops.Fdops_i. Its nonblock bit is per-open-file state, mirroring
// file_obj_t.private's "(bool) nonblocking" in the original.
type stdinOps_t struct {
	mu       sync.Mutex
	term     *Term_t
	owner    *process.Pcb_t
	nonblock bool
}

// OpenStdin returns a file object bound to term's cooked input queue,
// scoped to self as the reader whose foreground-group membership gates
// every read, per terminal_kbd_open ("set to blocking mode by default").
func OpenStdin(term *Term_t, self *process.Pcb_t) *file.File_t {
	return file.Alloc(&stdinOps_t{term: term, owner: self}, file.F_READ)
}

func (o *stdinOps_t) Close() defs.Err_t   { return -defs.EPERM }
func (o *stdinOps_t) Reopen() defs.Err_t  { return 0 }
func (o *stdinOps_t) Seek(int, int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (o *stdinOps_t) Truncate(uint) defs.Err_t        { return -defs.EINVAL }
func (o *stdinOps_t) Fcntl(cmd, arg int) int           { return 0 }

func (o *stdinOps_t) Write(fdops.Uio_i) (int, defs.Err_t) { return 0, -defs.EPERM }

// Read implements terminal_stdin_read: waits for a complete line (subject
// to the foreground/nonblocking/signal checks in waitForLine), then
// drains up to len(dst)'s capacity worth of it -- never more than one
// line's content, matching "reads up to nbytes characters or the first
// line break, whichever occurs first".
func (o *stdinOps_t) Read(dst fdops.Uio_i) (int, defs.Err_t) {
	avail, err := o.term.waitForLine(o.owner, o.nonblock)
	if err != 0 {
		return 0, err
	}
	o.term.mu.Lock()
	defer o.term.mu.Unlock()
	n, err := o.term.cooked.Copyout_n(dst, avail)
	return n, err
}

func (o *stdinOps_t) Ioctl(cmd, arg int) (int, defs.Err_t) {
	if cmd != STDIN_NONBLOCK {
		return 0, -defs.EINVAL
	}
	o.mu.Lock()
	o.nonblock = arg != 0
	o.mu.Unlock()
	return 0, 0
}

func (o *stdinOps_t) Stat(st *fdops.Stat_t) defs.Err_t {
	o.term.mu.Lock()
	st.Size = o.term.cooked.Used()
	o.term.mu.Unlock()
	return 0
}

// stdoutOps_t is terminal_stdout_read/_write as an fdops.Fdops_i.
type stdoutOps_t struct {
	term  *Term_t
	owner *process.Pcb_t
}

// OpenStdout returns a file object that echoes writes to term's Sink,
// gated the same way terminal_stdout_write gates on fg_group.
func OpenStdout(term *Term_t, self *process.Pcb_t) *file.File_t {
	return file.Alloc(&stdoutOps_t{term: term, owner: self}, file.F_WRITE)
}

func (o *stdoutOps_t) Close() defs.Err_t   { return -defs.EPERM }
func (o *stdoutOps_t) Reopen() defs.Err_t  { return 0 }
func (o *stdoutOps_t) Seek(int, int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (o *stdoutOps_t) Truncate(uint) defs.Err_t        { return -defs.EINVAL }
func (o *stdoutOps_t) Fcntl(cmd, arg int) int           { return 0 }
func (o *stdoutOps_t) Ioctl(int, int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (o *stdoutOps_t) Read(fdops.Uio_i) (int, defs.Err_t) { return 0, -defs.EPERM }

func (o *stdoutOps_t) Write(src fdops.Uio_i) (int, defs.Err_t) {
	o.term.mu.Lock()
	fg := o.term.fgPgrp
	o.term.mu.Unlock()
	if fg != 0 && fg != process.Getpgrp(o.owner) {
		return 0, -defs.EPERM
	}
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	if o.term.Sink != nil {
		o.term.Sink.Write(buf[:n])
	}
	return n, 0
}

func (o *stdoutOps_t) Stat(st *fdops.Stat_t) defs.Err_t {
	st.Size = 0
	return 0
}

// Interrupt implements terminal_interrupt: Ctrl-C raises SIGINT against
// every process in the foreground group. raise is supplied by the
// caller so this package doesn't need to walk process.Global itself.
// No package in this tree calls Interrupt.
func (t *Term_t) Interrupt(raise func(pgrp int)) {
	t.mu.Lock()
	pgrp := t.fgPgrp
	t.mu.Unlock()
	if pgrp == 0 {
		return
	}
	raise(pgrp)
}
