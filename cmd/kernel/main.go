// Command kernel boots the simulation: it wires the package-level
// singletons (mem.Physmem, process.Global, inode.Inodes, arp.Cache) into a
// running system by creating the terminal set, seeding the RAM filesystem
// from an optional fixture image, starting the background daemons
// sched.Supervisor_t supervises, and running the first process to
// completion -- the hosted-Go-process analogue of a real kernel's boot
// sequence jumping to its init binary after bringing up paging, the heap
// allocator and the console.
//
// There is no assembly entry point or patched runtime here (the teacher,
// Biscuit, needs both); this command is the closest counterpart a hosted
// simulation has to kernel/main.go jumping into userinit after Kinit1/
// Kinit2 have brought up the allocator, scheduler and console driver.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"defs"
	"diag"
	"file"
	"fsimage"
	"limits"
	"loader"
	"process"
	"sched"
	"syscall391"
	"terminal"

	_ "signal" // installs the SIGALRM delivery path (process.SetAlarmHandler) via its own init
)

// tickPeriod is how often the boot-time clock daemon folds real wall-clock
// time into timer.Tick's monotonic millisecond clock, standing in for the
// PIT interrupt sched's own doc comment describes.
const tickPeriod = 10 * time.Millisecond

func main() {
	idle := process.Global.Idle()
	defer func() {
		if r := recover(); r != nil {
			diag.Dump(os.Stderr, idle, fmt.Sprintf("panic: %v", r), 0)
			os.Exit(1)
		}
	}()

	terms := bringUpTerminals()

	if len(os.Args) > 1 {
		if err := seedFromImage(os.Args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "kernel: loading image %q: %v\n", os.Args[1], err)
			os.Exit(1)
		}
	}

	sup := sched.New(context.Background())
	sup.RunTimerDaemon(tickPeriod)

	init, err := spawnInit(terms[0], os.Args[1:])
	if err != 0 {
		fmt.Fprintf(os.Stderr, "kernel: spawning init: %d\n", err)
		sup.Stop()
		sup.Wait()
		os.Exit(1)
	}

	_, exitCode, werr := process.Wait(idle, init.Pid)
	sup.Stop()
	if err := sup.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "kernel: daemon error: %v\n", err)
	}
	if werr != 0 {
		fmt.Fprintf(os.Stderr, "kernel: wait on init failed: %d\n", werr)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// bringUpTerminals constructs every virtual terminal and registers it with
// syscall391 so tcgetpgrp/tcsetpgrp and newly spawned processes' stdin/
// stdout can reach it. Terminal 0's stdout is echoed to the host's own
// stdout; the others have no sink, matching a virtual terminal nobody has
// switched the display to yet.
func bringUpTerminals() [3]*terminal.Term_t {
	var terms [3]*terminal.Term_t
	for i := range terms {
		t := terminal.New(i)
		if i == 0 {
			t.Sink = os.Stdout
		}
		terms[i] = t
		syscall391.RegisterTerminal(i, t)
	}
	return terms
}

// seedFromImage loads a fixture RAM filesystem image built by
// tools/ramfsimg (or hand-written in the same txtar format) into the
// system-wide RAM filesystem before the first process runs.
func seedFromImage(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for name, contents := range fsimage.Unpack(data) {
		if rc := syscall391.SeedFile(name, contents); rc != 0 {
			return fmt.Errorf("seeding %q: errno %d", name, rc.Rc())
		}
	}
	return nil
}

// initImage is the program spawnInit runs as the first process: a one-byte
// compat-mode image (the loader rejects an empty one), which
// loader.loadCompat copies into a one-byte heap; its entry is, as for
// every process in this simulation, an immediate halt. Booting with no real programs still
// exercises the full process/scheduler lifecycle end to end.
var initImage = []byte{0}

// spawnInit builds the system's very first process, directly against
// process.Global.Alloc since there is no parent PCB to Fork from (the
// same gap process.Global.Alloc's own doc comment names), wires its
// stdin/stdout to term, and execs the built-in initImage. A fixture file
// named "init" is not looked up.
func spawnInit(term *terminal.Term_t, args []string) (*process.Pcb_t, defs.Err_t) {
	p, err := process.Global.Alloc()
	if err != 0 {
		return nil, err
	}
	p.Lock()
	p.ParentPid = int(defs.PidKernel)
	p.TerminalIndex = term.Index
	p.Fds = file.MkTable(limits.Syslimit.MaxFiles)
	p.Compat = true
	p.Unlock()

	in := terminal.OpenStdin(term, p)
	out := terminal.OpenStdout(term, p)
	p.Fds.Bind(0, in)
	p.Fds.Bind(1, out)
	in.Release(nil)
	out.Release(nil)

	image := initImage
	argStr := ""
	if len(args) > 0 {
		argStr = args[0]
	}

	entryFn, err := process.Exec(p, loader.New(), image, argStr)
	if err != 0 {
		process.Halt(p, err.Rc())
		return nil, err
	}

	p.Lock()
	p.State = process.Running
	p.Unlock()
	process.Add(p)
	go entryFn(p)
	return p, 0
}
