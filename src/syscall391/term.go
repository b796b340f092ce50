package syscall391

import "terminal"

// numTerminals mirrors student-distrib/terminal.h and original_source/
// kernel/terminal.h's NUM_TERMINALS, the fixed count of virtual terminals
// the kernel multiplexes.
const numTerminals = 3

var terminals [numTerminals]*terminal.Term_t

// RegisterTerminal installs t as terminal index's backing terminal,
// called once per terminal from the boot sequence (cmd/kernel), which owns
// actually constructing each terminal.Term_t.
func RegisterTerminal(index int, t *terminal.Term_t) {
	terminals[index] = t
}

// termFor returns the terminal a process's TerminalIndex names, or nil if
// none is registered (the index is out of range or boot hasn't wired it
// yet).
func termFor(index int) *terminal.Term_t {
	if index < 0 || index >= numTerminals {
		return nil
	}
	return terminals[index]
}
