package defs

// Pid_t identifies a process control block slot. The sentinel value refers
// to "the kernel" as a parent (spec.md 4.10 Halt: "orphan live children to
// the kernel").
type Pid_t int

const PidNone Pid_t = -1
const PidKernel Pid_t = 0

// Tid_t identifies a schedulable thread of control. kern32 runs exactly one
// thread per process, so Tid_t and Pid_t share a numbering space, but the
// types are kept distinct the way the teacher keeps Tid_t distinct from
// Pid_t in vm/as.go's Pgfault signature.
type Tid_t int

// Signum_t enumerates the five signal numbers spec.md 3 "Signal slot" lists.
type Signum_t int

const (
	SIGFPE  Signum_t = iota + 1 /// division-by-zero
	SIGSEGV                     /// segfault / bad memory access
	SIGINT                      /// Ctrl-C from the foreground terminal
	SIGALRM                     /// alarm timer expiry
	SIGUSR1                     /// user-defined
	NSIG    = int(SIGUSR1)
)

// FDMode_t are the file mode bits of spec.md 6 "File mode bits".
type FDMode_t int

const (
	O_RDONLY     FDMode_t = 0x1
	O_WRONLY     FDMode_t = 0x2
	O_RDWR       FDMode_t = FDMode_t(O_RDONLY | O_WRONLY)
	O_CREAT      FDMode_t = 0x4
	O_TRUNC      FDMode_t = 0x8
	O_APPEND     FDMode_t = 0x10
	O_NONBLOCK   FDMode_t = 0x20
	O_ACCMODEMASK         = FDMode_t(O_RDONLY | O_WRONLY)
)

// Readable/Writable report which half of O_RDWR a mode grants, used
// uniformly by file, terminal and socket read/write permission checks
// (spec.md 4.7 "check the mode against a permission mask derived from the
// call").
func (m FDMode_t) Readable() bool  { return m&O_RDONLY != 0 }
func (m FDMode_t) Writable() bool  { return m&O_WRONLY != 0 }
func (m FDMode_t) Nonblock() bool  { return m&O_NONBLOCK != 0 }
