package defs

// Syscall numbers for the closed set spec.md 6 enumerates. The numbering
// itself is not load-bearing (no on-disk ABI to preserve); it exists so
// syscall391's dispatch table can be a plain array indexed by these
// constants, matching the table-indexed-by-number style the teacher uses
// for its own syscall table.
// Sysno_t identifies one syscall slot in the dispatch table.
type Sysno_t int

const (
	SYS_HALT Sysno_t = iota
	SYS_EXECUTE
	SYS_READ
	SYS_WRITE
	SYS_OPEN
	SYS_CLOSE
	SYS_CREATE
	SYS_UNLINK
	SYS_STAT
	SYS_SEEK
	SYS_TRUNCATE
	SYS_FCNTL
	SYS_IOCTL
	SYS_DUP
	SYS_GETARGS
	SYS_VIDMAP
	SYS_FBMAP
	SYS_FBUNMAP
	SYS_FBFLIP
	SYS_SBRK
	SYS_FORK
	SYS_EXEC
	SYS_WAIT
	SYS_MONOSLEEP
	SYS_MONOTIME
	SYS_GETPID
	SYS_GETPGRP
	SYS_SETPGRP
	SYS_TCGETPGRP
	SYS_TCSETPGRP
	SYS_SOCKET
	SYS_BIND
	SYS_CONNECT
	SYS_LISTEN
	SYS_ACCEPT
	SYS_RECVFROM
	SYS_SENDTO
	SYS_SHUTDOWN
	SYS_GETSOCKNAME
	SYS_GETPEERNAME
	SYS_SIGACTION
	SYS_SIGRETURN

	nsyscall
)

// NSYSCALL is the number of populated dispatch slots.
const NSYSCALL = int(nsyscall)
