// dispatch.go is this package's Dispatch entry point and per-syscall
// handler table, grounded on original_source/kernel/idt.c's
// handle_syscall ("regs->eax = syscall_handle(regs->ebx, regs->ecx,
// regs->edx, regs->esi, regs->edi, regs, regs->eax)") for the five-integer
// calling convention -- generalized from student-distrib/syscall.c's
// narrower 3-argument, 10-entry table because this closed set includes
// socket calls (recvfrom/sendto) that need an fd, a buffer, a length and
// an address in a single call.
package syscall391

import "sync"

import "defs"
import "fdops"
import "file"
import "inode"
import "limits"
import "loader"
import "mem"
import "paging"
import "process"
import "signal"
import "socket"
import "terminal"

import _ "tcp" // registers socket.TCP's vtable, per tcp/ops.go's init

// maxExecLen mirrors original_source/kernel/process.c's MAX_EXEC_LEN,
// the fixed buffer execute/exec copy the command line into.
const maxExecLen = 128

// handler is one dispatch-table slot: the five syscall arguments in
// registration order, returning the 32-bit value spec.md 6 specifies.
type handler func(self *process.Pcb_t, a, b, c, d, e int) int

var table [defs.NSYSCALL]handler

// execLoader is the shared loader.Loader_i both execute and exec load
// program images through.
var execLoader = loader.New()

// Dispatch looks up sysno in the table and invokes it with self as the
// calling process, per spec.md 6 "the kernel dispatches by a numeric
// table." An out-of-range or unregistered syscall number fails EINVAL,
// matching student-distrib/syscall.c's bounds check on NUM_SYSCALL.
func Dispatch(self *process.Pcb_t, sysno defs.Sysno_t, a, b, c, d, e int) int {
	if sysno < 0 || int(sysno) >= defs.NSYSCALL || table[sysno] == nil {
		return defs.EINVAL.Rc()
	}
	return table[sysno](self, a, b, c, d, e)
}

func init() {
	// There is no interpreter to run a delivered handler and have its own
	// `ret` issue the sigreturn syscall the way signal_deliver's trampoline
	// expects, so complete that round trip immediately on the handler's
	// behalf: Raise already ran the "as if the handler executed" bookkeeping
	// by the time this hook fires, and sigreturn is exactly the unmask step
	// that would otherwise never happen.
	signal.SetDeliveryHook(func(self *process.Pcb_t, t signal.Trampoline_t) {
		signal.Sigreturn(self, t.Signum)
	})

	table[defs.SYS_HALT] = sysHalt
	table[defs.SYS_EXECUTE] = sysExecute
	table[defs.SYS_READ] = sysRead
	table[defs.SYS_WRITE] = sysWrite
	table[defs.SYS_OPEN] = sysOpen
	table[defs.SYS_CLOSE] = sysClose
	table[defs.SYS_CREATE] = sysCreate
	table[defs.SYS_UNLINK] = sysUnlink
	table[defs.SYS_STAT] = sysStat
	table[defs.SYS_SEEK] = sysSeek
	table[defs.SYS_TRUNCATE] = sysTruncate
	table[defs.SYS_FCNTL] = sysFcntl
	table[defs.SYS_IOCTL] = sysIoctl
	table[defs.SYS_DUP] = sysDup
	table[defs.SYS_GETARGS] = sysGetargs
	table[defs.SYS_VIDMAP] = sysVidmap
	table[defs.SYS_FBMAP] = sysFbmap
	table[defs.SYS_FBUNMAP] = sysFbunmap
	table[defs.SYS_FBFLIP] = sysFbflip
	table[defs.SYS_SBRK] = sysSbrk
	table[defs.SYS_FORK] = sysFork
	table[defs.SYS_EXEC] = sysExec
	table[defs.SYS_WAIT] = sysWait
	table[defs.SYS_MONOSLEEP] = sysMonosleep
	table[defs.SYS_MONOTIME] = sysMonotime
	table[defs.SYS_GETPID] = sysGetpid
	table[defs.SYS_GETPGRP] = sysGetpgrp
	table[defs.SYS_SETPGRP] = sysSetpgrp
	table[defs.SYS_TCGETPGRP] = sysTcgetpgrp
	table[defs.SYS_TCSETPGRP] = sysTcsetpgrp
	table[defs.SYS_SOCKET] = sysSocket
	table[defs.SYS_BIND] = sysBind
	table[defs.SYS_CONNECT] = sysConnect
	table[defs.SYS_LISTEN] = sysListen
	table[defs.SYS_ACCEPT] = sysAccept
	table[defs.SYS_RECVFROM] = sysRecvfrom
	table[defs.SYS_SENDTO] = sysSendto
	table[defs.SYS_SHUTDOWN] = sysShutdown
	table[defs.SYS_GETSOCKNAME] = sysGetsockname
	table[defs.SYS_GETPEERNAME] = sysGetpeername
	table[defs.SYS_SIGACTION] = sysSigaction
	table[defs.SYS_SIGRETURN] = sysSigreturn
}

func putInt(uva int, v int) defs.Err_t {
	var buf [4]byte
	u := uint32(v)
	buf[0] = byte(u)
	buf[1] = byte(u >> 8)
	buf[2] = byte(u >> 16)
	buf[3] = byte(u >> 24)
	return paging.CopyToUser(uva, buf[:])
}

func copyCmd(uva int) (string, defs.Err_t) {
	var buf [maxExecLen]byte
	n, err := paging.StrscpyFromUser(buf[:], uva, maxExecLen)
	if err != 0 {
		return "", err
	}
	return string(buf[:n]), 0
}

// splitCmd splits a command line into its filename and argument tail, per
// original_source/kernel/process.c's exec parsing ("parse command line
// (filename + args)").
func splitCmd(cmd string) (string, string) {
	i := 0
	for i < len(cmd) && cmd[i] != ' ' {
		i++
	}
	name := cmd[:i]
	for i < len(cmd) && cmd[i] == ' ' {
		i++
	}
	return name, cmd[i:]
}

func sysHalt(self *process.Pcb_t, status, _, _, _, _ int) int {
	process.Halt(self, status)
	return status
}

// spawnChild builds a fresh PCB to run name(args) under, inheriting
// parent's process group and terminal but not its heap or descriptor
// table (a brand new image, not a clone), per spec.md 4.10's Exec
// description of what loading a program into a process entails. Used by
// execute (fork+load+wait); exec loads into the calling process itself
// and does not go through here.
func spawnChild(parent *process.Pcb_t, name, args string) (*process.Pcb_t, defs.Err_t) {
	idx, ok := rootfs.lookup(name)
	if !ok {
		return nil, -defs.ENOENT
	}
	rf := rootfs.file(idx)
	rf.mu.Lock()
	image := append([]byte{}, rf.data...)
	rf.mu.Unlock()

	child, err := process.Global.Alloc()
	if err != 0 {
		return nil, err
	}
	parent.Lock()
	pgrp := parent.Pgrp
	termIdx := parent.TerminalIndex
	compat := parent.Compat
	parent.Unlock()

	child.Lock()
	child.ParentPid = parent.Pid
	child.Pgrp = pgrp
	child.TerminalIndex = termIdx
	child.Compat = compat
	child.Fds = file.MkTable(limits.Syslimit.MaxFiles)
	child.Unlock()

	if term := termFor(termIdx); term != nil {
		in := terminal.OpenStdin(term, child)
		out := terminal.OpenStdout(term, child)
		child.Fds.Bind(0, in)
		child.Fds.Bind(1, out)
		in.Release(nil)
		out.Release(nil)
	}

	entryFn, err := process.Exec(child, execLoader, image, args)
	if err != 0 {
		// child never ran; Halt is the only exported path back to a
		// free PCB slot, so route the failed load through it exactly
		// as if the child had started and immediately exited.
		process.Halt(child, err.Rc())
		return nil, err
	}
	child.Lock()
	child.State = process.Running
	child.Unlock()
	process.Add(child)
	go entryFn(child)
	return child, 0
}

// sysExecute implements spec.md 4.10/6's execute(cmd): the classic
// create-a-child-and-wait-for-it call (fork + load + synchronous wait in
// one syscall), as opposed to exec's in-place image replacement.
// process.Wait has no signal-check of its own, which already gives
// execute the non-interruptible wait spec.md 234 implies ("any signals
// received during execution are delayed until the child process halts").
func sysExecute(self *process.Pcb_t, cmdUva, _, _, _, _ int) int {
	cmd, err := copyCmd(cmdUva)
	if err != 0 {
		return err.Rc()
	}
	name, args := splitCmd(cmd)
	if name == "" {
		return (-defs.ENOENT).Rc()
	}
	child, err := spawnChild(self, name, args)
	if err != 0 {
		return err.Rc()
	}
	_, exitCode, err := process.Wait(self, child.Pid)
	if err != 0 {
		return err.Rc()
	}
	return exitCode
}

// sysExec implements spec.md 4.10's Exec: replace the caller's own image
// in place. Runs entryFn in a fresh goroutine and returns 0; the caller's
// own goroutine is expected to return immediately after, since the PCB
// now belongs to the new image (process.Exec's doc comment).
func sysExec(self *process.Pcb_t, cmdUva, _, _, _, _ int) int {
	cmd, err := copyCmd(cmdUva)
	if err != 0 {
		return err.Rc()
	}
	name, args := splitCmd(cmd)
	idx, ok := rootfs.lookup(name)
	if !ok {
		return (-defs.ENOENT).Rc()
	}
	rf := rootfs.file(idx)
	rf.mu.Lock()
	image := append([]byte{}, rf.data...)
	rf.mu.Unlock()

	entryFn, err := process.Exec(self, execLoader, image, args)
	if err != 0 {
		return err.Rc()
	}
	go entryFn(self)
	return 0
}

// sysFork implements spec.md 4.10's Fork. There is no x86 interpreter in
// this simulation to resume the child at a saved instruction pointer (the
// same gap loader.makeEntry documents for a freshly exec'd image), so the
// forked child's body is the minimal EntryFunc that observes this
// simulation's one rule for a process with nothing left to run: halt
// immediately with status 0.
func sysFork(self *process.Pcb_t, _, _, _, _, _ int) int {
	child, err := process.Fork(self, func(c *process.Pcb_t) {
		process.Halt(c, 0)
	})
	if err != 0 {
		return err.Rc()
	}
	return child.Pid
}

func sysWait(self *process.Pcb_t, pid, statusUva, _, _, _ int) int {
	childPid, exitCode, err := process.Wait(self, pid)
	if err != 0 {
		return err.Rc()
	}
	if statusUva != 0 {
		putInt(statusUva, exitCode)
	}
	return childPid
}

func sysGetpid(self *process.Pcb_t, _, _, _, _, _ int) int  { return process.Getpid(self) }
func sysGetpgrp(self *process.Pcb_t, _, _, _, _, _ int) int { return process.Getpgrp(self) }

func sysSetpgrp(self *process.Pcb_t, pid, pgrp, _, _, _ int) int {
	return process.Setpgrp(self, pid, pgrp).Rc()
}

func sysSbrk(self *process.Pcb_t, delta, _, _, _, _ int) int {
	orig, err := process.Sbrk(self, delta)
	if err != 0 {
		return err.Rc()
	}
	return orig
}

func sysMonosleep(self *process.Pcb_t, deadline, _, _, _, _ int) int {
	if process.Monosleep(self, int64(deadline)) {
		return 0
	}
	return (-defs.EINTR).Rc()
}

func sysMonotime(self *process.Pcb_t, _, _, _, _, _ int) int {
	return int(process.Monotime())
}

func sysTcgetpgrp(self *process.Pcb_t, _, _, _, _, _ int) int {
	self.Lock()
	idx := self.TerminalIndex
	self.Unlock()
	term := termFor(idx)
	if term == nil {
		return (-defs.EINVAL).Rc()
	}
	return term.Tcgetpgrp()
}

func sysTcsetpgrp(self *process.Pcb_t, pgrp, _, _, _, _ int) int {
	self.Lock()
	idx := self.TerminalIndex
	self.Unlock()
	term := termFor(idx)
	if term == nil {
		return (-defs.EINVAL).Rc()
	}
	return term.Tcsetpgrp(pgrp).Rc()
}

func sysSigaction(self *process.Pcb_t, signum, handler, _, _, _ int) int {
	return signal.Sigaction(self, defs.Signum_t(signum), uintptr(handler)).Rc()
}

func sysSigreturn(self *process.Pcb_t, signum, _, _, _, _ int) int {
	return signal.Sigreturn(self, defs.Signum_t(signum)).Rc()
}

// vidmap/fbmap/fbunmap/fbflip -- spec.md 6, grounded on
// original_source/kernel/vbe.c's vbe_fbmap/vbe_fbunmap/vbe_fbflip. fbflip
// is a pure index toggle in the original (it writes a hardware Y-offset
// register and returns the new flip index; both framebuffer halves stay
// mapped throughout and the caller writes pixels directly), so no buffer
// copy belongs here.
var flipMu sync.Mutex
var flipState = map[int]bool{}

func sysVidmap(self *process.Pcb_t, outUva, _, _, _, _ int) int {
	if err := paging.UpdateVidmapPage(mem.NoFrame, true); err != 0 {
		return err.Rc()
	}
	if err := putInt(outUva, paging.VidmapBase); err != 0 {
		return err.Rc()
	}
	self.Lock()
	self.Vidmap = true
	self.Unlock()
	return 0
}

func sysFbmap(self *process.Pcb_t, outUva, _, _, _, _ int) int {
	if err := paging.UpdateVbePage(true); err != 0 {
		return err.Rc()
	}
	if err := putInt(outUva, paging.VBEBase); err != 0 {
		return err.Rc()
	}
	self.Lock()
	self.Fbmap = true
	self.Unlock()
	return 0
}

func sysFbunmap(self *process.Pcb_t, _, _, _, _, _ int) int {
	if err := paging.UpdateVbePage(false); err != 0 {
		return err.Rc()
	}
	self.Lock()
	self.Fbmap = false
	self.Unlock()
	flipMu.Lock()
	delete(flipState, self.Pid)
	flipMu.Unlock()
	return 0
}

func sysFbflip(self *process.Pcb_t, _, _, _, _, _ int) int {
	flipMu.Lock()
	defer flipMu.Unlock()
	cur := flipState[self.Pid]
	flipState[self.Pid] = !cur
	if cur {
		return 1
	}
	return 0
}

func sysGetargs(self *process.Pcb_t, bufUva, nbytes, _, _, _ int) int {
	self.Lock()
	args := self.Args
	self.Unlock()
	if len(args)+1 > nbytes {
		return (-defs.EINVAL).Rc()
	}
	b := make([]byte, len(args)+1)
	copy(b, args)
	if err := paging.CopyToUser(bufUva, b); err != 0 {
		return err.Rc()
	}
	return 0
}

func sockFromFd(self *process.Pcb_t, fd int) (*socket.Sock_t, defs.Err_t) {
	f, err := self.Fds.Get(fd)
	if err != 0 {
		return nil, err
	}
	sock, ok := f.Priv.(*socket.Sock_t)
	if !ok {
		return nil, -defs.EINVAL
	}
	return sock, 0
}

func sysSocket(self *process.Pcb_t, typ, _, _, _, _ int) int {
	sock, err := socket.New(socket.Type_t(typ))
	if err != 0 {
		return err.Rc()
	}
	f := sock.BindToFile()
	f.Priv = sock
	fd, err := self.Fds.Bind(-1, f)
	f.Release(nil)
	if err != 0 {
		return err.Rc()
	}
	return fd
}

func sysBind(self *process.Pcb_t, fd, addrUva, _, _, _ int) int {
	sock, err := sockFromFd(self, fd)
	if err != 0 {
		return err.Rc()
	}
	addr, err := copyAddrIn(addrUva)
	if err != 0 {
		return err.Rc()
	}
	return sock.Bind(addr).Rc()
}

func sysConnect(self *process.Pcb_t, fd, addrUva, _, _, _ int) int {
	sock, err := sockFromFd(self, fd)
	if err != 0 {
		return err.Rc()
	}
	addr, err := copyAddrIn(addrUva)
	if err != 0 {
		return err.Rc()
	}
	return sock.Connect(addr).Rc()
}

func sysListen(self *process.Pcb_t, fd, backlog, _, _, _ int) int {
	sock, err := sockFromFd(self, fd)
	if err != 0 {
		return err.Rc()
	}
	return sock.Listen(backlog).Rc()
}

func sysAccept(self *process.Pcb_t, fd, addrUva, _, _, _ int) int {
	sock, err := sockFromFd(self, fd)
	if err != 0 {
		return err.Rc()
	}
	newSock, addr, err := sock.Accept()
	if err != 0 {
		return err.Rc()
	}
	nf := newSock.BindToFile()
	nf.Priv = newSock
	if err := copyAddrOut(addrUva, addr); err != 0 {
		nf.Release(nil)
		return err.Rc()
	}
	fd2, err := self.Fds.Bind(-1, nf)
	nf.Release(nil)
	if err != 0 {
		return err.Rc()
	}
	return fd2
}

func sysRecvfrom(self *process.Pcb_t, fd, bufUva, nbytes, addrUva, _ int) int {
	sock, err := sockFromFd(self, fd)
	if err != 0 {
		return err.Rc()
	}
	uio := fdops.MkUserBuf(bufUva, nbytes)
	var addr socket.Addr_t
	n, err := sock.Recvfrom(uio, &addr)
	if err != 0 {
		return err.Rc()
	}
	if addrUva != 0 {
		copyAddrOut(addrUva, addr)
	}
	return n
}

func sysSendto(self *process.Pcb_t, fd, bufUva, nbytes, addrUva, _ int) int {
	sock, err := sockFromFd(self, fd)
	if err != 0 {
		return err.Rc()
	}
	uio := fdops.MkUserBuf(bufUva, nbytes)
	var addrPtr *socket.Addr_t
	if addrUva != 0 {
		addr, err := copyAddrIn(addrUva)
		if err != 0 {
			return err.Rc()
		}
		addrPtr = &addr
	}
	n, err := sock.Sendto(uio, addrPtr)
	if err != 0 {
		return err.Rc()
	}
	return n
}

func sysShutdown(self *process.Pcb_t, fd, _, _, _, _ int) int {
	sock, err := sockFromFd(self, fd)
	if err != 0 {
		return err.Rc()
	}
	return sock.Shutdown().Rc()
}

func sysGetsockname(self *process.Pcb_t, fd, addrUva, _, _, _ int) int {
	sock, err := sockFromFd(self, fd)
	if err != 0 {
		return err.Rc()
	}
	addr, err := sock.Getsockname()
	if err != 0 {
		return err.Rc()
	}
	if err := copyAddrOut(addrUva, addr); err != 0 {
		return err.Rc()
	}
	return 0
}

func sysGetpeername(self *process.Pcb_t, fd, addrUva, _, _, _ int) int {
	sock, err := sockFromFd(self, fd)
	if err != 0 {
		return err.Rc()
	}
	addr, err := sock.Getpeername()
	if err != 0 {
		return err.Rc()
	}
	if err := copyAddrOut(addrUva, addr); err != 0 {
		return err.Rc()
	}
	return 0
}

func sysRead(self *process.Pcb_t, fd, bufUva, nbytes, _, _ int) int {
	f, err := self.Fds.Get(fd)
	if err != 0 {
		return err.Rc()
	}
	n, err := f.Ops.Read(fdops.MkUserBuf(bufUva, nbytes))
	if err != 0 {
		return err.Rc()
	}
	return n
}

func sysWrite(self *process.Pcb_t, fd, bufUva, nbytes, _, _ int) int {
	f, err := self.Fds.Get(fd)
	if err != 0 {
		return err.Rc()
	}
	n, err := f.Ops.Write(fdops.MkUserBuf(bufUva, nbytes))
	if err != 0 {
		return err.Rc()
	}
	return n
}

func sysOpen(self *process.Pcb_t, nameUva, mode, _, _, _ int) int {
	var nameBuf [maxFilenameLen + 1]byte
	n, err := paging.StrscpyFromUser(nameBuf[:], nameUva, len(nameBuf))
	if err != 0 {
		return err.Rc()
	}
	f, err := openRegFile(string(nameBuf[:n]), defs.FDMode_t(mode))
	if err != 0 {
		return err.Rc()
	}
	fd, err := self.Fds.Bind(-1, f)
	f.Release(nil)
	if err != 0 {
		return err.Rc()
	}
	return fd
}

func sysClose(self *process.Pcb_t, fd, _, _, _, _ int) int {
	return self.Fds.Unbind(fd, nil).Rc()
}

func sysCreate(self *process.Pcb_t, nameUva, mode, _, _, _ int) int {
	var nameBuf [maxFilenameLen + 1]byte
	n, err := paging.StrscpyFromUser(nameBuf[:], nameUva, len(nameBuf))
	if err != 0 {
		return err.Rc()
	}
	name := string(nameBuf[:n])
	idx, err := rootfs.create(name)
	if err != 0 {
		return err.Rc()
	}
	rf := rootfs.file(idx)
	inode.Inodes.Ref(idx)
	ops := &regFileOps_t{fs: rootfs, inodeIdx: idx, rf: rf, mode: defs.FDMode_t(mode) | defs.O_CREAT}
	fileMode := 0
	if ops.mode.Readable() {
		fileMode |= file.F_READ
	}
	if ops.mode.Writable() {
		fileMode |= file.F_WRITE
	}
	f := file.Alloc(ops, fileMode)
	fd, err := self.Fds.Bind(-1, f)
	f.Release(nil)
	if err != 0 {
		return err.Rc()
	}
	return fd
}

func sysUnlink(self *process.Pcb_t, nameUva, _, _, _, _ int) int {
	var nameBuf [maxFilenameLen + 1]byte
	n, err := paging.StrscpyFromUser(nameBuf[:], nameUva, len(nameBuf))
	if err != 0 {
		return err.Rc()
	}
	return rootfs.unlink(string(nameBuf[:n])).Rc()
}

func sysStat(self *process.Pcb_t, fd, statUva, _, _, _ int) int {
	f, err := self.Fds.Get(fd)
	if err != 0 {
		return err.Rc()
	}
	var st fdops.Stat_t
	if err := f.Ops.Stat(&st); err != 0 {
		return err.Rc()
	}
	var buf [12]byte
	putIntAt(buf[0:4], st.Size)
	putIntAt(buf[4:8], st.Mode)
	putIntAt(buf[8:12], st.Rdev)
	if err := paging.CopyToUser(statUva, buf[:]); err != 0 {
		return err.Rc()
	}
	return 0
}

func putIntAt(b []byte, v int) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}

func sysSeek(self *process.Pcb_t, fd, off, whence, _, _ int) int {
	f, err := self.Fds.Get(fd)
	if err != 0 {
		return err.Rc()
	}
	pos, err := f.Ops.Seek(off, whence)
	if err != 0 {
		return err.Rc()
	}
	return pos
}

func sysTruncate(self *process.Pcb_t, fd, newlen, _, _, _ int) int {
	f, err := self.Fds.Get(fd)
	if err != 0 {
		return err.Rc()
	}
	return f.Ops.Truncate(uint(newlen)).Rc()
}

func sysFcntl(self *process.Pcb_t, fd, cmd, arg, _, _ int) int {
	f, err := self.Fds.Get(fd)
	if err != 0 {
		return err.Rc()
	}
	return f.Ops.Fcntl(cmd, arg)
}

func sysIoctl(self *process.Pcb_t, fd, cmd, arg, _, _ int) int {
	f, err := self.Fds.Get(fd)
	if err != 0 {
		return err.Rc()
	}
	n, err := f.Ops.Ioctl(cmd, arg)
	if err != 0 {
		return err.Rc()
	}
	return n
}

func sysDup(self *process.Pcb_t, src, dest, _, _, _ int) int {
	f, err := self.Fds.Get(src)
	if err != 0 {
		return err.Rc()
	}
	nf, err := file.Copy(f)
	if err != 0 {
		return err.Rc()
	}
	fd, err := self.Fds.Bind(dest, nf)
	nf.Release(nil)
	if err != 0 {
		return err.Rc()
	}
	return fd
}

