package syscall391

import "testing"

import "defs"
import "file"
import "heap"
import "limits"
import "mem"
import "paging"
import "process"

// newTestProc builds a child PCB with a real file table and heap, the way
// execute()'s own spawnChild does, so syscall handlers exercising the fd
// table have something to operate on.
func newTestProc(t *testing.T) *process.Pcb_t {
	t.Helper()
	idle := process.Global.Idle()
	child, err := process.Fork(idle, func(self *process.Pcb_t) {})
	if err != 0 {
		t.Fatalf("Fork failed: %d", err)
	}
	child.Lock()
	child.Fds = file.MkTable(limits.Syslimit.MaxFiles)
	child.Heap = heap.NewUserHeap(paging.HeapBase, paging.HeapBase+paging.HeapSlots*mem.SUPERSIZE)
	child.Unlock()
	return child
}

// mapScratch maps one 4 MiB super-page at paging.UserBase for the
// duration of a test, giving syscall arguments a real user address to
// point copy-in/copy-out at, the same fixture paging_test.go uses.
func mapScratch(t *testing.T) int {
	t.Helper()
	f, err := mem.Superframes.Alloc()
	if err != 0 {
		t.Fatalf("Superframes.Alloc failed: %d", err)
	}
	if err := paging.PageMap(paging.UserBase, f, true); err != 0 {
		t.Fatalf("PageMap failed: %d", err)
	}
	t.Cleanup(func() {
		paging.PageUnmap(paging.UserBase)
		mem.Superframes.Free(f)
	})
	return paging.UserBase
}

func writeCString(t *testing.T, uva int, s string) {
	t.Helper()
	b := append([]byte(s), 0)
	if err := paging.CopyToUser(uva, b); err != 0 {
		t.Fatalf("CopyToUser failed: %d", err)
	}
}

func TestCreateOpenWriteReadClose(t *testing.T) {
	self := newTestProc(t)
	scratch := mapScratch(t)
	nameUva := scratch
	writeCString(t, nameUva, "greeting")

	fd := Dispatch(self, defs.SYS_CREATE, nameUva, int(defs.O_RDWR), 0, 0, 0)
	if fd < 0 {
		t.Fatalf("create failed: %d", fd)
	}

	bufUva := scratch + 0x200
	msg := "hello ramfs"
	writeCString(t, bufUva, msg)

	n := Dispatch(self, defs.SYS_WRITE, fd, bufUva, len(msg), 0, 0)
	if n != len(msg) {
		t.Fatalf("write returned %d, want %d", n, len(msg))
	}

	if rc := Dispatch(self, defs.SYS_SEEK, fd, 0, fdopsSeekSet, 0, 0); rc != 0 {
		t.Fatalf("seek failed: %d", rc)
	}

	readUva := scratch + 0x400
	n = Dispatch(self, defs.SYS_READ, fd, readUva, len(msg), 0, 0)
	if n != len(msg) {
		t.Fatalf("read returned %d, want %d", n, len(msg))
	}
	got := make([]byte, len(msg))
	if err := paging.CopyFromUser(got, readUva); err != 0 {
		t.Fatalf("CopyFromUser failed: %d", err)
	}
	if string(got) != msg {
		t.Fatalf("read back %q, want %q", got, msg)
	}

	if rc := Dispatch(self, defs.SYS_CLOSE, fd, 0, 0, 0, 0); rc != 0 {
		t.Fatalf("close failed: %d", rc)
	}

	if rc := Dispatch(self, defs.SYS_UNLINK, nameUva, 0, 0, 0, 0); rc != 0 {
		t.Fatalf("unlink failed: %d", rc)
	}

	rc := Dispatch(self, defs.SYS_OPEN, nameUva, int(defs.O_RDONLY), 0, 0, 0)
	if rc >= 0 {
		t.Fatal("open must fail once the name has been unlinked")
	}
}

const fdopsSeekSet = 0

func TestOpenMissingFileFailsENOENT(t *testing.T) {
	self := newTestProc(t)
	scratch := mapScratch(t)
	writeCString(t, scratch, "nosuchfile")

	rc := Dispatch(self, defs.SYS_OPEN, scratch, int(defs.O_RDONLY), 0, 0, 0)
	if rc != (-defs.ENOENT).Rc() {
		t.Fatalf("open of a missing file = %d, want %d", rc, (-defs.ENOENT).Rc())
	}
}

func TestDupSharesOffset(t *testing.T) {
	self := newTestProc(t)
	scratch := mapScratch(t)
	writeCString(t, scratch, "duptarget")
	fd := Dispatch(self, defs.SYS_CREATE, scratch, int(defs.O_RDWR), 0, 0, 0)
	if fd < 0 {
		t.Fatalf("create failed: %d", fd)
	}

	msg := "abcdef"
	bufUva := scratch + 0x200
	writeCString(t, bufUva, msg)
	if n := Dispatch(self, defs.SYS_WRITE, fd, bufUva, len(msg), 0, 0); n != len(msg) {
		t.Fatalf("write = %d, want %d", n, len(msg))
	}
	if rc := Dispatch(self, defs.SYS_SEEK, fd, 0, fdopsSeekSet, 0, 0); rc != 0 {
		t.Fatalf("seek failed: %d", rc)
	}

	fd2 := Dispatch(self, defs.SYS_DUP, fd, -1, 0, 0, 0)
	if fd2 < 0 || fd2 == fd {
		t.Fatalf("dup returned %d, want a distinct non-negative fd", fd2)
	}

	readUva := scratch + 0x400
	n := Dispatch(self, defs.SYS_READ, fd2, readUva, 3, 0, 0)
	if n != 3 {
		t.Fatalf("read via dup'd fd = %d, want 3", n)
	}
	n2 := Dispatch(self, defs.SYS_READ, fd, readUva, 3, 0, 0)
	if n2 != 3 {
		t.Fatalf("read via original fd = %d, want 3 (offset should be shared)", n2)
	}
	got := make([]byte, 3)
	if err := paging.CopyFromUser(got, readUva); err != 0 {
		t.Fatalf("CopyFromUser failed: %d", err)
	}
	if string(got) != "def" {
		t.Fatalf("read via original fd = %q, want %q (offset should be shared)", got, "def")
	}
}

func TestGetpidGetpgrpSetpgrp(t *testing.T) {
	self := newTestProc(t)
	if pid := Dispatch(self, defs.SYS_GETPID, 0, 0, 0, 0, 0); pid != self.Pid {
		t.Fatalf("getpid = %d, want %d", pid, self.Pid)
	}
	if rc := Dispatch(self, defs.SYS_SETPGRP, 0, 99, 0, 0, 0); rc != 0 {
		t.Fatalf("setpgrp failed: %d", rc)
	}
	if pgrp := Dispatch(self, defs.SYS_GETPGRP, 0, 0, 0, 0, 0); pgrp != 99 {
		t.Fatalf("getpgrp = %d, want 99", pgrp)
	}
}

func TestSbrkReturnsPriorBreak(t *testing.T) {
	self := newTestProc(t)
	// Sbrk requires a heap; exec/execute always set one up first, so the
	// empty one newTestProc builds at paging.HeapBase stands in for it
	// rather than going through a full image load.
	if prior := Dispatch(self, defs.SYS_SBRK, 0x100, 0, 0, 0, 0); prior != paging.HeapBase {
		t.Fatalf("sbrk(0x100) = %d, want the prior break %d", prior, paging.HeapBase)
	}
	if prior := Dispatch(self, defs.SYS_SBRK, 0, 0, 0, 0, 0); prior != paging.HeapBase+0x100 {
		t.Fatalf("sbrk(0) = %d, want %d", prior, paging.HeapBase+0x100)
	}
}

func TestForkReturnsDistinctChildPid(t *testing.T) {
	self := newTestProc(t)
	childPid := Dispatch(self, defs.SYS_FORK, 0, 0, 0, 0, 0)
	if childPid <= 0 || childPid == self.Pid {
		t.Fatalf("fork returned %d, want a fresh positive pid", childPid)
	}
}

func TestSigactionRoundTrip(t *testing.T) {
	self := newTestProc(t)
	if rc := Dispatch(self, defs.SYS_SIGACTION, int(defs.SIGUSR1), 0x1000, 0, 0, 0); rc != 0 {
		t.Fatalf("sigaction failed: %d", rc)
	}
	if rc := Dispatch(self, defs.SYS_SIGRETURN, int(defs.SIGUSR1), 0, 0, 0, 0); rc != 0 {
		t.Fatalf("sigreturn failed: %d", rc)
	}
}

func TestVidmapWritesBaseAddress(t *testing.T) {
	self := newTestProc(t)
	scratch := mapScratch(t)
	outUva := scratch + 0x800

	if rc := Dispatch(self, defs.SYS_VIDMAP, outUva, 0, 0, 0, 0); rc != 0 {
		t.Fatalf("vidmap failed: %d", rc)
	}
	var buf [4]byte
	if err := paging.CopyFromUser(buf[:], outUva); err != 0 {
		t.Fatalf("CopyFromUser failed: %d", err)
	}
	got := int(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24)
	if got != paging.VidmapBase {
		t.Fatalf("vidmap wrote %x, want %x", got, paging.VidmapBase)
	}
	if !self.Vidmap {
		t.Fatal("Vidmap flag must be set after a successful vidmap")
	}
}

func TestFbflipTogglesIndex(t *testing.T) {
	self := newTestProc(t)
	first := Dispatch(self, defs.SYS_FBFLIP, 0, 0, 0, 0, 0)
	second := Dispatch(self, defs.SYS_FBFLIP, 0, 0, 0, 0, 0)
	if first == second {
		t.Fatalf("fbflip returned %d twice in a row, want alternation", first)
	}
}

func TestDispatchUnknownSyscallFailsEINVAL(t *testing.T) {
	self := newTestProc(t)
	rc := Dispatch(self, defs.Sysno_t(-1), 0, 0, 0, 0, 0)
	if rc != (-defs.EINVAL).Rc() {
		t.Fatalf("unknown syscall = %d, want %d", rc, (-defs.EINVAL).Rc())
	}
}

func TestSeedFileIsVisibleToOpen(t *testing.T) {
	self := newTestProc(t)
	scratch := mapScratch(t)
	if err := SeedFile("seeded", []byte("boot fixture contents")); err != 0 {
		t.Fatalf("SeedFile failed: %d", err)
	}
	writeCString(t, scratch, "seeded")

	fd := Dispatch(self, defs.SYS_OPEN, scratch, int(defs.O_RDONLY), 0, 0, 0)
	if fd < 0 {
		t.Fatalf("open of seeded file failed: %d", fd)
	}

	readUva := scratch + 0x200
	want := "boot fixture contents"
	n := Dispatch(self, defs.SYS_READ, fd, readUva, len(want), 0, 0)
	if n != len(want) {
		t.Fatalf("read = %d, want %d", n, len(want))
	}
	got := make([]byte, len(want))
	if err := paging.CopyFromUser(got, readUva); err != 0 {
		t.Fatalf("CopyFromUser failed: %d", err)
	}
	if string(got) != want {
		t.Fatalf("read back %q, want %q", got, want)
	}
}

func TestSeedFileOverwritesExisting(t *testing.T) {
	if err := SeedFile("reseeded", []byte("first")); err != 0 {
		t.Fatalf("first SeedFile failed: %d", err)
	}
	if err := SeedFile("reseeded", []byte("second")); err != 0 {
		t.Fatalf("second SeedFile failed: %d", err)
	}
	idx, ok := rootfs.lookup("reseeded")
	if !ok {
		t.Fatal("reseeded file not found after SeedFile")
	}
	if got := string(rootfs.file(idx).data); got != "second" {
		t.Fatalf("file contents = %q, want %q", got, "second")
	}
}
