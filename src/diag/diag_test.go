package diag

import "bytes"
import "testing"

import "mem"
import "paging"
import "process"

func newTestProc(t *testing.T) *process.Pcb_t {
	t.Helper()
	idle := process.Global.Idle()
	child, err := process.Fork(idle, func(self *process.Pcb_t) {})
	if err != 0 {
		t.Fatalf("Fork failed: %d", err)
	}
	return child
}

func TestDumpDisassemblesKnownBytes(t *testing.T) {
	f, err := mem.Superframes.Alloc()
	if err != 0 {
		t.Fatalf("Superframes.Alloc failed: %d", err)
	}
	defer mem.Superframes.Free(f)
	if err := paging.PageMap(paging.UserBase, f, true); err != 0 {
		t.Fatalf("PageMap failed: %d", err)
	}
	defer paging.PageUnmap(paging.UserBase)

	// nop; nop; int $0x80 -- easy to recognize in the rendered output.
	code := []byte{0x90, 0x90, 0xcd, 0x80}
	if err := paging.CopyToUser(paging.UserBase, code); err != 0 {
		t.Fatalf("CopyToUser failed: %d", err)
	}

	self := newTestProc(t)
	var buf bytes.Buffer
	Dump(&buf, self, "test fault", paging.UserBase)

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("nop")) {
		t.Fatalf("dump missing nop disassembly, got:\n%s", out)
	}
	if !bytes.Contains([]byte(out), []byte("int")) {
		t.Fatalf("dump missing int disassembly, got:\n%s", out)
	}
}

func TestDumpWithoutFaultAddressSkipsDisasm(t *testing.T) {
	self := newTestProc(t)
	var buf bytes.Buffer
	Dump(&buf, self, "halt with no instruction pointer", 0)
	if buf.Len() == 0 {
		t.Fatal("Dump wrote nothing")
	}
}

func TestDumpProfileSucceeds(t *testing.T) {
	var buf bytes.Buffer
	if err := dumpProfile(&buf); err != nil {
		t.Fatalf("dumpProfile failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("dumpProfile wrote nothing")
	}
}
