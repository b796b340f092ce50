package loader

import "testing"

import "heap"
import "mem"
import "paging"
import "process"

func newChild(t *testing.T) *process.Pcb_t {
	t.Helper()
	idle := process.Global.Idle()
	child, err := process.Fork(idle, func(self *process.Pcb_t) {})
	if err != 0 {
		t.Fatalf("Fork failed: %d", err)
	}
	child.Heap = heap.NewUserHeap(paging.HeapBase, paging.HeapBase+paging.HeapSlots*mem.SUPERSIZE)
	return child
}

func TestLoadCompatCopiesImageAndResolvesEntry(t *testing.T) {
	child := newChild(t)
	image := []byte("hello kernel")

	ldr := New()
	entry, err := ldr.Load(child, image, true)
	if err != 0 {
		t.Fatalf("Load failed: %d", err)
	}
	if entry == nil {
		t.Fatal("Load returned a nil entry func")
	}
	if child.Heap.Size() < len(image) {
		t.Fatalf("heap size %d too small for image of %d bytes", child.Heap.Size(), len(image))
	}
}

func TestLoadRejectsEmptyImage(t *testing.T) {
	child := newChild(t)
	ldr := New()
	if _, err := ldr.Load(child, nil, true); err == 0 {
		t.Fatal("Load must reject an empty image")
	}
}

func TestLoadRejectsGarbageELF(t *testing.T) {
	child := newChild(t)
	ldr := New()
	garbage := []byte{0x7f, 'E', 'L', 'F', 0, 0, 0, 0}
	if _, err := ldr.Load(child, garbage, false); err == 0 {
		t.Fatal("Load must reject a truncated/invalid ELF image")
	}
}
