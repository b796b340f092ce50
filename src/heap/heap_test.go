package heap

import "testing"

import "mem"

func TestSbrkGrowZerosAndAccounts(t *testing.T) {
	h := NewUserHeap(0x1000, 0x1000+16*mem.PGSIZE)
	old, err := h.Sbrk(100)
	if err != 0 {
		t.Fatalf("Sbrk: %v", err)
	}
	if old != h.Start {
		t.Fatalf("old brk = %#x want %#x", old, h.Start)
	}
	if h.Size() != 100 {
		t.Fatalf("Size() = %d want 100", h.Size())
	}
	if h.NumPages() != 1 {
		t.Fatalf("NumPages() = %d want 1", h.NumPages())
	}
	pg := mem.Physmem.Page(h.frames[0])
	for i, b := range pg {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %x", i, b)
		}
	}
	if h.Size() > h.NumPages()*mem.PGSIZE {
		t.Fatal("size exceeds num_pages*PGSIZE")
	}

	// grow across a page boundary and check the new page is also zeroed
	if _, err := h.Sbrk(mem.PGSIZE); err != 0 {
		t.Fatalf("Sbrk: %v", err)
	}
	if h.NumPages() != 2 {
		t.Fatalf("NumPages() = %d want 2", h.NumPages())
	}
	pg2 := mem.Physmem.Page(h.frames[1])
	for i, b := range pg2 {
		if b != 0 {
			t.Fatalf("new page byte %d not zeroed: %x", i, b)
		}
	}
	h.Clear()
}

func TestSbrkZeroNeverFails(t *testing.T) {
	h := NewUserHeap(0x1000, 0x1000+4*mem.PGSIZE)
	if _, err := h.Sbrk(0); err != 0 {
		t.Fatalf("Sbrk(0) must never fail: %v", err)
	}
}

func TestSbrkShrinkFreesFrames(t *testing.T) {
	h := NewUserHeap(0x1000, 0x1000+4*mem.PGSIZE)
	if _, err := h.Sbrk(3 * mem.PGSIZE); err != 0 {
		t.Fatal(err)
	}
	before, _ := mem.Physmem.Count()
	if _, err := h.Sbrk(-2 * mem.PGSIZE); err != 0 {
		t.Fatalf("shrink failed: %v", err)
	}
	if h.NumPages() != 1 {
		t.Fatalf("NumPages() = %d want 1", h.NumPages())
	}
	after, _ := mem.Physmem.Count()
	if after != before+2 {
		t.Fatalf("shrink did not free frames: before=%d after=%d", before, after)
	}
	h.Clear()
}

func TestSbrkRollbackOnExhaustion(t *testing.T) {
	// drain the global pool nearly dry, then demand more than remains
	free, _ := mem.Physmem.Count()
	var drained []mem.Pa_t
	for i := 0; i < free-1; i++ {
		f, err := mem.Physmem.Alloc()
		if err != 0 {
			t.Fatal("unexpected exhaustion while draining")
		}
		drained = append(drained, f)
	}
	defer func() {
		for _, f := range drained {
			mem.Physmem.Free(f)
		}
	}()

	h := NewUserHeap(0x1000, 0x1000+1<<20)
	sizeBefore := h.Size()
	if _, err := h.Sbrk(4 * mem.PGSIZE); err == 0 {
		t.Fatal("expected ENOMEM")
	}
	if h.Size() != sizeBefore || h.NumPages() != 0 {
		t.Fatal("failed sbrk must leave no state change")
	}
}

func TestKernelHeapCapBound(t *testing.T) {
	buf := make([]mem.Pa_t, 0, 2)
	h := NewKernelHeap(0, 2*mem.PGSIZE, buf)
	if _, err := h.Sbrk(2 * mem.PGSIZE); err != 0 {
		t.Fatalf("Sbrk within cap: %v", err)
	}
	if _, err := h.Sbrk(mem.PGSIZE); err == 0 {
		t.Fatal("expected ENOMEM once the fixed buffer is exhausted")
	}
	h.Clear()
}

func TestMapUnmapRoundtrip(t *testing.T) {
	h := NewUserHeap(0x2000, 0x2000+4*mem.PGSIZE)
	if _, err := h.Sbrk(2 * mem.PGSIZE); err != 0 {
		t.Fatal(err)
	}
	if err := h.Map(); err != 0 {
		t.Fatalf("Map: %v", err)
	}
	if !h.Mapped() {
		t.Fatal("expected Mapped() true after Map")
	}
	if err := h.Unmap(); err != 0 {
		t.Fatalf("Unmap: %v", err)
	}
	if h.Mapped() {
		t.Fatal("expected Mapped() false after Unmap")
	}
	h.Clear()
}

func TestCloneIsIndependent(t *testing.T) {
	h := NewUserHeap(0x3000, 0x3000+4*mem.PGSIZE)
	if _, err := h.Sbrk(mem.PGSIZE); err != 0 {
		t.Fatal(err)
	}
	mem.Physmem.Page(h.frames[0])[0] = 0xAB

	nh, err := h.Clone()
	if err != 0 {
		t.Fatalf("Clone: %v", err)
	}
	if nh.Mapped() {
		t.Fatal("clone must start unmapped")
	}
	if nh.Size() != h.Size() || nh.NumPages() != h.NumPages() {
		t.Fatal("clone size/pages mismatch")
	}
	if mem.Physmem.Page(nh.frames[0])[0] != 0xAB {
		t.Fatal("clone did not copy frame contents")
	}

	mem.Physmem.Page(h.frames[0])[0] = 0xCD
	if mem.Physmem.Page(nh.frames[0])[0] != 0xAB {
		t.Fatal("clone observed parent's later write")
	}

	mem.Physmem.Page(nh.frames[0])[1] = 0xEF
	if mem.Physmem.Page(h.frames[0])[1] == 0xEF {
		t.Fatal("parent observed clone's write")
	}

	h.Clear()
	nh.Clear()
}

func TestClearResetsToEmpty(t *testing.T) {
	h := NewUserHeap(0x4000, 0x4000+4*mem.PGSIZE)
	if _, err := h.Sbrk(2 * mem.PGSIZE); err != 0 {
		t.Fatal(err)
	}
	free, _ := mem.Physmem.Count()
	h.Clear()
	if h.Size() != 0 || h.NumPages() != 0 {
		t.Fatal("Clear did not reset size/pages")
	}
	if h.Mapped() {
		t.Fatal("Clear did not reset mapped")
	}
	after, _ := mem.Physmem.Count()
	if after != free+2 {
		t.Fatalf("Clear did not free frames: before=%d after=%d", free, after)
	}
}
