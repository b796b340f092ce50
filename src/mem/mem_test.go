package mem

import "testing"

func TestAllocFreeNoDoubleIssue(t *testing.T) {
	f := NewFrames(8)
	seen := map[Pa_t]bool{}
	var got []Pa_t
	for {
		p, err := f.Alloc()
		if err != 0 {
			break
		}
		if seen[p] {
			t.Fatalf("frame %d handed out twice without an intervening Free", p)
		}
		seen[p] = true
		got = append(got, p)
	}
	// frames 0 and 1 are reserved, so 6 of the 8 should have been handed out
	if len(got) != 6 {
		t.Fatalf("expected 6 free frames, got %d", len(got))
	}
	free, total := f.Count()
	if free != 0 || total != 8 {
		t.Fatalf("Count() = %d,%d want 0,8", free, total)
	}
	for _, p := range got {
		f.Free(p)
	}
	free, _ = f.Count()
	if free != 6 {
		t.Fatalf("after freeing all, Count().free = %d want 6", free)
	}
}

func TestDoubleFreePanics(t *testing.T) {
	f := NewFrames(4)
	p, err := f.Alloc()
	if err != 0 {
		t.Fatal("alloc failed")
	}
	f.Free(p)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	f.Free(p)
}

func TestExhaustion(t *testing.T) {
	f := NewFrames(3) // frames 0,1 reserved, only frame 2 available
	p, err := f.Alloc()
	if err != 0 {
		t.Fatal("expected one frame available")
	}
	if _, err := f.Alloc(); err == 0 {
		t.Fatal("expected ENOMEM once exhausted")
	}
	f.Free(p)
	if _, err := f.Alloc(); err != 0 {
		t.Fatal("expected alloc to succeed again after free")
	}
}
