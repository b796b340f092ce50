package paging

import "testing"

import "mem"

func TestMapUnmapRoundtrip(t *testing.T) {
	f, err := mem.Superframes.Alloc()
	if err != 0 {
		t.Fatal("alloc failed")
	}
	defer mem.Superframes.Free(f)

	if err := PageMap(UserBase, f, true); err != 0 {
		t.Fatalf("PageMap failed: %v", err)
	}
	if !IsMemoryAccessible(UserBase, 16, true, false) {
		t.Fatal("expected mapped region to be accessible")
	}
	if err := PageUnmap(UserBase); err != 0 {
		t.Fatalf("PageUnmap failed: %v", err)
	}
	if IsMemoryAccessible(UserBase, 16, true, false) {
		t.Fatal("expected region to be inaccessible after unmap")
	}
}

func TestCopyToFromUser(t *testing.T) {
	f, err := mem.Superframes.Alloc()
	if err != 0 {
		t.Fatal("alloc failed")
	}
	defer mem.Superframes.Free(f)
	if err := PageMap(UserBase, f, true); err != 0 {
		t.Fatal(err)
	}
	defer PageUnmap(UserBase)

	msg := []byte("hello, kernel")
	if err := CopyToUser(UserBase+0x100, msg); err != 0 {
		t.Fatalf("CopyToUser: %v", err)
	}
	got := make([]byte, len(msg))
	if err := CopyFromUser(got, UserBase+0x100); err != 0 {
		t.Fatalf("CopyFromUser: %v", err)
	}
	if string(got) != string(msg) {
		t.Fatalf("roundtrip mismatch: got %q want %q", got, msg)
	}
}

func TestStrscpyFromUser(t *testing.T) {
	f, err := mem.Superframes.Alloc()
	if err != 0 {
		t.Fatal("alloc failed")
	}
	defer mem.Superframes.Free(f)
	if err := PageMap(UserBase, f, true); err != 0 {
		t.Fatal(err)
	}
	defer PageUnmap(UserBase)

	src := append([]byte("argv0"), 0)
	if err := CopyToUser(UserBase, src); err != 0 {
		t.Fatal(err)
	}
	dest := make([]byte, 32)
	n, err := StrscpyFromUser(dest, UserBase, len(dest))
	if err != 0 {
		t.Fatalf("StrscpyFromUser: %v", err)
	}
	if string(dest[:n]) != "argv0" {
		t.Fatalf("got %q want argv0", dest[:n])
	}

	// no NUL within n -> ENAMETOOLONG
	all := make([]byte, mem.SUPERSIZE)
	for i := range all {
		all[i] = 'a'
	}
	if err := CopyToUser(UserBase, all[:4096]); err != 0 {
		t.Fatal(err)
	}
	if _, err := StrscpyFromUser(dest, UserBase, 8); err == 0 {
		t.Fatal("expected ENAMETOOLONG")
	}
}

func TestCloneUserPage(t *testing.T) {
	src, err := mem.Superframes.Alloc()
	if err != 0 {
		t.Fatal("alloc failed")
	}
	defer mem.Superframes.Free(src)
	dst, err := mem.Superframes.Alloc()
	if err != 0 {
		t.Fatal("alloc failed")
	}
	defer mem.Superframes.Free(dst)

	if err := PageMap(UserBase, src, true); err != 0 {
		t.Fatal(err)
	}
	defer PageUnmap(UserBase)

	if err := CopyToUser(UserBase+0x1000, []byte{0xAB}); err != 0 {
		t.Fatal(err)
	}
	if err := CloneUserPage(dst); err != 0 {
		t.Fatalf("CloneUserPage: %v", err)
	}
	dstPage := mem.Superframes.Page(dst)
	if dstPage[0x1000] != 0xAB {
		t.Fatalf("clone did not copy byte: got %x", dstPage[0x1000])
	}

	// parent overwrite must not perturb the clone
	if err := CopyToUser(UserBase+0x1000, []byte{0xCD}); err != 0 {
		t.Fatal(err)
	}
	if dstPage[0x1000] != 0xAB {
		t.Fatalf("clone observed parent's later write: got %x", dstPage[0x1000])
	}
}

func TestIsMemoryAccessibleRejectsBadLengths(t *testing.T) {
	if IsMemoryAccessible(UserBase, -1, true, false) {
		t.Fatal("expected negative length to be rejected")
	}
}
