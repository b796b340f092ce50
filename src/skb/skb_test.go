package skb

import "testing"

func TestAllocIsEmpty(t *testing.T) {
	s, err := Alloc(128)
	if err != 0 {
		t.Fatal(err)
	}
	if s.Head() != 0 || s.Data() != 0 || s.Tail() != 0 || s.End() != 128 {
		t.Fatalf("fresh skb = head %d data %d tail %d end %d, want 0 0 0 128",
			s.Head(), s.Data(), s.Tail(), s.End())
	}
	if s.Len() != 0 {
		t.Fatal("fresh skb must have len 0")
	}
	if s.Mac != NoMark || s.Network != NoMark || s.Transport != NoMark {
		t.Fatal("fresh skb must have no header marks")
	}
	s.Release()
}

func TestReserveLeavesHeadroom(t *testing.T) {
	s, _ := Alloc(128)
	s.Reserve(40)
	if s.Data() != 40 || s.Tail() != 40 {
		t.Fatalf("Reserve(40): data %d tail %d, want 40 40", s.Data(), s.Tail())
	}
	s.Release()
}

func TestReserveOnNonEmptyPanics(t *testing.T) {
	s, _ := Alloc(128)
	s.Put(10)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic reserving a non-empty skb")
		}
		s.Release()
	}()
	s.Reserve(4)
}

func TestPushPullIsIdentity(t *testing.T) {
	s, _ := Alloc(128)
	s.Reserve(54) // room for eth+ip+tcp headers
	s.Put(20)     // payload
	before := s.Data()
	beforeLen := s.Len()

	s.Push(14) // eth header
	if s.Data() != before-14 {
		t.Fatalf("Push(14): data %d want %d", s.Data(), before-14)
	}
	s.Pull(14)
	if s.Data() != before || s.Len() != beforeLen {
		t.Fatal("push(n); pull(n) must be an identity on data/len")
	}
	s.Release()
}

func TestPutGrowsTailAndLen(t *testing.T) {
	s, _ := Alloc(64)
	b := s.Put(10)
	if len(b) != 10 {
		t.Fatalf("Put returned %d bytes want 10", len(b))
	}
	if s.Tail() != 10 || s.Len() != 10 {
		t.Fatalf("after Put(10): tail %d len %d", s.Tail(), s.Len())
	}
	copy(b, []byte("0123456789"))
	if string(s.Bytes()) != "0123456789" {
		t.Fatalf("Bytes() = %q", s.Bytes())
	}
	s.Release()
}

func TestPutOverrunsEndPanics(t *testing.T) {
	s, _ := Alloc(16)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
		s.Release()
	}()
	s.Put(32)
}

func TestTrimShortensTail(t *testing.T) {
	s, _ := Alloc(64)
	s.Put(30)
	s.Trim(10)
	if s.Len() != 10 {
		t.Fatalf("Len after Trim(10) = %d want 10", s.Len())
	}
	// Trim to a length not shorter than the current len is a no-op.
	s.Trim(100)
	if s.Len() != 10 {
		t.Fatal("Trim must not grow the payload")
	}
	s.Release()
}

func TestMayPull(t *testing.T) {
	s, _ := Alloc(64)
	s.Put(20)
	if !s.MayPull(20) {
		t.Fatal("MayPull(20) should succeed with len 20")
	}
	if s.MayPull(21) {
		t.Fatal("MayPull(21) should fail with len 20")
	}
	if s.Len() != 20 {
		t.Fatal("MayPull must not mutate")
	}
	s.Release()
}

func TestHeaderMarks(t *testing.T) {
	s, _ := Alloc(128)
	s.Reserve(54)
	s.SetMac()
	s.Push(14)
	mac := s.Mac
	s.SetNetwork()
	s.Pull(14) // restore to post-eth offset, simulating header consumption elsewhere
	s.SetTransport()
	if mac == NoMark || s.Network == NoMark || s.Transport == NoMark {
		t.Fatal("header marks must be set")
	}
	s.Release()
}

func TestCloneIsIndependent(t *testing.T) {
	s, _ := Alloc(64)
	s.Put(10)
	copy(s.Bytes(), []byte("helloworld"))

	c, err := s.Clone()
	if err != 0 {
		t.Fatal(err)
	}
	if c.Refcount() != 1 {
		t.Fatal("clone must start with refcount 1")
	}
	if string(c.Bytes()) != "helloworld" {
		t.Fatalf("clone contents = %q", c.Bytes())
	}
	copy(c.Bytes(), []byte("XXXXXXXXXX"))
	if string(s.Bytes()) == "XXXXXXXXXX" {
		t.Fatal("clone must not alias the original's storage")
	}
	s.Release()
	c.Release()
}

func TestRetainReleaseFreesAtZero(t *testing.T) {
	s, _ := Alloc(32)
	s.Retain()
	if s.Refcount() != 2 {
		t.Fatal("Retain did not increment")
	}
	s.Release()
	if s.Refcount() != 1 {
		t.Fatal("refcount should be 1 after one release")
	}
	s.Release()
	if s.Refcount() != 0 {
		t.Fatal("refcount should be 0 after the final release")
	}
}

func TestNetworkBytesSurvivesPull(t *testing.T) {
	s, _ := Alloc(64)
	defer s.Release()
	hdr := s.Put(20)
	hdr[0] = 0x45
	s.SetNetwork()
	s.Put(10)
	s.Pull(20)
	if s.Len() != 10 {
		t.Fatalf("len after pull = %d want 10", s.Len())
	}
	nb := s.NetworkBytes(20)
	if nb[0] != 0x45 {
		t.Fatal("NetworkBytes must still see the header after Pull moved data past it")
	}
}

func TestNetworkBytesWithoutMarkPanics(t *testing.T) {
	s, _ := Alloc(32)
	defer s.Release()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic reading an unset network mark")
		}
	}()
	s.NetworkBytes(4)
}

func TestAllocRespectsSkbBudget(t *testing.T) {
	var got []*Skb_t
	for i := 0; i < 4; i++ {
		s, err := Alloc(32)
		if err != 0 {
			t.Fatal(err)
		}
		got = append(got, s)
	}
	for _, s := range got {
		s.Release()
	}
}
