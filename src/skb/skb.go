// Package skb implements the socket kernel buffer of spec.md 4.5: a
// reference-counted, linear packet buffer with head/data/tail/end offsets
// and head-room for prepending protocol headers. Grounded on circbuf.go's
// single-buffer offset arithmetic (head/tail index bookkeeping, asserted
// invariants on every mutator) but linear rather than circular, and backed
// by kalloc.Kheap rather than a dedicated page, matching spec.md 4.5
// "allocates a reference-counted buffer of size bytes plus a small
// metadata header".
package skb

import "sync"

import "defs"
import "kalloc"
import "limits"

// NoMark means the corresponding header has not been stamped yet.
const NoMark = -1

// Skb_t is spec.md 3's "SKB": a single contiguous byte array with four
// integer offsets head <= data <= tail <= end, a reference count, and a
// list link for queuing (arp's pending list, tcp's inbox/outbox).
type Skb_t struct {
	sync.Mutex
	ptr  int // kalloc handle; 0 once freed
	size int // bytes requested at Alloc, for Bytes()

	head, data, tail, end int

	Mac, Network, Transport int // header marks, NoMark until Set*

	refcount int
	Next     *Skb_t // intrusive list link, owned by whatever queue holds the SKB
}

// Alloc allocates a size-byte SKB with refcount 1 and empty data
// (data = tail = head = 0, end = size), per spec.md 4.5. Returns nil and
// an error if the kernel is out of SKB budget or out of heap memory.
func Alloc(size int) (*Skb_t, defs.Err_t) {
	if !limits.Syslimit.Skbs.Take() {
		return nil, -defs.ENOSPC
	}
	ptr, err := kalloc.Kheap.Malloc(size)
	if err != 0 {
		limits.Syslimit.Skbs.Give()
		return nil, err
	}
	return &Skb_t{
		ptr: ptr, size: size,
		end:       size,
		Mac:       NoMark,
		Network:   NoMark,
		Transport: NoMark,
		refcount:  1,
	}, 0
}

// buf returns the full backing storage, for internal use only: callers
// must go through Data/Push/Put etc, which respect the offsets.
func (s *Skb_t) buf() []byte {
	return kalloc.Kheap.Bytes(s.ptr, s.size)
}

// Len returns tail - data, the current payload length.
func (s *Skb_t) Len() int {
	s.Lock()
	defer s.Unlock()
	return s.tail - s.data
}

// Head, Data, Tail, End expose the raw offsets, used by protocol layers
// to compute header placement and by tests asserting spec.md 8's SKB
// invariants.
func (s *Skb_t) Head() int { return s.head }
func (s *Skb_t) Data() int { s.Lock(); defer s.Unlock(); return s.data }
func (s *Skb_t) Tail() int { s.Lock(); defer s.Unlock(); return s.tail }
func (s *Skb_t) End() int  { return s.end }

// Bytes returns the slice of currently-valid payload, [data, tail).
func (s *Skb_t) Bytes() []byte {
	s.Lock()
	defer s.Unlock()
	return s.buf()[s.data:s.tail]
}

// Reserve shifts data and tail forward by n to leave n bytes of
// head-room for headers pushed later, per spec.md 4.5. Valid only on an
// empty SKB (data == tail == head), matching "(only on an empty SKB)".
func (s *Skb_t) Reserve(n int) {
	s.Lock()
	defer s.Unlock()
	if s.data != s.head || s.tail != s.head {
		panic("skb: Reserve on a non-empty SKB")
	}
	if s.head+n > s.end {
		panic("skb: Reserve overruns end")
	}
	s.data += n
	s.tail += n
}

// Push grows downward to prepend a header: asserts data - n >= head,
// decrements data, and returns the slice of newly-exposed bytes at the
// new data start, per spec.md 4.5.
func (s *Skb_t) Push(n int) []byte {
	s.Lock()
	defer s.Unlock()
	if s.data-n < s.head {
		panic("skb: Push underruns head-room")
	}
	s.data -= n
	return s.buf()[s.data : s.data+n]
}

// Put grows the tail to append data: asserts tail + n <= end, advances
// tail, and returns the slice of newly-exposed bytes at the old tail,
// per spec.md 4.5.
func (s *Skb_t) Put(n int) []byte {
	s.Lock()
	defer s.Unlock()
	if s.tail+n > s.end {
		panic("skb: Put overruns end")
	}
	old := s.tail
	s.tail += n
	return s.buf()[old:s.tail]
}

// Pull consumes n bytes from the front: asserts n <= len, advances data.
func (s *Skb_t) Pull(n int) {
	s.Lock()
	defer s.Unlock()
	if n > s.tail-s.data {
		panic("skb: Pull exceeds len")
	}
	s.data += n
}

// Trim shortens the payload to n bytes by moving tail to data+n, a
// no-op if n is not less than the current len, per spec.md 4.5.
func (s *Skb_t) Trim(n int) {
	s.Lock()
	defer s.Unlock()
	if n < s.tail-s.data {
		s.tail = s.data + n
	}
}

// MayPull reports whether Pull(n) would succeed, without mutating.
func (s *Skb_t) MayPull(n int) bool {
	s.Lock()
	defer s.Unlock()
	return n <= s.tail-s.data
}

// SetMac, SetNetwork, SetTransport stamp the current data offset as the
// start of the named header, per spec.md 3's "three optional header
// markers (mac/network/transport)".
func (s *Skb_t) SetMac()       { s.Lock(); s.Mac = s.data; s.Unlock() }
func (s *Skb_t) SetNetwork()   { s.Lock(); s.Network = s.data; s.Unlock() }
func (s *Skb_t) SetTransport() { s.Lock(); s.Transport = s.data; s.Unlock() }

// NetworkBytes returns n bytes starting at the stamped network-header
// offset, letting a protocol handler recover addressing fields (src/dest
// IP) after the header has since been Pull()ed off the front, per
// spec.md 4.5's "skb_network_header" idiom.
func (s *Skb_t) NetworkBytes(n int) []byte {
	s.Lock()
	defer s.Unlock()
	if s.Network == NoMark {
		panic("skb: no network header mark set")
	}
	return s.buf()[s.Network : s.Network+n]
}

// TransportBytes is NetworkBytes' analogue for the transport header mark.
func (s *Skb_t) TransportBytes(n int) []byte {
	s.Lock()
	defer s.Unlock()
	if s.Transport == NoMark {
		panic("skb: no transport header mark set")
	}
	return s.buf()[s.Transport : s.Transport+n]
}

// Clone produces an independent SKB with refcount 1, the same contents
// and offsets, per spec.md 4.5. Used whenever a packet fans out to more
// than one queue (arp's pending-list flush, tcp retransmission keeping
// its own copy while the original is handed to the device).
func (s *Skb_t) Clone() (*Skb_t, defs.Err_t) {
	s.Lock()
	defer s.Unlock()
	ns, err := Alloc(s.size)
	if err != 0 {
		return nil, err
	}
	copy(ns.buf(), s.buf())
	ns.head, ns.data, ns.tail, ns.end = s.head, s.data, s.tail, s.end
	ns.Mac, ns.Network, ns.Transport = s.Mac, s.Network, s.Transport
	return ns, 0
}

// Retain increments the reference count.
func (s *Skb_t) Retain() {
	s.Lock()
	s.refcount++
	s.Unlock()
}

// Release decrements the reference count, freeing the backing buffer and
// giving back the SKB budget slot once it reaches zero, per spec.md 4.5
// "release with refcount zero frees".
func (s *Skb_t) Release() {
	s.Lock()
	s.refcount--
	zero := s.refcount == 0
	s.Unlock()
	if !zero {
		return
	}
	kalloc.Kheap.Free(s.ptr)
	s.ptr = 0
	limits.Syslimit.Skbs.Give()
}

// Refcount reports the current reference count, for tests and diagnostics.
func (s *Skb_t) Refcount() int {
	s.Lock()
	defer s.Unlock()
	return s.refcount
}
