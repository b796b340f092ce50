package limits

import "unsafe"
import "sync/atomic"

/// Lhits counts limit hits.
var Lhits int

/// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

// Syslimit_t tracks system wide resource limits named directly in spec.md:
// MAX_PROCESSES (3 "PCB"), MAX_FILES (3 "File object"), the 256 MiB
// frame pool (3 "Physical page"), the ARP table (4.6), and the ephemeral
// port range [49152, 65535] (6 "Address types").
type Syslimit_t struct {
	// size of the fixed PCB table (spec.md 3 "PCBs live in a fixed-size
	// table of MAX_PROCESSES slots")
	MaxProcs int
	// size of each process's descriptor table (spec.md 3 "[0, MAX_FILES)")
	MaxFiles int
	// total physical 4 KiB frames managed by the page-frame allocator
	Frames int
	// ARP neighbor cache capacity (spec.md 4.6)
	ArpEnts int
	// per-socket cap on remembered outbox/inbox segments (budgeted, not a
	// hard per-connection array, mirroring the teacher's Tcpsegs knob)
	TcpSegs int
	// live SKB budget, taken on alloc and given back on release-to-zero
	Skbs Sysatomic_t
	// live socket budget (TCP + UDP), taken on socket(), given on close()
	Sockets Sysatomic_t
	// ephemeral port range, inclusive, spec.md 6
	EphemeralLo uint16
	EphemeralHi uint16
}

/// Syslimit describes the configured system wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		MaxProcs:    1024,
		MaxFiles:    256,
		Frames:      65536, // 256 MiB at 4 KiB granularity, spec.md 3
		ArpEnts:     1024,
		TcpSegs:     64,
		Skbs:        1 << 16,
		Sockets:     4096,
		EphemeralLo: 49152,
		EphemeralHi: 65535,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

/// Take decrements the limit and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
