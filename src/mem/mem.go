// Package mem implements the page-frame allocator (spec.md 4.1) and the
// physical-page types paging, heap and kalloc build on. kern32 runs hosted
// in a normal Go process rather than on bare metal, so "physical memory" is
// a slab of byte pages this package owns; everything above it only ever
// sees frame numbers (mem.Pa_t) and never a raw pointer, which is exactly
// the abstraction spec.md 3 "Physical page" describes.
package mem

import "sync"

import "defs"
import "limits"

// PGSHIFT/PGSIZE describe the 4 KiB granule spec.md 3 uses for the main
// frame allocator.
const PGSHIFT uint = 12
const PGSIZE int = 1 << PGSHIFT

// SUPERSHIFT/SUPERSIZE describe the 4 MiB granule used for the kernel and
// user super-pages spec.md 4.2 "Paging" maps.
const SUPERSHIFT uint = 22
const SUPERSIZE int = 1 << SUPERSHIFT

// Pa_t is a physical frame number: an index, not a byte address, matching
// spec.md 3 "Physical page -- an integer frame number".
type Pa_t uint32

// NoFrame is returned by Alloc when the pool is exhausted and is also the
// reserved value for "frame zero", which spec.md 4.1 says is never handed
// out so callers may use it as a sentinel.
const NoFrame Pa_t = 0

// Page_t is the byte storage backing one 4 KiB frame.
type Page_t [PGSIZE]byte

// Superpage_t is the byte storage backing one 4 MiB frame.
type Superpage_t [SUPERSIZE]byte

// bitmapAlloc is a bitmap-indexed free-frame allocator (spec.md 4.1): scan
// for the first clear bit, set it, return the frame; free asserts the bit
// was set and clears it.
type bitmapAlloc struct {
	sync.Mutex
	used []bool
}

func newBitmapAlloc(n int) *bitmapAlloc {
	return &bitmapAlloc{used: make([]bool, n)}
}

func (b *bitmapAlloc) alloc() (int, bool) {
	b.Lock()
	defer b.Unlock()
	for idx := 0; idx < len(b.used); idx++ {
		if !b.used[idx] {
			b.used[idx] = true
			return idx, true
		}
	}
	return 0, false
}

func (b *bitmapAlloc) free(idx int) {
	b.Lock()
	defer b.Unlock()
	if idx < 0 || idx >= len(b.used) {
		panic("free: out of range frame")
	}
	if !b.used[idx] {
		panic("free: double free")
	}
	b.used[idx] = false
}

func (b *bitmapAlloc) isUsed(idx int) bool {
	b.Lock()
	defer b.Unlock()
	return b.used[idx]
}

func (b *bitmapAlloc) count() (free, total int) {
	b.Lock()
	defer b.Unlock()
	for _, u := range b.used {
		if !u {
			free++
		}
	}
	return free, len(b.used)
}

// Frames_t is the page-frame allocator of spec.md 4.1. The zero value is
// not usable; construct with NewFrames.
type Frames_t struct {
	bm     *bitmapAlloc
	pages  []Page_t
}

// NewFrames constructs an n-frame pool. Frame 0 and frame 1 (the "kernel
// frame") are reserved at boot per spec.md 4.1, matching the teacher's
// practice of reserving a block of low physical memory before handing out
// the rest (mem.go Phys_init reserves a fixed prefix of pages).
func NewFrames(n int) *Frames_t {
	f := &Frames_t{
		bm:    newBitmapAlloc(n),
		pages: make([]Page_t, n),
	}
	f.bm.used[0] = true // frame 0: reserved, doubles as the "none" sentinel
	if n > 1 {
		f.bm.used[1] = true // the kernel frame
	}
	return f
}

// Alloc hands out one free frame, or NoFrame if the pool is exhausted
// (spec.md 7 "Resource exhaustion").
func (f *Frames_t) Alloc() (Pa_t, defs.Err_t) {
	idx, ok := f.bm.alloc()
	if !ok {
		return NoFrame, -defs.ENOMEM
	}
	return Pa_t(idx), 0
}

// Free returns frame to the pool. It panics on a double-free or an
// out-of-range frame, matching spec.md 4.1's "assert the bit was set".
func (f *Frames_t) Free(p Pa_t) {
	f.bm.free(int(p))
}

// Page returns the byte storage for frame p. Callers use this in place of
// a direct-mapped virtual address; it is the hosted-process equivalent of
// the teacher's Physmem.Dmap.
func (f *Frames_t) Page(p Pa_t) *Page_t {
	return &f.pages[p]
}

// Count reports the number of free frames and the pool's total capacity,
// used by diagnostics and by tests asserting spec.md 8's frame invariant.
func (f *Frames_t) Count() (free, total int) {
	return f.bm.count()
}

// Physmem is the global page-frame allocator instance, sized from
// limits.Syslimit exactly as the teacher sizes Physmem from a boot-time
// reservation constant.
var Physmem = NewFrames(limits.Syslimit.Frames)

// Superframes is the 4 MiB granularity pool used for the single kernel and
// user super-pages spec.md 4.2 describes (64 frames covering the same 256
// MiB spec.md 3 names).
var Superframes = newSuperFrames(limits.Syslimit.Frames * PGSIZE / SUPERSIZE)

// SuperFrames_t mirrors Frames_t at 4 MiB granularity.
type SuperFrames_t struct {
	bm    *bitmapAlloc
	pages []Superpage_t
}

func newSuperFrames(n int) *SuperFrames_t {
	if n < 1 {
		n = 1
	}
	sf := &SuperFrames_t{bm: newBitmapAlloc(n), pages: make([]Superpage_t, n)}
	sf.bm.used[0] = true
	return sf
}

/// Alloc hands out one free 4 MiB frame.
func (sf *SuperFrames_t) Alloc() (Pa_t, defs.Err_t) {
	idx, ok := sf.bm.alloc()
	if !ok {
		return NoFrame, -defs.ENOMEM
	}
	return Pa_t(idx), 0
}

/// Free returns a 4 MiB frame to the pool.
func (sf *SuperFrames_t) Free(p Pa_t) {
	sf.bm.free(int(p))
}

/// Page returns the byte storage for the 4 MiB frame p.
func (sf *SuperFrames_t) Page(p Pa_t) *Superpage_t {
	return &sf.pages[p]
}
