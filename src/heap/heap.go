// Package heap implements the growable heap descriptor of spec.md 3/4.3: a
// contiguous virtual region backed by an explicit vector of physical
// frames, grown or shrunk by whole pages via sbrk, deep-copied by clone,
// and installed into the address space by map/unmap.
package heap

import "defs"
import "mem"
import "paging"
import "util"

// Kind_t distinguishes the two constructors spec.md 4.3 names.
type Kind_t int

const (
	KindUser Kind_t = iota
	KindKernel
)

// Heap_t is spec.md 3's "Heap descriptor". Invariants (spec.md 8):
//
//	size <= num_pages*PGSIZE <= cap_pages*PGSIZE <= end_vaddr-start_vaddr
type Heap_t struct {
	Start  int
	End    int
	Kind   Kind_t
	size   int
	frames []mem.Pa_t
	mapped bool
}

// NewUserHeap returns an empty, growable user heap over [start, end). Its
// frame vector is an ordinary Go slice; spec.md 4.3's caveat about not
// depending on an allocator that doesn't exist yet applies only to the
// kernel heap (NewKernelHeap), which kalloc bootstraps from.
func NewUserHeap(start, end int) *Heap_t {
	return &Heap_t{Start: start, End: end, Kind: KindUser}
}

// NewKernelHeap returns an empty kernel heap over [start, end) whose frame
// vector is the caller-supplied fixed-size buffer buf[:0:cap(buf)], per
// spec.md 4.3 "paddr vector supplied by the caller as a fixed-size buffer".
func NewKernelHeap(start, end int, buf []mem.Pa_t) *Heap_t {
	return &Heap_t{Start: start, End: end, Kind: KindKernel, frames: buf[:0]}
}

// Size returns the heap's logical byte size.
func (h *Heap_t) Size() int { return h.size }

// Brk returns the current break: Start + Size().
func (h *Heap_t) Brk() int { return h.Start + h.size }

// NumPages returns len(frames); exported for the invariant in spec.md 8.
func (h *Heap_t) NumPages() int { return len(h.frames) }

// CapPages returns cap(frames); 0 means unbounded (a plain Go slice grows).
func (h *Heap_t) CapPages() int { return cap(h.frames) }

func pages(size int) int {
	return util.Roundup(size, mem.PGSIZE) / mem.PGSIZE
}

// Sbrk grows or shrinks the heap by delta bytes and returns the break
// *before* the change, per spec.md 4.3. delta=0 never fails. Growth zeros
// the newly exposed bytes, from the old break to the end of its page and
// every following fresh page, matching "zero the bytes from the old brk to
// the old page boundary and beyond".
func (h *Heap_t) Sbrk(delta int) (int, defs.Err_t) {
	oldbrk := h.Brk()
	if delta == 0 {
		return oldbrk, 0
	}
	newSize := h.size + delta
	if newSize < 0 {
		return 0, -defs.EINVAL
	}
	if h.Start+newSize > h.End {
		return 0, -defs.ENOMEM
	}
	oldPages := pages(h.size)
	newPages := pages(newSize)

	switch {
	case newPages > oldPages:
		need := newPages - oldPages
		if h.Kind == KindKernel && oldPages+need > cap(h.frames) {
			return 0, -defs.ENOMEM
		}
		grown := make([]mem.Pa_t, 0, need)
		ok := true
		for i := 0; i < need; i++ {
			f, err := mem.Physmem.Alloc()
			if err != 0 {
				ok = false
				break
			}
			grown = append(grown, f)
		}
		if !ok {
			// roll back: no partial growth survives a failed sbrk
			// (spec.md 7 "Paddr-vector realloc failure during sbrk ->
			// no state change, return failure").
			for _, f := range grown {
				mem.Physmem.Free(f)
			}
			return 0, -defs.ENOMEM
		}
		h.frames = append(h.frames, grown...)
		h.size = newSize
		h.zeroFrom(oldbrk, oldPages)
	case newPages < oldPages:
		for i := newPages; i < oldPages; i++ {
			mem.Physmem.Free(h.frames[i])
		}
		h.frames = h.frames[:newPages]
		h.size = newSize
	default:
		h.size = newSize
	}
	if h.mapped && h.Kind == KindUser {
		h.remap()
	}
	return oldbrk, 0
}

// zeroFrom zeroes from oldbrk to the end of its containing page, then every
// whole page added after oldPages.
func (h *Heap_t) zeroFrom(oldbrk, oldPages int) {
	if oldPages > 0 && oldPages <= len(h.frames) {
		pg := mem.Physmem.Page(h.frames[oldPages-1])
		off := oldbrk - (h.Start + (oldPages-1)*mem.PGSIZE)
		for i := off; i < mem.PGSIZE; i++ {
			pg[i] = 0
		}
	}
	for i := oldPages; i < len(h.frames); i++ {
		pg := mem.Physmem.Page(h.frames[i])
		for j := range pg {
			pg[j] = 0
		}
	}
}

// Map installs the per-page entries for the entire frame vector, spec.md
// 4.3 "map". A kernel heap needs no virtual mapping: kernel code addresses
// its frames directly through mem.Physmem, mirroring how the teacher's
// Dmap gives the kernel a direct pointer with no page-table walk.
func (h *Heap_t) Map() defs.Err_t {
	if h.Kind == KindKernel {
		h.mapped = true
		return 0
	}
	if err := paging.HeapMap(h.frames); err != 0 {
		return err
	}
	h.mapped = true
	return 0
}

// Unmap removes the heap's page-table entries, spec.md 4.3 "unmap".
func (h *Heap_t) Unmap() defs.Err_t {
	if h.Kind == KindKernel {
		h.mapped = false
		return 0
	}
	if err := paging.HeapUnmap(len(h.frames)); err != 0 {
		return err
	}
	h.mapped = false
	return 0
}

func (h *Heap_t) remap() {
	paging.HeapUnmap(paging.HeapSlots * 1024)
	paging.HeapMap(h.frames)
}

// Mapped reports whether Map has been called without a matching Unmap.
func (h *Heap_t) Mapped() bool { return h.mapped }

// Clone deep-copies h: fresh frames are allocated and their contents
// memcpy'd from h, per spec.md 4.3 "clone". The source must be the
// currently-mapped heap (its frame contents are read directly here; a
// hosted kernel has no separate physical/virtual indirection to walk, the
// same simplification paging.CloneUserPage documents). The returned heap
// starts unmapped, per spec.md 4.3 "a newly-cloned heap is in the unmapped
// state".
func (h *Heap_t) Clone() (*Heap_t, defs.Err_t) {
	nh := &Heap_t{Start: h.Start, End: h.End, Kind: h.Kind, size: h.size}
	if cap(h.frames) != 0 {
		nh.frames = make([]mem.Pa_t, 0, cap(h.frames))
	}
	for _, f := range h.frames {
		nf, err := mem.Physmem.Alloc()
		if err != 0 {
			for _, got := range nh.frames {
				mem.Physmem.Free(got)
			}
			return nil, -defs.ENOMEM
		}
		*mem.Physmem.Page(nf) = *mem.Physmem.Page(f)
		nh.frames = append(nh.frames, nf)
	}
	return nh, 0
}

// Clear frees every frame owned by the heap and resets it to empty,
// spec.md 4.3 "clear".
func (h *Heap_t) Clear() {
	for _, f := range h.frames {
		mem.Physmem.Free(f)
	}
	h.frames = h.frames[:0]
	h.size = 0
	h.mapped = false
}
