// Package kalloc implements the kernel's general-purpose allocator
// (spec.md 4.4): a boundary-tag free list over a single kernel heap,
// offering malloc/free/realloc/calloc. The design follows the classic
// implicit-list-with-boundary-tags scheme -- a leading and trailing
// sentinel block, best-fit search, split-on-allocate, and a
// previous-block-allocated bit that lets allocated blocks skip a footer --
// the same shape the retrieval pack's bare-metal kmalloc/kfree tutorials
// use, adapted here to address a Go byte slab instead of raw pointers.
package kalloc

import "encoding/binary"
import "sync"

import "defs"
import "heap"
import "mem"

const wsize = 4
const dsize = 8

// minBlock is the smallest free block: header + prev + next + footer.
const minBlock = 4 * wsize

// Poison patterns for freshly-allocated and freshly-freed regions, per
// spec.md 4.4's optional debugging aid.
const poisonAlloc = 0xba110ced
const poisonFree = 0xdeadbeef

// Kalloc_t is a boundary-tag allocator over one kernel heap. The zero
// value is not usable; construct with New.
type Kalloc_t struct {
	sync.Mutex
	h     *heap.Heap_t
	store []byte // fixed-capacity byte view of h; len grows/shrinks with h.Sbrk, cap never changes so Bytes() slices stay valid
	free  int    // offset of the free-list head, -1 if empty
	ready bool
}

// New constructs a kernel allocator whose frame accounting runs through a
// kernel heap over [start, end) backed by buf. The allocator lazily
// sbrks its first page on the first Malloc/Calloc/Realloc call, per
// spec.md 4.4 "on first call, it initialises...".
func New(start, end int, buf []mem.Pa_t) *Kalloc_t {
	return &Kalloc_t{h: heap.NewKernelHeap(start, end, buf), free: -1, store: make([]byte, 0, end-start)}
}

func roundup(n, a int) int { return (n + a - 1) &^ (a - 1) }

func alignNeed(size int) int {
	n := roundup(size+wsize, dsize)
	if n < minBlock {
		n = minBlock
	}
	return n
}

func (k *Kalloc_t) getHeader(off int) (size int, alloc, prevAlloc bool) {
	v := binary.LittleEndian.Uint32(k.store[off:])
	return int(v &^ 0x7), v&0x1 != 0, v&0x2 != 0
}

func (k *Kalloc_t) setHeader(off, size int, alloc, prevAlloc bool) {
	v := uint32(size)
	if alloc {
		v |= 0x1
	}
	if prevAlloc {
		v |= 0x2
	}
	binary.LittleEndian.PutUint32(k.store[off:], v)
}

func (k *Kalloc_t) setFooter(off, size int) {
	binary.LittleEndian.PutUint32(k.store[off+size-wsize:], uint32(size))
}

func (k *Kalloc_t) getPrev(off int) int {
	return int(int32(binary.LittleEndian.Uint32(k.store[off+wsize:])))
}

func (k *Kalloc_t) setPrev(off, v int) {
	binary.LittleEndian.PutUint32(k.store[off+wsize:], uint32(int32(v)))
}

func (k *Kalloc_t) getNext(off int) int {
	return int(int32(binary.LittleEndian.Uint32(k.store[off+2*wsize:])))
}

func (k *Kalloc_t) setNext(off, v int) {
	binary.LittleEndian.PutUint32(k.store[off+2*wsize:], uint32(int32(v)))
}

func (k *Kalloc_t) pushFree(off int) {
	k.setPrev(off, -1)
	k.setNext(off, k.free)
	if k.free != -1 {
		k.setPrev(k.free, off)
	}
	k.free = off
}

func (k *Kalloc_t) removeFree(off int) {
	p := k.getPrev(off)
	n := k.getNext(off)
	if p == -1 {
		k.free = n
	} else {
		k.setNext(p, n)
	}
	if n != -1 {
		k.setPrev(n, p)
	}
}

func (k *Kalloc_t) bestFit(need int) (int, bool) {
	best := -1
	bestSize := 0
	for off := k.free; off != -1; off = k.getNext(off) {
		sz, _, _ := k.getHeader(off)
		if sz >= need && (best == -1 || sz < bestSize) {
			best = off
			bestSize = sz
		}
	}
	return best, best != -1
}

// fixNextPrevAlloc updates the prev-alloc bit of the block immediately
// following off's (current) block, per spec.md 4.4 "update the
// previous-info of the next adjacent block too".
func (k *Kalloc_t) fixNextPrevAlloc(off int, allocBit bool) {
	size, _, _ := k.getHeader(off)
	next := off + size
	if next >= len(k.store) {
		return
	}
	nsize, nalloc, _ := k.getHeader(next)
	k.setHeader(next, nsize, nalloc, allocBit)
}

func (k *Kalloc_t) poison(off, n int, pattern uint32) {
	for i := 0; i+wsize <= n; i += wsize {
		binary.LittleEndian.PutUint32(k.store[off+i:], pattern)
	}
}

func (k *Kalloc_t) payloadLen(off int) int {
	size, _, _ := k.getHeader(off)
	return size - wsize
}

func (k *Kalloc_t) growStore(n int) defs.Err_t {
	if _, err := k.h.Sbrk(n); err != 0 {
		return err
	}
	old := len(k.store)
	k.store = k.store[:old+n]
	for i := old; i < old+n; i++ {
		k.store[i] = 0
	}
	return 0
}

// initLocked sbrks one page and lays down the two sentinel blocks with one
// free block filling the space between them, per spec.md 4.4.
func (k *Kalloc_t) initLocked() defs.Err_t {
	if err := k.growStore(mem.PGSIZE); err != 0 {
		return err
	}
	k.setHeader(0, 0, true, true) // left sentinel
	midOff := wsize
	midSize := len(k.store) - 2*wsize
	k.setHeader(midOff, midSize, false, true)
	k.setFooter(midOff, midSize)
	k.pushFree(midOff)
	rightOff := len(k.store) - wsize
	k.setHeader(rightOff, 0, true, false) // right sentinel (epilogue)
	k.ready = true
	return 0
}

// growLocked grows the heap by a page-aligned multiple of need, reclaims
// the old epilogue word into a new free block, and coalesces it with
// whatever free block precedes it, per spec.md 4.4 malloc step 3.
func (k *Kalloc_t) growLocked(need int) defs.Err_t {
	grown := roundup(need, mem.PGSIZE)
	epilogueOff := len(k.store) - wsize
	_, _, prevAlloc := k.getHeader(epilogueOff)
	if err := k.growStore(grown); err != 0 {
		return err
	}
	newFreeSize := grown
	k.setHeader(epilogueOff, newFreeSize, false, prevAlloc)
	k.setFooter(epilogueOff, newFreeSize)
	rightOff := len(k.store) - wsize
	k.setHeader(rightOff, 0, true, false)
	k.pushFree(epilogueOff)
	k.coalesce(epilogueOff)
	return 0
}

// coalesce merges the free block at off with any free neighbors, per
// spec.md 4.4 free's "coalesce forward and backward, maintaining the
// implicit list's prev_info of the next-next block".
func (k *Kalloc_t) coalesce(off int) {
	k.removeFree(off)
	size, _, myPrevAlloc := k.getHeader(off)
	finalOff := off
	finalPrevAlloc := myPrevAlloc

	if !myPrevAlloc {
		psize := int(binary.LittleEndian.Uint32(k.store[off-wsize:]))
		prevOff := off - psize
		_, _, prevPrevAlloc := k.getHeader(prevOff)
		k.removeFree(prevOff)
		size += psize
		finalOff = prevOff
		finalPrevAlloc = prevPrevAlloc
	}

	next := finalOff + size
	if next < len(k.store) {
		nsize, nalloc, _ := k.getHeader(next)
		if !nalloc {
			k.removeFree(next)
			size += nsize
		}
	}

	k.setHeader(finalOff, size, false, finalPrevAlloc)
	k.setFooter(finalOff, size)
	k.pushFree(finalOff)
	k.fixNextPrevAlloc(finalOff, false)
}

// allocate removes the free block at off from the free list, splitting
// off the excess if it is large enough to stand alone, per spec.md 4.4
// malloc steps 4-5.
func (k *Kalloc_t) allocate(off, need int) {
	size, _, prevAlloc := k.getHeader(off)
	k.removeFree(off)
	if size-need >= minBlock {
		k.setHeader(off, need, true, prevAlloc)
		newOff := off + need
		newSize := size - need
		k.setHeader(newOff, newSize, false, true)
		k.setFooter(newOff, newSize)
		k.pushFree(newOff)
		k.fixNextPrevAlloc(newOff, false)
	} else {
		k.setHeader(off, size, true, prevAlloc)
		k.fixNextPrevAlloc(off, true)
	}
}

// shrinkInPlace splits curSize down to need if the remainder is large
// enough to become its own free block, per realloc's shrink case.
func (k *Kalloc_t) shrinkInPlace(off, curSize, need int, prevAlloc bool) {
	if curSize-need >= minBlock {
		k.setHeader(off, need, true, prevAlloc)
		newOff := off + need
		newSize := curSize - need
		k.setHeader(newOff, newSize, false, true)
		k.setFooter(newOff, newSize)
		k.pushFree(newOff)
		k.fixNextPrevAlloc(newOff, false)
		k.coalesce(newOff)
	} else {
		k.setHeader(off, curSize, true, prevAlloc)
		k.fixNextPrevAlloc(off, true)
	}
}

func (k *Kalloc_t) mallocLocked(size int) (int, defs.Err_t) {
	if !k.ready {
		if err := k.initLocked(); err != 0 {
			return 0, err
		}
	}
	need := alignNeed(size)
	off, ok := k.bestFit(need)
	if !ok {
		if err := k.growLocked(need); err != 0 {
			return 0, err
		}
		off, ok = k.bestFit(need)
		if !ok {
			return 0, -defs.ENOMEM
		}
	}
	k.allocate(off, need)
	ptr := off + wsize
	k.poison(ptr, k.payloadLen(off), poisonAlloc)
	return ptr, 0
}

func (k *Kalloc_t) freeLocked(off int) {
	size, _, prevAlloc := k.getHeader(off)
	k.poison(off+wsize, size-wsize, poisonFree)
	k.setHeader(off, size, false, prevAlloc)
	k.setFooter(off, size)
	k.pushFree(off)
	k.coalesce(off)
}

// reallocLocked implements spec.md 4.4 realloc's grow path: absorb an
// adjacent free block (growing the heap first if that neighbor is the top
// sentinel), else fall back to malloc+memcpy+free.
func (k *Kalloc_t) reallocLocked(ptr, newSize int) (int, defs.Err_t) {
	off := ptr - wsize
	size, _, prevAlloc := k.getHeader(off)
	need := alignNeed(newSize)

	if need <= size {
		k.shrinkInPlace(off, size, need, prevAlloc)
		return ptr, 0
	}

	next := off + size
	if next < len(k.store) {
		nsize, nalloc, _ := k.getHeader(next)
		if !nalloc {
			k.removeFree(next)
			size += nsize
			k.setHeader(off, size, true, prevAlloc)
			k.fixNextPrevAlloc(off, true)
			next = off + size
		}
	}

	if size < need && next == len(k.store)-wsize {
		if err := k.growLocked(need - size); err != 0 {
			return 0, err
		}
		nsize, nalloc, _ := k.getHeader(next)
		if !nalloc {
			k.removeFree(next)
			size += nsize
			k.setHeader(off, size, true, prevAlloc)
			k.fixNextPrevAlloc(off, true)
		}
	}

	if size >= need {
		k.shrinkInPlace(off, size, need, prevAlloc)
		return ptr, 0
	}

	newPtr, err := k.mallocLocked(newSize)
	if err != 0 {
		return 0, err
	}
	payload := size - wsize
	copy(k.store[newPtr:newPtr+payload], k.store[ptr:ptr+payload])
	k.freeLocked(off)
	return newPtr, 0
}

func (k *Kalloc_t) memsetLocked(ptr, n int, val byte) {
	for i := 0; i < n; i++ {
		k.store[ptr+i] = val
	}
}

// Malloc allocates at least size bytes and returns an opaque handle
// (a byte offset into the allocator's backing storage); 0 denotes a
// zero-size no-op, matching spec.md 4.4.
func (k *Kalloc_t) Malloc(size int) (int, defs.Err_t) {
	if size == 0 {
		return 0, 0
	}
	k.Lock()
	defer k.Unlock()
	return k.mallocLocked(size)
}

// Free releases a handle returned by Malloc/Realloc/Calloc. Freeing 0 is
// a no-op.
func (k *Kalloc_t) Free(ptr int) {
	if ptr == 0 {
		return
	}
	k.Lock()
	defer k.Unlock()
	k.freeLocked(ptr - wsize)
}

// Realloc resizes the allocation at ptr to size bytes, per spec.md 4.4:
// ptr==0 behaves as Malloc, size==0 behaves as Free and returns 0.
func (k *Kalloc_t) Realloc(ptr, size int) (int, defs.Err_t) {
	if ptr == 0 {
		return k.Malloc(size)
	}
	if size == 0 {
		k.Free(ptr)
		return 0, 0
	}
	k.Lock()
	defer k.Unlock()
	if !k.ready {
		return k.mallocLocked(size)
	}
	return k.reallocLocked(ptr, size)
}

// Calloc allocates room for n elements of size bytes each, overflow
// checked, and zeroes it.
func (k *Kalloc_t) Calloc(n, size int) (int, defs.Err_t) {
	if n < 0 || size < 0 {
		return 0, -defs.EINVAL
	}
	if n != 0 && size > (1<<31-1)/n {
		return 0, -defs.EINVAL
	}
	total := n * size
	ptr, err := k.Malloc(total)
	if err != 0 || ptr == 0 {
		return ptr, err
	}
	k.Lock()
	k.memsetLocked(ptr, total, 0)
	k.Unlock()
	return ptr, 0
}

// Bytes returns the n-byte slice at ptr, aliasing the allocator's backing
// storage directly. It stays valid for the allocation's lifetime: store's
// capacity is fixed at construction, so growth never moves the array.
func (k *Kalloc_t) Bytes(ptr, n int) []byte {
	k.Lock()
	defer k.Unlock()
	return k.store[ptr : ptr+n : ptr+n]
}

// Kheap is the single kernel-wide allocator every in-kernel consumer
// (skb, and eventually socket/tcp/process control blocks allocated
// outside the Go heap) mallocs from, capped at 64 MiB (a quarter of
// limits.Syslimit's 256 MiB frame pool). Growth is lazy: nothing is
// actually taken from mem.Physmem until an Sbrk call needs it.
var Kheap = New(0, 64<<20, make([]mem.Pa_t, 0, (64<<20)/mem.PGSIZE))
