// Package paging owns the single page directory spec.md 4.2 describes: a
// fixed 1024-entry directory where each entry is either absent, a 4 MiB
// super-page, or a pointer to a 1024-entry leaf table of 4 KiB pages. Only
// one directory exists for the whole system (this is a uniprocessor,
// cooperatively-scheduled kernel); user-facing slots are rewritten on every
// context switch while the kernel slot never changes, exactly as spec.md
// 4.2/4.10 require.
//
// The address-space layout is fixed at compile time, per spec.md 4.2:
package paging

import "sync"

import "defs"
import "mem"

// PDE/PTE flag bits, following the teacher's mem.Pa_t bit-packed style
// (mem/mem.go PTE_P/PTE_W/PTE_U) but scoped to this package since kern32's
// frame numbers are no longer physical addresses.
const (
	flagP     uint32 = 1 << 0 // present
	flagW     uint32 = 1 << 1 // writable
	flagU     uint32 = 1 << 2 // user-accessible
	flagSuper uint32 = 1 << 3 // this PDE is a 4 MiB super-page, not a leaf pointer
)

// Entry_t packs a frame number (high bits) and permission flags (low bits)
// exactly the way a real x86 PDE/PTE does, so the walk code below reads
// like real page-table code even though "physical memory" is a Go slab.
type Entry_t uint32

func mkEntry(frame mem.Pa_t, flags uint32) Entry_t {
	return Entry_t(uint32(frame)<<8 | flags)
}

func (e Entry_t) present() bool  { return uint32(e)&flagP != 0 }
func (e Entry_t) writable() bool { return uint32(e)&flagW != 0 }
func (e Entry_t) user() bool     { return uint32(e)&flagU != 0 }
func (e Entry_t) super() bool    { return uint32(e)&flagSuper != 0 }
func (e Entry_t) frame() mem.Pa_t {
	return mem.Pa_t(uint32(e) >> 8)
}

type leaf_t [1024]Entry_t

// directory_t is the single page directory. slots is indexed by
// vaddr>>22; a super-page slot's Entry_t names a mem.Superframes frame
// directly, a leaf slot's Entry_t names a *leaf_t.
type directory_t struct {
	sync.Mutex
	slots [1024]Entry_t
	leaf  [1024]*leaf_t
}

var dir directory_t

// Fixed slot indices. Each slot covers [index<<22, (index+1)<<22).
const (
	SlotVGA    = 0  // leaf: one 4 KiB entry for the VGA text page
	SlotKernel = 1  // super: kernel code/data, global, never rewritten
	SlotTemp   = 2  // super: reserved for CloneUserPage's scratch mapping
	SlotUser   = 32 // super: the running process's 4 MiB code/data page
	SlotHeap   = 33 // leaf x HeapSlots: the process heap
	HeapSlots  = 8  // 8 * 4 MiB = 32 MiB heap ceiling
	SlotVidmap = 41 // leaf: one 4 KiB entry, the vidmap page
	SlotVBE    = 42 // leaf x VBESlots: the linear framebuffer
	VBESlots   = 4  // 4 * 4 MiB = 16 MiB framebuffer ceiling
)

const (
	VGABase    = SlotVGA << mem.SUPERSHIFT
	KernelBase = SlotKernel << mem.SUPERSHIFT
	TempBase   = SlotTemp << mem.SUPERSHIFT
	UserBase   = SlotUser << mem.SUPERSHIFT
	HeapBase   = SlotHeap << mem.SUPERSHIFT
	VidmapBase = SlotVidmap << mem.SUPERSHIFT
	VBEBase    = SlotVBE << mem.SUPERSHIFT

	// the one populated entry within the VGA leaf table: 0xB8000.
	vgaTextAddr = 0xB8000
)

// FlushCount counts TLB flushes performed (spec.md 4.2: "always flush the
// TLB afterwards"). A hosted simulation has no real TLB, so this is the
// observable stand-in tests assert against.
var FlushCount int

func flushTLB() { FlushCount++ }

func (d *directory_t) leafFor(slot int) *leaf_t {
	if d.leaf[slot] == nil {
		d.leaf[slot] = &leaf_t{}
	}
	return d.leaf[slot]
}

// PageMap installs a 4 MiB mapping at vaddr (which must be a super-page
// slot base) for physical 4 MiB frame paddr, spec.md 4.2 "page_map".
func PageMap(vaddr int, paddr mem.Pa_t, user bool) defs.Err_t {
	slot := vaddr >> int(mem.SUPERSHIFT)
	if slot != SlotKernel && slot != SlotTemp && slot != SlotUser {
		return -defs.EINVAL
	}
	dir.Lock()
	flags := flagP | flagW | flagSuper
	if user {
		flags |= flagU
	}
	dir.slots[slot] = mkEntry(paddr, flags)
	dir.Unlock()
	flushTLB()
	return 0
}

// PageUnmap removes the mapping installed by PageMap, spec.md 4.2
// "page_unmap". Unmapping an already-absent slot is a no-op, not an error
// (spec.md 7 "Page-table edits that target unchanged entries are no-ops").
func PageUnmap(vaddr int) defs.Err_t {
	slot := vaddr >> int(mem.SUPERSHIFT)
	if slot != SlotKernel && slot != SlotTemp && slot != SlotUser {
		return -defs.EINVAL
	}
	dir.Lock()
	if dir.slots[slot] == 0 {
		dir.Unlock()
		return 0
	}
	dir.slots[slot] = 0
	dir.Unlock()
	flushTLB()
	return 0
}

// MapUserPage rewrites the well-known user code/data slot, spec.md 4.2
// "map_user_page". Called on every context switch (spec.md 4.10).
func MapUserPage(paddr mem.Pa_t) defs.Err_t {
	return PageMap(UserBase, paddr, true)
}

// CloneUserPage copies the active user 4 MiB page into dest_paddr by
// mapping dest into the reserved temporary slot, memcpying, and unmapping,
// exactly as spec.md 4.2 "clone_user_page" specifies.
func CloneUserPage(destPaddr mem.Pa_t) defs.Err_t {
	dir.Lock()
	srcEntry := dir.slots[SlotUser]
	dir.Unlock()
	if !srcEntry.present() {
		return -defs.EFAULT
	}
	if err := PageMap(TempBase, destPaddr, false); err != 0 {
		return err
	}
	src := mem.Superframes.Page(srcEntry.frame())
	dst := mem.Superframes.Page(destPaddr)
	*dst = *src
	return PageUnmap(TempBase)
}

// UpdateVidmapPage controls the per-process vidmap leaf entry, spec.md 4.2.
func UpdateVidmapPage(paddr mem.Pa_t, present bool) defs.Err_t {
	dir.Lock()
	defer dir.Unlock()
	lf := dir.leafFor(SlotVidmap)
	if present {
		lf[0] = mkEntry(paddr, flagP|flagW|flagU)
	} else {
		lf[0] = 0
	}
	flushTLB()
	return 0
}

// UpdateVbePage toggles the whole VBE framebuffer region present or
// absent, backed by the frames supplied at boot via SetVbeFrames.
var vbeFrames [VBESlots * 1024]mem.Pa_t
var vbeFramesSet bool

// SetVbeFrames installs the backing frames for the VBE framebuffer region;
// called once at boot by the device driver that owns the real hardware
// framebuffer (out of scope here, spec.md 1).
func SetVbeFrames(frames []mem.Pa_t) {
	copy(vbeFrames[:], frames)
	vbeFramesSet = true
}

func UpdateVbePage(present bool) defs.Err_t {
	if present && !vbeFramesSet {
		return -defs.EINVAL
	}
	dir.Lock()
	defer dir.Unlock()
	for s := 0; s < VBESlots; s++ {
		lf := dir.leafFor(SlotVBE + s)
		for i := 0; i < 1024; i++ {
			if present {
				lf[i] = mkEntry(vbeFrames[s*1024+i], flagP|flagW|flagU)
			} else {
				lf[i] = 0
			}
		}
	}
	flushTLB()
	return 0
}

// HeapMap installs the process heap's frame vector into the heap region,
// one 4 KiB leaf entry per frame, spec.md 4.3 "heap_map".
func HeapMap(frames []mem.Pa_t) defs.Err_t {
	if len(frames) > HeapSlots*1024 {
		return -defs.ENOMEM
	}
	dir.Lock()
	defer dir.Unlock()
	for i, f := range frames {
		slot := SlotHeap + i/1024
		lf := dir.leafFor(slot)
		lf[i%1024] = mkEntry(f, flagP|flagW|flagU)
	}
	flushTLB()
	return 0
}

// HeapUnmap removes n frames worth of heap mappings starting at index 0,
// spec.md 4.3 "heap_unmap".
func HeapUnmap(n int) defs.Err_t {
	dir.Lock()
	defer dir.Unlock()
	for i := 0; i < n && i < HeapSlots*1024; i++ {
		slot := SlotHeap + i/1024
		lf := dir.leafFor(slot)
		lf[i%1024] = 0
	}
	flushTLB()
	return 0
}

func init() {
	// the kernel's VGA text leaf is wired once at boot and never changes;
	// frame 0 is a placeholder until a real console driver installs the
	// backing frame (out of scope, spec.md 1).
	dir.leafFor(SlotVGA)
}

// resolve walks the directory for va and returns the remaining bytes of
// the page/super-page containing it, or ok=false if the address is
// unmapped or the access violates the requested permissions. This is the
// kern32 equivalent of the teacher's Userdmap8_inner (vm/as.go).
func resolve(va int, user, write bool) ([]byte, bool) {
	if va < 0 {
		return nil, false
	}
	slot := va >> int(mem.SUPERSHIFT)
	if slot < 0 || slot >= 1024 {
		return nil, false
	}
	dir.Lock()
	e := dir.slots[slot]
	var lf *leaf_t
	if !e.super() {
		lf = dir.leaf[slot]
	}
	dir.Unlock()

	check := func(e Entry_t) bool {
		if !e.present() {
			return false
		}
		if user && !e.user() {
			return false
		}
		if write && !e.writable() {
			return false
		}
		return true
	}

	if e.super() || (slot == SlotKernel || slot == SlotTemp || slot == SlotUser) {
		if !check(e) {
			return nil, false
		}
		off := va & (mem.SUPERSIZE - 1)
		pg := mem.Superframes.Page(e.frame())
		return pg[off:], true
	}
	if lf == nil {
		return nil, false
	}
	pteIdx := (va >> int(mem.PGSHIFT)) & 0x3FF
	pte := lf[pteIdx]
	if !check(pte) {
		return nil, false
	}
	off := va & (mem.PGSIZE - 1)
	pg := mem.Physmem.Page(pte.frame())
	return pg[off:], true
}

// IsMemoryAccessible walks [start, start+n) checking each page is present
// with the requested user/write permission, spec.md 4.2
// "is_memory_accessible". Negative lengths and address overflow are
// rejected rather than silently wrapping.
func IsMemoryAccessible(start, n int, user, write bool) bool {
	if n < 0 || start < 0 {
		return false
	}
	if n == 0 {
		return true
	}
	end := start + n
	if end < start { // overflow
		return false
	}
	for va := start; va < end; {
		b, ok := resolve(va, user, write)
		if !ok {
			return false
		}
		adv := len(b)
		if va+adv > end {
			adv = end - va
		}
		va += adv
	}
	return true
}

// CopyFromUser copies len(dst) bytes starting at user address uva into
// dst, spec.md 4.2 "copy_from_user". It gates on IsMemoryAccessible first,
// matching the teacher's pattern of checking before touching memory.
func CopyFromUser(dst []uint8, uva int) defs.Err_t {
	if !IsMemoryAccessible(uva, len(dst), true, false) {
		return -defs.EFAULT
	}
	off := 0
	for off < len(dst) {
		b, ok := resolve(uva+off, true, false)
		if !ok {
			return -defs.EFAULT
		}
		n := copy(dst[off:], b)
		off += n
	}
	return 0
}

// CopyToUser copies src into the user address space starting at uva,
// spec.md 4.2 "copy_to_user".
func CopyToUser(uva int, src []uint8) defs.Err_t {
	if !IsMemoryAccessible(uva, len(src), true, true) {
		return -defs.EFAULT
	}
	off := 0
	for off < len(src) {
		b, ok := resolve(uva+off, true, true)
		if !ok {
			return -defs.EFAULT
		}
		n := copy(b, src[off:])
		off += n
	}
	return 0
}

// MemsetUser zero-fills (or, with a non-zero val, fills) n bytes of user
// memory at uva, spec.md 4.2 "memset_user".
func MemsetUser(uva int, val uint8, n int) defs.Err_t {
	if !IsMemoryAccessible(uva, n, true, true) {
		return -defs.EFAULT
	}
	off := 0
	for off < n {
		b, ok := resolve(uva+off, true, true)
		if !ok {
			return -defs.EFAULT
		}
		adv := len(b)
		if off+adv > n {
			adv = n - off
		}
		for i := 0; i < adv; i++ {
			b[i] = val
		}
		off += adv
	}
	return 0
}

// StrscpyFromUser copies a NUL-terminated string from user address src
// into dest, up to n bytes, spec.md 4.2 "strscpy_from_user". It returns
// the copied length (excluding the NUL) or ENAMETOOLONG if no NUL appears
// within n bytes.
func StrscpyFromUser(dest []uint8, src int, n int) (int, defs.Err_t) {
	if n > len(dest) {
		n = len(dest)
	}
	for i := 0; i < n; i++ {
		b, ok := resolve(src+i, true, false)
		if !ok {
			return 0, -defs.EFAULT
		}
		dest[i] = b[0]
		if b[0] == 0 {
			return i, 0
		}
	}
	return 0, -defs.ENAMETOOLONG
}
