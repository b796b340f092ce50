// Package loader implements spec.md 4.10's Exec image loader: given a raw
// executable image and a process whose heap is already reset, either
// dumb-copy the whole image into the heap (compat mode) or walk its ELF
// program headers and copy each PT_LOAD segment to its own offset, per
// spec.md 4.10 "if the file-descriptor table mode is compat... use a dumb
// copy-entire-file-into-user-page loader; otherwise walk program headers
// and copy each LOAD segment".
//
// Grounded on the teacher's sole debug/elf consumer,
// kernel/chentry.go (elf.NewFile, FileHeader validation), generalized from
// chentry's entry-point patcher into a segment loader. There is no x86
// interpreter in this simulation to actually execute the loaded bytes, so
// the returned EntryFunc performs every observable effect Exec promises
// (validation, heap sizing, segment copy, entry address resolution) and
// then halts the process with status 0, the same way process.go's doc
// comment already explains dropping ESP/EBP context switches while keeping
// PID/zombie bookkeeping: the mechanics an interpreter would need have no
// counterpart here, but the loader's job -- build the address space and
// find the entry -- does.
package loader

import "debug/elf"
import "bytes"

import "defs"
import "heap"
import "paging"
import "process"

// Loader_t is the process.Loader_i implementation spec.md 4.10 names.
type Loader_t struct{}

// New returns a ready Loader_t; it carries no state of its own.
func New() *Loader_t { return &Loader_t{} }

// Load implements process.Loader_i. compat selects the dumb-copy path;
// otherwise image is parsed as an ELF executable and its PT_LOAD segments
// are copied individually.
func (*Loader_t) Load(self *process.Pcb_t, image []byte, compat bool) (process.EntryFunc, defs.Err_t) {
	if len(image) == 0 {
		return nil, -defs.ENOEXEC
	}
	if compat {
		return loadCompat(self, image)
	}
	return loadELF(self, image)
}

// loadCompat copies the entire image into a freshly grown heap starting at
// offset 0, and treats offset 0 as the entry point: there is no header to
// read in compat mode, per spec.md 4.10's "dumb copy-entire-file-into-
// user-page loader".
func loadCompat(self *process.Pcb_t, image []byte) (process.EntryFunc, defs.Err_t) {
	h := self.Heap
	if _, err := h.Sbrk(len(image)); err != 0 {
		return nil, err
	}
	if err := h.Map(); err != 0 {
		return nil, err
	}
	if err := copyToHeap(h, image); err != 0 {
		return nil, err
	}
	entry := h.Start
	return makeEntry(entry), 0
}

// loadELF validates image as a little-endian 32-bit x86 executable (the
// teacher's chentry.chkELF checks generalized down from the teacher's own
// 64-bit kernel image to this simulation's 32-bit target, per spec.md's
// "32-bit x86" scope), then copies each PT_LOAD segment to its own heap
// offset.
func loadELF(self *process.Pcb_t, image []byte) (process.EntryFunc, defs.Err_t) {
	ef, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, -defs.ENOEXEC
	}
	if err := chkELF(&ef.FileHeader); err != 0 {
		return nil, err
	}

	var segs []*elf.Prog
	maxEnd := uint64(0)
	for _, p := range ef.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		segs = append(segs, p)
		if end := p.Vaddr + p.Memsz; end > maxEnd {
			maxEnd = end
		}
	}
	if len(segs) == 0 {
		return nil, -defs.ENOEXEC
	}

	h := self.Heap
	if _, err := h.Sbrk(int(maxEnd)); err != 0 {
		return nil, err
	}
	if err := h.Map(); err != 0 {
		return nil, err
	}

	for _, p := range segs {
		data := make([]byte, p.Filesz)
		if _, err := p.ReadAt(data, 0); err != nil {
			return nil, -defs.ENOEXEC
		}
		if err := copyAt(h, int(p.Vaddr), data); err != 0 {
			return nil, err
		}
		// bss-style tail (Memsz > Filesz) is already zero: Sbrk zeroes
		// every page it grows, per heap.Heap_t.Sbrk's doc comment.
	}

	entry := h.Start + int(ef.Entry)
	if entry < h.Start || entry >= h.Brk() {
		return nil, -defs.ENOEXEC
	}
	return makeEntry(entry), 0
}

// chkELF is chentry.chkELF narrowed to this simulation's target: a
// 32-bit (EM_386), little-endian, statically-linked executable.
func chkELF(eh *elf.FileHeader) defs.Err_t {
	if eh.Class != elf.ELFCLASS32 {
		return -defs.ENOEXEC
	}
	if eh.Data != elf.ELFDATA2LSB {
		return -defs.ENOEXEC
	}
	if eh.Type != elf.ET_EXEC {
		return -defs.ENOEXEC
	}
	if eh.Machine != elf.EM_386 {
		return -defs.ENOEXEC
	}
	return 0
}

// copyToHeap copies data to the heap's own base offset.
func copyToHeap(h *heap.Heap_t, data []byte) defs.Err_t {
	return copyAt(h, h.Start, data)
}

// copyAt copies data into the heap starting at the user virtual address
// vaddr, via paging.CopyToUser -- the only way to reach a heap's backing
// frames from outside package heap, since Heap_t.frames is unexported.
func copyAt(h *heap.Heap_t, vaddr int, data []byte) defs.Err_t {
	if len(data) == 0 {
		return 0
	}
	return paging.CopyToUser(vaddr, data)
}

// makeEntry returns the EntryFunc Exec hands back to its caller: it has no
// instructions to actually run, so it simply halts the process, the
// observable end state a process that ran to completion with no further
// syscalls would reach.
func makeEntry(entry int) process.EntryFunc {
	return func(self *process.Pcb_t) {
		process.Halt(self, 0)
	}
}
