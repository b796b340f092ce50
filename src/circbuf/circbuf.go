// Package circbuf implements a single-page circular byte buffer, used by
// terminal for its cooked-mode line buffer and by tcp for per-connection
// send/receive reassembly storage. Kept from the teacher's circbuf.go,
// adapted to this module's mem (plain alloc/free, no shared-page refcount)
// and fdops (Uio_i, not Userio_i) packages.
package circbuf

import "defs"
import "fdops"
import "mem"

// Circbuf_t is not safe for concurrent use and references no global state
// beyond the frame it owns.
type Circbuf_t struct {
	Buf   []uint8
	bufsz int
	head  int
	tail  int
	frame mem.Pa_t
}

// Bufsz returns the configured buffer size.
func (cb *Circbuf_t) Bufsz() int {
	return cb.bufsz
}

// Cb_init records the desired size; the backing frame is allocated
// lazily on first use so that a short-lived circbuf never need touch the
// frame allocator at all.
func (cb *Circbuf_t) Cb_init(sz int) defs.Err_t {
	if sz <= 0 || sz > mem.PGSIZE {
		panic("bad circbuf size")
	}
	cb.bufsz = sz
	cb.head, cb.tail = 0, 0
	return 0
}

// Cb_release frees the backing frame, if one was ever allocated.
func (cb *Circbuf_t) Cb_release() {
	if cb.Buf == nil {
		return
	}
	mem.Physmem.Free(cb.frame)
	cb.frame = mem.NoFrame
	cb.Buf = nil
	cb.head, cb.tail = 0, 0
}

// Cb_ensure guarantees the buffer is allocated, returning ENOMEM on
// failure.
func (cb *Circbuf_t) Cb_ensure() defs.Err_t {
	if cb.Buf != nil {
		return 0
	}
	if cb.bufsz == 0 {
		panic("not initted")
	}
	f, err := mem.Physmem.Alloc()
	if err != 0 {
		return err
	}
	cb.frame = f
	cb.Buf = mem.Physmem.Page(f)[:cb.bufsz]
	return 0
}

// Full reports whether the buffer cannot accept more data.
func (cb *Circbuf_t) Full() bool {
	return cb.head-cb.tail == cb.bufsz
}

// Empty reports whether the buffer contains no data.
func (cb *Circbuf_t) Empty() bool {
	return cb.head == cb.tail
}

// Left returns the remaining capacity in bytes.
func (cb *Circbuf_t) Left() int {
	return cb.bufsz - (cb.head - cb.tail)
}

// Used returns the current number of bytes in the buffer.
func (cb *Circbuf_t) Used() int {
	return cb.head - cb.tail
}

// Copyin reads from src into the circular buffer.
func (cb *Circbuf_t) Copyin(src fdops.Uio_i) (int, defs.Err_t) {
	if err := cb.Cb_ensure(); err != 0 {
		return 0, err
	}
	if cb.Full() {
		return 0, 0
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	c := 0
	if ti <= hi {
		dst := cb.Buf[hi:]
		wrote, err := src.Uioread(dst)
		if err != 0 {
			return 0, err
		}
		if wrote != len(dst) {
			cb.head += wrote
			return wrote, 0
		}
		c += wrote
		hi = (cb.head + wrote) % cb.bufsz
	}
	if hi > ti {
		panic("circbuf: impossible head/tail wraparound state")
	}
	dst := cb.Buf[hi:ti]
	wrote, err := src.Uioread(dst)
	c += wrote
	if err != 0 {
		return c, err
	}
	cb.head += c
	return c, 0
}

// Copyout writes the entire buffer contents to dst.
func (cb *Circbuf_t) Copyout(dst fdops.Uio_i) (int, defs.Err_t) {
	return cb.Copyout_n(dst, 0)
}

// Copyout_n writes up to max bytes of the buffer to dst (max == 0 means
// unbounded).
func (cb *Circbuf_t) Copyout_n(dst fdops.Uio_i, max int) (int, defs.Err_t) {
	if err := cb.Cb_ensure(); err != 0 {
		return 0, err
	}
	if cb.Empty() {
		return 0, 0
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	c := 0
	if hi <= ti {
		src := cb.Buf[ti:]
		if max != 0 && max < len(src) {
			src = src[:max]
		}
		wrote, err := dst.Uiowrite(src)
		if err != 0 {
			return 0, err
		}
		if wrote != len(src) || wrote == max {
			cb.tail += wrote
			return wrote, 0
		}
		c += wrote
		if max != 0 {
			max -= c
		}
		ti = (cb.tail + wrote) % cb.bufsz
	}
	if ti > hi {
		panic("circbuf: impossible head/tail wraparound state")
	}
	src := cb.Buf[ti:hi]
	if max != 0 && max < len(src) {
		src = src[:max]
	}
	wrote, err := dst.Uiowrite(src)
	if err != 0 {
		return 0, err
	}
	c += wrote
	cb.tail += c
	return c, 0
}

// Rawwrite exposes up to two slices for writing directly into the buffer
// at offset relative to head, for callers (tcp) that manage their own
// sequence-number bookkeeping.
func (cb *Circbuf_t) Rawwrite(offset, sz int) ([]uint8, []uint8) {
	if cb.Buf == nil {
		panic("circbuf: Rawwrite before Cb_ensure")
	}
	if cb.Left() < sz {
		panic("circbuf: Rawwrite overruns capacity")
	}
	if sz == 0 {
		return nil, nil
	}
	oi := (cb.head + offset) % cb.bufsz
	oe := (cb.head + offset + sz) % cb.bufsz
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	var r1, r2 []uint8
	if ti <= hi {
		if (oi >= ti && oi < hi) || (oe > ti && oe <= hi) {
			panic("circbuf: Rawwrite intersects live data")
		}
		r1 = cb.Buf[oi:]
		if len(r1) > sz {
			r1 = r1[:sz]
		} else {
			r2 = cb.Buf[:oe]
		}
	} else {
		if !(oi >= hi && oi < ti && oe > hi && oe <= ti) {
			panic("circbuf: Rawwrite intersects live data")
		}
		r1 = cb.Buf[oi:oe]
	}
	return r1, r2
}

// Advhead advances the head index, exposing sz more previously-written
// bytes to readers.
func (cb *Circbuf_t) Advhead(sz int) {
	if cb.Full() || cb.Left() < sz {
		panic("circbuf: Advhead overruns capacity")
	}
	cb.head += sz
}

// Rawread returns up to two slices referencing the buffer's live data
// starting at offset relative to tail.
func (cb *Circbuf_t) Rawread(offset int) ([]uint8, []uint8) {
	if cb.Buf == nil {
		panic("circbuf: Rawread before Cb_ensure")
	}
	oi := (cb.tail + offset) % cb.bufsz
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	var r1, r2 []uint8
	if ti < hi {
		if oi >= hi || oi < ti {
			panic("circbuf: Rawread outside live data")
		}
		r1 = cb.Buf[oi:hi]
	} else {
		if oi >= hi && oi < ti {
			panic("circbuf: Rawread outside live data")
		}
		tlen := len(cb.Buf[ti:])
		if tlen > offset {
			r1 = cb.Buf[oi:]
			r2 = cb.Buf[:hi]
		} else {
			r1 = cb.Buf[offset-tlen : hi]
		}
	}
	return r1, r2
}

// Advtail advances the tail index after sz bytes have been consumed.
func (cb *Circbuf_t) Advtail(sz int) {
	if sz != 0 && (cb.Empty() || cb.Used() < sz) {
		panic("circbuf: Advtail overruns live data")
	}
	cb.tail += sz
}
