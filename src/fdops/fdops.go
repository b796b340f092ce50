// Package fdops defines the per-file-type operations vtable spec.md 4.7
// describes ("file_register_type installs a per-type vtable... immutable
// thereafter") and the Uio_i abstraction read/write operate through, so the
// same vtable method serves a user-space caller and a kernel-internal one.
// Grounded on the teacher's fd.go (Fdops_i referenced as Fd_t.Fops) and
// vm/userbuf.go's Userbuf_t/Fakeubuf_t split, which this package's
// UserBuf_t/KernelBuf_t mirror.
package fdops

import "defs"
import "paging"

// Seek whence values, spec.md 4.7's "seek" syscall.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// Stat_t is the metadata spec.md 4.7's "stat" syscall reports.
type Stat_t struct {
	Size int
	Mode int
	Rdev int
}

// Uio_i abstracts a read/write counterparty: either a user virtual-address
// range (UserBuf_t) or a kernel-owned byte slice (KernelBuf_t).
type Uio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

// Fdops_i is the per-type vtable a file object's operations forward to,
// per spec.md 4.7.
type Fdops_i interface {
	Close() defs.Err_t
	Reopen() defs.Err_t
	Read(dst Uio_i) (int, defs.Err_t)
	Write(src Uio_i) (int, defs.Err_t)
	Seek(off int, whence int) (int, defs.Err_t)
	Truncate(newlen uint) defs.Err_t
	Fcntl(cmd, arg int) int
	Ioctl(cmd, arg int) (int, defs.Err_t)
	Stat(st *Stat_t) defs.Err_t
}

// KernelBuf_t implements Uio_i over a plain Go byte slice: the hosted
// equivalent of the teacher's Fakeubuf_t, used when the kernel itself is
// the read/write counterparty and no page-table indirection applies.
type KernelBuf_t struct {
	buf []uint8
}

// MkKernelBuf wraps b as a Uio_i.
func MkKernelBuf(b []uint8) *KernelBuf_t {
	return &KernelBuf_t{buf: b}
}

func (k *KernelBuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, k.buf)
	k.buf = k.buf[n:]
	return n, 0
}

func (k *KernelBuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(k.buf, src)
	k.buf = k.buf[n:]
	return n, 0
}

func (k *KernelBuf_t) Remain() int  { return len(k.buf) }
func (k *KernelBuf_t) Totalsz() int { return len(k.buf) }

// UserBuf_t implements Uio_i over a user virtual-address range: the hosted
// equivalent of the teacher's Userbuf_t. Each transfer gates through
// paging's accessibility check via CopyFromUser/CopyToUser.
type UserBuf_t struct {
	uva int
	len int
	off int
}

// MkUserBuf constructs a Uio_i over [uva, uva+length).
func MkUserBuf(uva, length int) *UserBuf_t {
	return &UserBuf_t{uva: uva, len: length}
}

func (u *UserBuf_t) Remain() int  { return u.len - u.off }
func (u *UserBuf_t) Totalsz() int { return u.len }

func (u *UserBuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	n := len(dst)
	if n > u.Remain() {
		n = u.Remain()
	}
	if n == 0 {
		return 0, 0
	}
	if err := paging.CopyFromUser(dst[:n], u.uva+u.off); err != 0 {
		return 0, err
	}
	u.off += n
	return n, 0
}

func (u *UserBuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := len(src)
	if n > u.Remain() {
		n = u.Remain()
	}
	if n == 0 {
		return 0, 0
	}
	if err := paging.CopyToUser(u.uva+u.off, src[:n]); err != 0 {
		return 0, err
	}
	u.off += n
	return n, 0
}
