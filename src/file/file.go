// Package file implements spec.md 4.7's file object and per-process
// descriptor table: reference-counted objects behind an immutable per-type
// operations vtable (fdops.Fdops_i), bound into fixed-size tables that fork
// clones and exec/exit tear down. Grounded on the teacher's fd/fd.go
// (Fd_t, Copyfd, Close_panic, Cwd_t), generalized from a single
// teacher-owned Fd_t into the full alloc/retain/release and
// bind/unbind/rebind/clone/deinit table API spec.md 4.7 names; the
// bpath.Canonicalize dependency fd.go had is replaced by Canonicalize
// below, built directly on ustr's existing path helpers.
package file

import "sync"

import "defs"
import "fdops"
import "ustr"

// Mode bits a file object is opened with, spec.md 3 "File object" mode
// bits; matches the teacher's FD_READ/FD_WRITE naming.
const (
	F_READ  = 0x1
	F_WRITE = 0x2
)

// NoInode marks a file object with no attached inode.
const NoInode = -1

// InodeDecref is called on an attached inode when a file object's
// refcount reaches zero; the file package takes this as a callback
// instead of importing inode directly, so the dependency runs one way.
type InodeDecref func(inodeIndex int)

// File_t is spec.md 3's "File object": {operations vtable, mode bits,
// nonblocking?, inode_index (or none), refcount, private_data_slot}.
type File_t struct {
	sync.Mutex
	Ops        fdops.Fdops_i
	Mode       int
	Nonblock   bool
	InodeIndex int
	Priv       interface{}
	refcount   int
}

// Alloc constructs a file object with refcount 1, per spec.md 4.7
// "file_obj_alloc allocates an object, initialises {refcount=1, mode,
// nonblocking=false, inode=none}". The caller is responsible for calling
// an equivalent of ops.open itself and discarding the object without
// calling Release/Close on failure, matching "on failure from open,
// frees without calling close".
func Alloc(ops fdops.Fdops_i, mode int) *File_t {
	return &File_t{Ops: ops, Mode: mode, InodeIndex: NoInode, refcount: 1}
}

// Retain increments the reference count.
func (f *File_t) Retain() {
	f.Lock()
	f.refcount++
	f.Unlock()
}

// Release decrements the reference count and, on reaching zero, invokes
// Close and (if an inode is attached) dec, per spec.md 4.7.
func (f *File_t) Release(dec InodeDecref) defs.Err_t {
	f.Lock()
	f.refcount--
	zero := f.refcount == 0
	f.Unlock()
	if !zero {
		return 0
	}
	err := f.Ops.Close()
	if f.InodeIndex != NoInode && dec != nil {
		dec(f.InodeIndex)
	}
	return err
}

// Refcount reports the current reference count, for tests and diagnostics.
func (f *File_t) Refcount() int {
	f.Lock()
	defer f.Unlock()
	return f.refcount
}

// Copy duplicates an open file object by reopening its underlying
// operations, the generalization of the teacher's Copyfd to File_t.
func Copy(f *File_t) (*File_t, defs.Err_t) {
	if err := f.Ops.Reopen(); err != 0 {
		return nil, err
	}
	nf := &File_t{Ops: f.Ops, Mode: f.Mode, Nonblock: f.Nonblock, InodeIndex: f.InodeIndex, Priv: f.Priv, refcount: 1}
	return nf, 0
}

// Table_t is a per-process fixed-size descriptor table, spec.md 4.7.
type Table_t struct {
	sync.Mutex
	slots []*File_t
}

// MkTable constructs an empty table of n slots (spec.md's MAX_FILES).
func MkTable(n int) *Table_t {
	return &Table_t{slots: make([]*File_t, n)}
}

func (t *Table_t) getLocked(fd int) (*File_t, defs.Err_t) {
	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return nil, -defs.EBADF
	}
	return t.slots[fd], 0
}

// Get returns the object bound at fd, or EBADF.
func (t *Table_t) Get(fd int) (*File_t, defs.Err_t) {
	t.Lock()
	defer t.Unlock()
	return t.getLocked(fd)
}

// Bind installs obj at fd (fd >= 0), or at the lowest free slot (fd ==
// -1), retaining obj. Fails with EINVAL if the requested slot is taken or
// out of range, or EMFILE if no free slot exists for fd == -1.
func (t *Table_t) Bind(fd int, obj *File_t) (int, defs.Err_t) {
	t.Lock()
	defer t.Unlock()
	if fd == -1 {
		free := -1
		for i, s := range t.slots {
			if s == nil {
				free = i
				break
			}
		}
		if free == -1 {
			return 0, -defs.EMFILE
		}
		fd = free
	}
	if fd < 0 || fd >= len(t.slots) {
		return 0, -defs.EINVAL
	}
	if t.slots[fd] != nil {
		return 0, -defs.EINVAL
	}
	obj.Retain()
	t.slots[fd] = obj
	return fd, 0
}

// Unbind releases the slot's object and clears it, per spec.md 4.7
// "file_desc_unbind".
func (t *Table_t) Unbind(fd int, dec InodeDecref) defs.Err_t {
	t.Lock()
	obj, err := t.getLocked(fd)
	if err != 0 {
		t.Unlock()
		return err
	}
	t.slots[fd] = nil
	t.Unlock()
	return obj.Release(dec)
}

// Rebind releases the old object at fd (if any) and retains/installs obj,
// per spec.md 4.7 "file_desc_rebind".
func (t *Table_t) Rebind(fd int, obj *File_t, dec InodeDecref) defs.Err_t {
	if fd < 0 || fd >= len(t.slots) {
		return -defs.EINVAL
	}
	t.Lock()
	old := t.slots[fd]
	obj.Retain()
	t.slots[fd] = obj
	t.Unlock()
	if old != nil {
		old.Release(dec)
	}
	return 0
}

// Clone deep-copies the table during fork by retaining every live object,
// per spec.md 4.7 "file_clone".
func (t *Table_t) Clone() *Table_t {
	t.Lock()
	defer t.Unlock()
	nt := MkTable(len(t.slots))
	for i, s := range t.slots {
		if s != nil {
			s.Retain()
			nt.slots[i] = s
		}
	}
	return nt
}

// Deinit unbinds every slot, per spec.md 4.7 "file_deinit".
func (t *Table_t) Deinit(dec InodeDecref) {
	t.Lock()
	slots := t.slots
	t.slots = make([]*File_t, len(slots))
	t.Unlock()
	for _, s := range slots {
		if s != nil {
			s.Release(dec)
		}
	}
}

// Cwd_t tracks a process's current working directory, kept from the
// teacher's Cwd_t.
type Cwd_t struct {
	sync.Mutex
	Fd   *File_t
	Path ustr.Ustr
}

// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(fd *File_t) *Cwd_t {
	return &Cwd_t{Fd: fd, Path: ustr.MkUstrRoot()}
}

// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	return cwd.Path.Extend(p)
}

// Canonicalpath resolves p relative to cwd and canonicalizes it.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	return Canonicalize(cwd.Fullpath(p))
}

// Canonicalize collapses "." and ".." components and repeated slashes in
// an absolute path, the replacement for the teacher's (unretrieved)
// bpath.Canonicalize.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	var stack []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			comp := p[start:i]
			start = i + 1
			switch {
			case len(comp) == 0:
			case comp.Isdot():
			case comp.Isdotdot():
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
			default:
				stack = append(stack, comp)
			}
		}
	}
	out := ustr.MkUstrRoot()
	if len(stack) == 0 {
		return out
	}
	out = append(ustr.Ustr{}, stack[0]...)
	for _, c := range stack[1:] {
		out = out.Extend(c)
	}
	full := append(ustr.Ustr{'/'}, out...)
	return full
}
