package syscall391

import "sync"

import "defs"
import "fdops"
import "file"
import "inode"

// regFileOps_t is the fdops.Fdops_i implementation a ramfs_t-backed file
// object forwards to, grounded on the same read/write/seek/truncate shape
// every other fdops_i implementation in this tree (terminal's
// stdinOps_t/stdoutOps_t, socket's fileOps) already follows.
//
// process.Halt tears down a dying process's file table by calling
// fds.Deinit(nil) -- no InodeDecref callback -- so this type performs its
// own inode bookkeeping in Close rather than relying on one, closing the
// gap without changing process.Halt's signature (file.File_t.InodeIndex
// is left at file.NoInode for every ramfs-backed file object precisely
// so the file package never tries to double-account it).
type regFileOps_t struct {
	mu       sync.Mutex
	fs       *ramfs_t
	inodeIdx int
	rf       *ramfile_t
	mode     defs.FDMode_t
	pos      int
}

func (o *regFileOps_t) Close() defs.Err_t {
	inode.Inodes.Decref(o.inodeIdx, o.fs.freeData)
	return 0
}

func (o *regFileOps_t) Reopen() defs.Err_t {
	inode.Inodes.Ref(o.inodeIdx)
	return 0
}

func (o *regFileOps_t) Read(dst fdops.Uio_i) (int, defs.Err_t) {
	if !o.mode.Readable() {
		return 0, -defs.EACCES
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rf.mu.Lock()
	data := o.rf.data
	o.rf.mu.Unlock()
	if o.pos >= len(data) {
		return 0, 0
	}
	n, err := dst.Uiowrite(data[o.pos:])
	o.pos += n
	return n, err
}

func (o *regFileOps_t) Write(src fdops.Uio_i) (int, defs.Err_t) {
	if !o.mode.Writable() {
		return 0, -defs.EACCES
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mode&defs.O_APPEND != 0 {
		o.rf.mu.Lock()
		o.pos = len(o.rf.data)
		o.rf.mu.Unlock()
	}
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	buf = buf[:n]
	o.rf.mu.Lock()
	end := o.pos + n
	if end > len(o.rf.data) {
		grown := make([]byte, end)
		copy(grown, o.rf.data)
		o.rf.data = grown
	}
	copy(o.rf.data[o.pos:end], buf)
	o.rf.mu.Unlock()
	o.pos = end
	return n, 0
}

func (o *regFileOps_t) Seek(off int, whence int) (int, defs.Err_t) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sz := o.rf.size()
	var newpos int
	switch whence {
	case fdops.SEEK_SET:
		newpos = off
	case fdops.SEEK_CUR:
		newpos = o.pos + off
	case fdops.SEEK_END:
		newpos = sz + off
	default:
		return 0, -defs.EINVAL
	}
	if newpos < 0 {
		return 0, -defs.EINVAL
	}
	o.pos = newpos
	return o.pos, 0
}

func (o *regFileOps_t) Truncate(newlen uint) defs.Err_t {
	if !o.mode.Writable() {
		return -defs.EACCES
	}
	o.rf.mu.Lock()
	defer o.rf.mu.Unlock()
	n := int(newlen)
	if n <= len(o.rf.data) {
		o.rf.data = o.rf.data[:n]
		return 0
	}
	grown := make([]byte, n)
	copy(grown, o.rf.data)
	o.rf.data = grown
	return 0
}

func (o *regFileOps_t) Fcntl(cmd, arg int) int {
	return -1
}

func (o *regFileOps_t) Ioctl(cmd, arg int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

func (o *regFileOps_t) Stat(st *fdops.Stat_t) defs.Err_t {
	st.Size = o.rf.size()
	st.Mode = int(o.mode)
	st.Rdev = 0
	return 0
}

// openRegFile resolves name in the RAM filesystem, optionally creating it,
// and returns a ready-to-bind file object, per spec.md 4.7's open:
// "resolve the filename to a directory entry; if absent and the caller
// passed the create flag, create it... allocate the file object... if the
// caller passed the truncate flag and opened for writing, truncate to
// zero." Binding to a descriptor and the create-syscall's own call are
// both the caller's job (dispatch.go), since file.Table_t.Bind needs the
// owning process's table.
func openRegFile(name string, mode defs.FDMode_t) (*file.File_t, defs.Err_t) {
	idx, ok := rootfs.lookup(name)
	if !ok {
		if mode&defs.O_CREAT == 0 {
			return nil, -defs.ENOENT
		}
		var err defs.Err_t
		idx, err = rootfs.create(name)
		if err != 0 {
			return nil, err
		}
	}
	rf := rootfs.file(idx)
	if rf == nil {
		return nil, -defs.ENOENT
	}
	inode.Inodes.Ref(idx)
	if mode&defs.O_TRUNC != 0 && mode.Writable() {
		rf.mu.Lock()
		rf.data = nil
		rf.mu.Unlock()
	}
	ops := &regFileOps_t{fs: rootfs, inodeIdx: idx, rf: rf, mode: mode}
	fileMode := 0
	if mode.Readable() {
		fileMode |= file.F_READ
	}
	if mode.Writable() {
		fileMode |= file.F_WRITE
	}
	f := file.Alloc(ops, fileMode)
	return f, 0
}
