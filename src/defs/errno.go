package defs

// Err_t is the kernel-wide error type: zero is success, a negative value
// is one of the errno-style codes below. Every syscall and internal kernel
// API that can fail returns one, matching the convention fd.go and vm/as.go
// were already written against.
type Err_t int

// Errno codes surfaced to userspace (spec.md 6, 7). Values are negated by
// convention at the point of return (e.g. "return -defs.EFAULT").
const (
	EPERM    Err_t = 1  /// operation not permitted
	ENOENT   Err_t = 2  /// no such file or directory
	ESRCH    Err_t = 3  /// no such process
	EINTR    Err_t = 4  /// interrupted syscall, blocked caller had a signal arrive
	EIO      Err_t = 5  /// low level I/O error
	ENOEXEC  Err_t = 8  /// exec format error: image fails ELF/compat validation
	EBADF    Err_t = 9  /// bad (unbound, out-of-range) file descriptor
	ENOMEM   Err_t = 12 /// out of memory (frames, heap, PCBs, SKBs...)
	EACCES   Err_t = 13 /// permission denied
	EFAULT   Err_t = 14 /// bad user pointer
	EEXIST   Err_t = 17 /// file already exists
	ENOTDIR  Err_t = 20 /// not a directory
	EISDIR   Err_t = 21 /// is a directory
	EINVAL   Err_t = 22 /// invalid argument
	ENFILE   Err_t = 23 /// system-wide descriptor table exhausted
	EMFILE   Err_t = 24 /// per-process descriptor table exhausted
	ENOSPC   Err_t = 28 /// out of ports/frames/PCBs/SKB memory
	EAGAIN   Err_t = 35 /// would block
	ENAMETOOLONG Err_t = 36 /// strscpy_from_user ran out of room before the NUL
	ECONNRESET   Err_t = 54 /// TCP reset, see spec.md 7 "Connection-reset"
	EISCONN      Err_t = 56 /// socket already connected
	ENOTCONN     Err_t = 57 /// socket not connected
	ESHUTDOWN    Err_t = 58 /// cannot send after shutdown
	ETIMEDOUT    Err_t = 60 /// operation timed out
	ECONNREFUSED Err_t = 61 /// connection refused
	ENOHEAP      Err_t = 62 /// kernel-internal: resource bound exhausted mid copy
)

// IsErr reports whether e denotes a failure (any non-zero value). Kernel
// code returns errors already negated (-EINVAL and the like); since any
// non-zero value counts, a positive code is reported as a failure too.
func (e Err_t) IsErr() bool {
	return e != 0
}

// Rc returns the 32-bit syscall return value for e: 0 maps to success (the
// caller supplies the actual return value in that case), otherwise the
// negated errno as spec.md 6 specifies.
func (e Err_t) Rc() int {
	if e == 0 {
		return 0
	}
	v := int(e)
	if v > 0 {
		v = -v
	}
	return v
}
