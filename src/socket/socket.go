// Package socket implements spec.md 4.8's socket core: a polymorphic
// socket type registry, a global socket list dispatched by
// (type, local_ip, local_port, remote_ip, remote_port), and the generic
// file-object glue every concrete socket type (udp.go, and the tcp
// package) binds through. Grounded directly on
// original_source/kernel/socket.c: socket_obj_alloc/retain/release,
// socket_obj_bind_file, socket_bind_addr/connect_addr/
// connect_and_bind_addr, socket_find_free_port, and the
// socket_local_addr_matches/socket_addr_matches lookup pair, translated
// from a single fixed SOCK_TYPE_COUNT ops-table array into a small
// registered-type map since nothing here needs a C-style static array.
package socket

import "sync"

import "arp"
import "defs"
import "fdops"
import "file"
import "limits"

// Type_t is spec.md 3's socket type enumeration.
type Type_t int

const (
	TCP Type_t = iota
	UDP
)

// AnyIP is the wildcard bind/connect address (0.0.0.0), matching the
// original's ANY_IP/INVALID_IP (both all-zero, per net.h).
const AnyIP = arp.Ip_t(0)

// Addr_t is spec.md 6's socket address: an IPv4 address plus a 16-bit port.
type Addr_t struct {
	IP   arp.Ip_t
	Port uint16
}

// Ops_i is the per-type vtable spec.md 4.8 calls "the per-type socket
// vtable", one implementation per Type_t (udp.go's udpOps_t here; the tcp
// package registers its tcpOps_t the same way).
type Ops_i interface {
	Ctor(sock *Sock_t) defs.Err_t
	Dtor(sock *Sock_t)
	Bind(sock *Sock_t, addr Addr_t) defs.Err_t
	Connect(sock *Sock_t, addr Addr_t) defs.Err_t
	Listen(sock *Sock_t, backlog int) defs.Err_t
	Accept(sock *Sock_t) (*Sock_t, Addr_t, defs.Err_t)
	Recvfrom(sock *Sock_t, dst fdops.Uio_i, addr *Addr_t) (int, defs.Err_t)
	Sendto(sock *Sock_t, src fdops.Uio_i, addr *Addr_t) (int, defs.Err_t)
	Shutdown(sock *Sock_t) defs.Err_t
	// Close runs on file-descriptor close, while the socket object may
	// still live on (a connected TCP socket lingering through TIME_WAIT);
	// Dtor runs only once the last reference actually disappears.
	Close(sock *Sock_t)
}

// Sock_t is spec.md 3's "Socket": {type, refcount, local/remote addr,
// interface, bound/connected/listening flags, file backreference,
// type-specific private state}.
type Sock_t struct {
	sync.Mutex
	Type      Type_t
	ops       Ops_i
	refcount  int
	Bound     bool
	Connected bool
	Listening bool
	Local     Addr_t
	Remote    Addr_t
	Iface     *Iface_t
	File      *file.File_t
	Priv      interface{}
}

var registryMu sync.Mutex
var opsTable = map[Type_t]Ops_i{}
var sockets []*Sock_t

// RegisterType installs ops as the vtable for t, per spec.md 4.8's
// "polymorphic socket type registry". Concrete types call this from an
// init() the way the teacher's udp_init()/tcp_init() register with
// socket_register_type.
func RegisterType(t Type_t, ops Ops_i) {
	registryMu.Lock()
	defer registryMu.Unlock()
	opsTable[t] = ops
}

// New allocates and constructs a socket of type t with refcount 1, per
// spec.md 4.8 "socket_obj_alloc": looks up the registered vtable, takes a
// slot from the system-wide socket budget, and runs the type's
// constructor. Does not bind the socket to a file object; the caller
// follows with BindToFile.
func New(t Type_t) (*Sock_t, defs.Err_t) {
	registryMu.Lock()
	ops, ok := opsTable[t]
	registryMu.Unlock()
	if !ok {
		return nil, -defs.EINVAL
	}
	if !limits.Syslimit.Sockets.Take() {
		return nil, -defs.ENOSPC
	}
	s := &Sock_t{Type: t, ops: ops, refcount: 1}
	if err := ops.Ctor(s); err != 0 {
		limits.Syslimit.Sockets.Give()
		return nil, err
	}
	registryMu.Lock()
	sockets = append(sockets, s)
	registryMu.Unlock()
	return s, 0
}

// Retain increments the socket's reference count, per spec.md 4.8
// "socket_obj_retain".
func (s *Sock_t) Retain() {
	s.Lock()
	s.refcount++
	s.Unlock()
}

// Release decrements the reference count, running the destructor and
// removing the socket from the global list once it reaches zero, per
// spec.md 4.8 "socket_obj_release".
func (s *Sock_t) Release() {
	s.Lock()
	s.refcount--
	zero := s.refcount == 0
	s.Unlock()
	if !zero {
		return
	}
	s.ops.Dtor(s)
	registryMu.Lock()
	for i, v := range sockets {
		if v == s {
			sockets = append(sockets[:i], sockets[i+1:]...)
			break
		}
	}
	registryMu.Unlock()
	limits.Syslimit.Sockets.Give()
}

// Refcount reports the current reference count, for tests and diagnostics.
func (s *Sock_t) Refcount() int {
	s.Lock()
	defer s.Unlock()
	return s.refcount
}

// fileOps adapts a socket's per-type vtable to fdops.Fdops_i, per spec.md
// 4.8 "every socket binds to a file object via the generic file
// registration; its file ops forward read/write/close into the per-type
// socket vtable entries recvfrom/sendto/close". Grounded on the teacher's
// static socket_fops/FORWARD_SOCKETCALL pairing in socket.c.
type fileOps struct {
	sock *Sock_t
}

func (o *fileOps) Close() defs.Err_t {
	o.sock.ops.Close(o.sock)
	o.sock.Lock()
	o.sock.File = nil
	o.sock.Unlock()
	o.sock.Release()
	return 0
}

func (o *fileOps) Reopen() defs.Err_t {
	o.sock.Retain()
	return 0
}

func (o *fileOps) Read(dst fdops.Uio_i) (int, defs.Err_t) {
	return o.sock.ops.Recvfrom(o.sock, dst, nil)
}

func (o *fileOps) Write(src fdops.Uio_i) (int, defs.Err_t) {
	return o.sock.ops.Sendto(o.sock, src, nil)
}

func (o *fileOps) Seek(off int, whence int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

func (o *fileOps) Truncate(newlen uint) defs.Err_t {
	return -defs.EINVAL
}

func (o *fileOps) Fcntl(cmd, arg int) int {
	return -1
}

func (o *fileOps) Ioctl(cmd, arg int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

func (o *fileOps) Stat(st *fdops.Stat_t) defs.Err_t {
	return -defs.EINVAL
}

// BindToFile allocates a file object wrapping s and retains s on its
// behalf, per spec.md 4.8 "socket_obj_bind_file". Panics if s is already
// bound, matching the original's assert(sock->file == NULL).
func (s *Sock_t) BindToFile() *file.File_t {
	s.Lock()
	if s.File != nil {
		s.Unlock()
		panic("socket: socket already bound to a file")
	}
	s.Unlock()
	f := file.Alloc(&fileOps{sock: s}, file.F_READ|file.F_WRITE)
	s.Retain()
	s.Lock()
	s.File = f
	s.Unlock()
	return f
}

// IsNonblocking reports whether s's attached file is in non-blocking
// mode, per spec.md 4.8 "socket_is_nonblocking". Must only be called
// while a file is attached.
func (s *Sock_t) IsNonblocking() bool {
	s.Lock()
	f := s.File
	s.Unlock()
	if f == nil {
		panic("socket: IsNonblocking called with no attached file")
	}
	return f.Nonblock
}

// Bind, Connect, Listen, Accept, Recvfrom, Sendto, and Shutdown forward to
// s's per-type vtable, the same way fileOps's Read/Write already do for
// the file-descriptor path; syscall391's socket syscalls go through these
// rather than reaching into the unexported ops field directly.
func (s *Sock_t) Bind(addr Addr_t) defs.Err_t { return s.ops.Bind(s, addr) }

func (s *Sock_t) Connect(addr Addr_t) defs.Err_t { return s.ops.Connect(s, addr) }

func (s *Sock_t) Listen(backlog int) defs.Err_t { return s.ops.Listen(s, backlog) }

func (s *Sock_t) Accept() (*Sock_t, Addr_t, defs.Err_t) { return s.ops.Accept(s) }

func (s *Sock_t) Recvfrom(dst fdops.Uio_i, addr *Addr_t) (int, defs.Err_t) {
	return s.ops.Recvfrom(s, dst, addr)
}

func (s *Sock_t) Sendto(src fdops.Uio_i, addr *Addr_t) (int, defs.Err_t) {
	return s.ops.Sendto(s, src, addr)
}

func (s *Sock_t) Shutdown() defs.Err_t { return s.ops.Shutdown(s) }

// Getsockname returns s's bound local address, per spec.md 6
// "getsockname".
func (s *Sock_t) Getsockname() (Addr_t, defs.Err_t) {
	s.Lock()
	defer s.Unlock()
	if !s.Bound {
		return Addr_t{}, -defs.EINVAL
	}
	return s.Local, 0
}

// Getpeername returns s's connected remote address, per spec.md 6
// "getpeername". A successful return does not imply the peer still
// exists, only that Connect was called, matching the original's note.
func (s *Sock_t) Getpeername() (Addr_t, defs.Err_t) {
	s.Lock()
	defer s.Unlock()
	if !s.Connected {
		return Addr_t{}, -defs.ENOTCONN
	}
	return s.Remote, 0
}

func localAddrMatches(s *Sock_t, typ Type_t, ip arp.Ip_t, port uint16) bool {
	s.Lock()
	defer s.Unlock()
	if !s.Bound || s.Type != typ || s.Local.Port != port {
		return false
	}
	if s.Iface == nil {
		return true
	}
	if ip == AnyIP {
		return true
	}
	return s.Local.IP == ip
}

func addrMatches(s *Sock_t, typ Type_t, localIP arp.Ip_t, localPort uint16, remoteIP arp.Ip_t, remotePort uint16) bool {
	if !localAddrMatches(s, typ, localIP, localPort) {
		return false
	}
	s.Lock()
	connected := s.Connected
	remote := s.Remote
	s.Unlock()
	if !connected {
		return remoteIP == AnyIP && remotePort == 0
	}
	return remote.IP == remoteIP && remote.Port == remotePort
}

// ByAddr returns the socket matching the full 4-tuple, or nil, per
// spec.md 4.8 "get_sock_by_addr". Listening sockets (remote == (any, 0))
// only ever match an unconnected lookup.
func ByAddr(typ Type_t, localIP arp.Ip_t, localPort uint16, remoteIP arp.Ip_t, remotePort uint16) *Sock_t {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, s := range sockets {
		if addrMatches(s, typ, localIP, localPort, remoteIP, remotePort) {
			return s
		}
	}
	return nil
}

// ByLocalAddr returns the socket bound to (ip, port), ignoring the
// remote half, per spec.md 4.8 "get_sock_by_local_addr" (used both for
// direct UDP dispatch and as the fallback "route to a listening socket"
// step of TCP reception).
func ByLocalAddr(typ Type_t, ip arp.Ip_t, port uint16) *Sock_t {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, s := range sockets {
		if localAddrMatches(s, typ, ip, port) {
			return s
		}
	}
	return nil
}
