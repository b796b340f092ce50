package syscall391

import "arp"
import "defs"
import "paging"
import "socket"

// sockaddrLen is this package's wire encoding of socket.Addr_t for the
// bind/connect/accept/recvfrom/sendto/getsockname/getpeername syscalls: a
// 4-byte big-endian IPv4 address followed by a 2-byte big-endian port,
// the BSD sockaddr_in shape reduced to only the two fields socket.Addr_t
// has. None of the retrieval pack's examples cross a syscall ABI boundary
// for a socket address (the teacher calls socket_bind_addr etc. directly
// from kernel code with a real struct pointer already in hand), so this
// layout is this package's own invention rather than a grounded copy.
const sockaddrLen = 6

// copyAddrIn decodes a socket.Addr_t from the sockaddrLen bytes at user
// address uva.
func copyAddrIn(uva int) (socket.Addr_t, defs.Err_t) {
	var buf [sockaddrLen]byte
	if err := paging.CopyFromUser(buf[:], uva); err != 0 {
		return socket.Addr_t{}, err
	}
	ip := arp.Ip_t(uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]))
	port := uint16(buf[4])<<8 | uint16(buf[5])
	return socket.Addr_t{IP: ip, Port: port}, 0
}

// copyAddrOut encodes addr into the sockaddrLen bytes at user address uva.
// A zero uva (the caller passed no address buffer, as recvfrom/accept
// permit) is a no-op.
func copyAddrOut(uva int, addr socket.Addr_t) defs.Err_t {
	if uva == 0 {
		return 0
	}
	var buf [sockaddrLen]byte
	ip := uint32(addr.IP)
	buf[0] = byte(ip >> 24)
	buf[1] = byte(ip >> 16)
	buf[2] = byte(ip >> 8)
	buf[3] = byte(ip)
	buf[4] = byte(addr.Port >> 8)
	buf[5] = byte(addr.Port)
	return paging.CopyToUser(uva, buf[:])
}
