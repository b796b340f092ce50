package socket

import "math/rand"

import "arp"
import "defs"
import "limits"

// findFreePort picks a random free ephemeral port for (iface, typ), per
// spec.md 4.8 "pick a random free ephemeral port by scanning
// [49152, 65535]": start at a random offset in the range and scan
// forward (wrapping) until a free port turns up or every port has been
// tried, matching original_source/kernel/socket.c's
// socket_find_free_port.
func findFreePort(iface *Iface_t, typ Type_t) (uint16, defs.Err_t) {
	ip := AnyIP
	if iface != nil {
		ip = iface.IP
	}
	lo := int(limits.Syslimit.EphemeralLo)
	hi := int(limits.Syslimit.EphemeralHi)
	span := hi - lo + 1
	start := lo + rand.Intn(span)
	port := start
	for {
		if ByLocalAddr(typ, ip, uint16(port)) == nil {
			return uint16(port), 0
		}
		port++
		if port > hi {
			port = lo
		}
		if port == start {
			return 0, -defs.ENOSPC
		}
	}
}

// BindAddr binds s to (ip, port), per spec.md 4.8 "socket_bind_addr": ip
// == AnyIP binds to every interface, port == 0 auto-allocates an
// ephemeral port. Fails with EINVAL if ip names no registered interface
// or (ip, port) is already claimed by a different same-type socket, and
// ENOSPC if the ephemeral range is exhausted. Does not itself guard
// against re-binding an already-bound socket; the caller does.
func BindAddr(s *Sock_t, ip arp.Ip_t, port uint16) defs.Err_t {
	var iface *Iface_t
	if ip != AnyIP {
		iface = findInterface(ip)
		if iface == nil {
			return -defs.EINVAL
		}
	}
	if port == 0 {
		p, err := findFreePort(iface, s.Type)
		if err != 0 {
			return err
		}
		port = p
	}
	if existing := ByLocalAddr(s.Type, ip, port); existing != nil && existing != s {
		return -defs.EINVAL
	}
	s.Lock()
	s.Bound = true
	s.Iface = iface
	s.Local = Addr_t{IP: ip, Port: port}
	s.Unlock()
	return 0
}

// ConnectAddr sets s's remote address without binding to an interface or
// checking routability, per spec.md 4.8 "socket_connect_addr" (UDP's
// connect: just a default send/filter address).
func ConnectAddr(s *Sock_t, ip arp.Ip_t, port uint16) defs.Err_t {
	if port == 0 || ip == AnyIP {
		return -defs.EINVAL
	}
	s.Lock()
	s.Connected = true
	s.Remote = Addr_t{IP: ip, Port: port}
	s.Unlock()
	return 0
}

// ConnectAndBindAddr routes to ip, auto-binding s to the routing
// interface if not already bound, then sets the remote address, per
// spec.md 4.8 "socket_connect_and_bind_addr" (TCP's connect: routability
// matters since a SYN must actually go somewhere).
func ConnectAndBindAddr(s *Sock_t, ip arp.Ip_t, port uint16) defs.Err_t {
	if port == 0 || ip == AnyIP {
		return -defs.EINVAL
	}
	s.Lock()
	preferred := s.Iface
	bound := s.Bound
	boundPort := s.Local.Port
	s.Unlock()

	iface, _ := Route(preferred, ip)
	if iface == nil {
		return -defs.EINVAL
	}

	if !bound || preferred == nil {
		localPort := boundPort
		if !bound {
			p, err := findFreePort(iface, s.Type)
			if err != 0 {
				return err
			}
			localPort = p
		}
		s.Lock()
		s.Bound = true
		s.Iface = iface
		s.Local = Addr_t{IP: iface.IP, Port: localPort}
		s.Unlock()
	}

	s.Lock()
	s.Connected = true
	s.Remote = Addr_t{IP: ip, Port: port}
	s.Unlock()
	return 0
}
