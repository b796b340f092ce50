package socket

import "sync"

import "arp"

// Iface_t is a network interface: an IPv4 address and the device arp
// resolves neighbors through. Stands in for the C original's net_iface_t,
// reduced to the fields socket_bind_addr/socket_connect_and_bind_addr
// actually consult (no subnet mask or gateway modeling, since spec.md
// never names multi-subnet routing).
type Iface_t struct {
	IP  arp.Ip_t
	Dev arp.Device_i
}

var ifaceMu sync.Mutex
var ifaces []*Iface_t

// RegisterInterface adds an interface to the system's interface table,
// the SPEC_FULL 4 "Interfaces() lookup table" that replaces ip.c's
// per-call net_find linear scan with an explicit registry populated once
// at boot.
func RegisterInterface(ip arp.Ip_t, dev arp.Device_i) *Iface_t {
	ifaceMu.Lock()
	defer ifaceMu.Unlock()
	ifc := &Iface_t{IP: ip, Dev: dev}
	ifaces = append(ifaces, ifc)
	return ifc
}

// Interfaces returns a snapshot of every registered interface.
func Interfaces() []*Iface_t {
	ifaceMu.Lock()
	defer ifaceMu.Unlock()
	out := make([]*Iface_t, len(ifaces))
	copy(out, ifaces)
	return out
}

func findInterface(ip arp.Ip_t) *Iface_t {
	ifaceMu.Lock()
	defer ifaceMu.Unlock()
	for _, i := range ifaces {
		if i.IP == ip {
			return i
		}
	}
	return nil
}

// Route picks an outbound interface and next-hop for dst, per spec.md
// 4.8 "route to find an outbound interface and next-hop". preferred, if
// set, is used as-is (a socket already bound to one interface always
// routes through it). Otherwise the first registered interface is used:
// this kernel models a single flat network segment, so there is never a
// gateway decision to make, only which of possibly several local
// interfaces to originate from. Exported so tcp can route its SYN/data
// segments the same way udp.go routes datagrams.
func Route(preferred *Iface_t, dst arp.Ip_t) (*Iface_t, arp.Ip_t) {
	if preferred != nil {
		return preferred, dst
	}
	ifaceMu.Lock()
	defer ifaceMu.Unlock()
	if len(ifaces) == 0 {
		return nil, 0
	}
	return ifaces[0], dst
}
