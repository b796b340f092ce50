// udp.go is SPEC_FULL 4's "minimal socket UDP path (bind/sendto/
// recvfrom, no state machine)", grounded directly on
// original_source/kernel/udp.c: udp_ctor/dtor, udp_bind, udp_connect
// (with its inbox-filter-on-reconnect), udp_can_read/udp_recvfrom,
// udp_send/udp_sendto. The original's sleep-queue + WAIT_INTERRUPTIBLE
// pairing becomes a buffered Go channel: a receive on it already is the
// blocking wait, and a select-with-default is the non-blocking poll,
// matching this module's concurrency model (goroutines/channels in place
// of cooperative-kernel sleep queues).
package socket

import "encoding/binary"

import "arp"
import "defs"
import "fdops"
import "skb"

const (
	udpHdrLen  = 8
	udpMaxLen  = 1472 // matches UDP_MAX_LEN in udp.c
	udpInboxCap = 128
)

type udpPriv struct {
	inbox chan *skb.Skb_t
}

func udpPrivOf(s *Sock_t) *udpPriv { return s.Priv.(*udpPriv) }

type udpOps_t struct{}

func init() {
	RegisterType(UDP, &udpOps_t{})
	RegisterProtocol(ProtoUDP, udpHandleRxIP)
}

func (o *udpOps_t) Ctor(s *Sock_t) defs.Err_t {
	s.Priv = &udpPriv{inbox: make(chan *skb.Skb_t, udpInboxCap)}
	return 0
}

func (o *udpOps_t) Dtor(s *Sock_t) {
	p := udpPrivOf(s)
	for {
		select {
		case pkt := <-p.inbox:
			pkt.Release()
		default:
			return
		}
	}
}

// Close is a no-op for UDP: the original leaves sops_udp.close unset,
// since a UDP socket has nothing to linger on unlike a connected TCP one.
func (o *udpOps_t) Close(s *Sock_t) {}

func (o *udpOps_t) Bind(s *Sock_t, addr Addr_t) defs.Err_t {
	return BindAddr(s, addr.IP, addr.Port)
}

// udpMatchesConnected reports whether pkt's source matches s's connected
// remote address, per udp.c's udp_matches_connected_addr.
func udpMatchesConnected(s *Sock_t, pkt *skb.Skb_t) bool {
	s.Lock()
	remote := s.Remote
	s.Unlock()
	nethdr := pkt.NetworkBytes(ipHdrLen)
	srcIP := arp.Ip_t(binary.BigEndian.Uint32(nethdr[12:16]))
	transhdr := pkt.TransportBytes(udpHdrLen)
	srcPort := binary.BigEndian.Uint16(transhdr[0:2])
	return remote.IP == srcIP && remote.Port == srcPort
}

func (o *udpOps_t) Connect(s *Sock_t, addr Addr_t) defs.Err_t {
	if err := ConnectAddr(s, addr.IP, addr.Port); err != 0 {
		return err
	}
	// Discard anything already queued that doesn't match the new peer,
	// per udp.c's udp_connect draining mismatched datagrams.
	p := udpPrivOf(s)
	var keep []*skb.Skb_t
	draining := true
	for draining {
		select {
		case pkt := <-p.inbox:
			if udpMatchesConnected(s, pkt) {
				keep = append(keep, pkt)
			} else {
				pkt.Release()
			}
		default:
			draining = false
		}
	}
	for _, pkt := range keep {
		p.inbox <- pkt
	}
	return 0
}

func (o *udpOps_t) Listen(s *Sock_t, backlog int) defs.Err_t {
	return -defs.EINVAL
}

func (o *udpOps_t) Accept(s *Sock_t) (*Sock_t, Addr_t, defs.Err_t) {
	return nil, Addr_t{}, -defs.EINVAL
}

func (o *udpOps_t) Shutdown(s *Sock_t) defs.Err_t {
	return -defs.EINVAL
}

// Recvfrom reads a single datagram, per udp.c's udp_recvfrom: blocks
// until one arrives (or returns EAGAIN immediately in non-blocking mode),
// copies the sender's address out if addr is non-nil.
func (o *udpOps_t) Recvfrom(s *Sock_t, dst fdops.Uio_i, addr *Addr_t) (int, defs.Err_t) {
	s.Lock()
	bound := s.Bound
	s.Unlock()
	if !bound {
		return 0, -defs.EINVAL
	}
	p := udpPrivOf(s)

	var pkt *skb.Skb_t
	if s.IsNonblocking() {
		select {
		case pkt = <-p.inbox:
		default:
			return 0, -defs.EAGAIN
		}
	} else {
		pkt = <-p.inbox
	}

	if addr != nil {
		nethdr := pkt.NetworkBytes(ipHdrLen)
		transhdr := pkt.TransportBytes(udpHdrLen)
		addr.IP = arp.Ip_t(binary.BigEndian.Uint32(nethdr[12:16]))
		addr.Port = binary.BigEndian.Uint16(transhdr[0:2])
	}
	n, err := dst.Uiowrite(pkt.Bytes())
	pkt.Release()
	if err != 0 {
		return 0, err
	}
	return n, 0
}

// udpSend prepends the UDP header and pseudo-header checksum, then the
// IP header, and transmits, per udp.c's udp_send.
func udpSend(s *Sock_t, body *skb.Skb_t, dstIP arp.Ip_t, dstPort uint16) defs.Err_t {
	if !s.Bound {
		if err := BindAddr(s, AnyIP, 0); err != 0 {
			return err
		}
	}
	s.Lock()
	preferred := s.Iface
	srcPort := s.Local.Port
	s.Unlock()

	iface, neighIP := Route(preferred, dstIP)
	if iface == nil {
		return -defs.EINVAL
	}

	hdr := body.Push(udpHdrLen)
	binary.BigEndian.PutUint16(hdr[0:2], srcPort)
	binary.BigEndian.PutUint16(hdr[2:4], dstPort)
	binary.BigEndian.PutUint16(hdr[4:6], uint16(body.Len()))
	binary.BigEndian.PutUint16(hdr[6:8], 0)
	body.SetTransport()

	cksum := PseudoChecksum(iface.IP, dstIP, ProtoUDP, body.Bytes())
	if cksum == 0 {
		cksum = 0xffff
	}
	binary.BigEndian.PutUint16(hdr[6:8], cksum)

	PackIPHeader(body, ProtoUDP, iface.IP, dstIP)
	return SendIP(iface, neighIP, body)
}

func (o *udpOps_t) Sendto(s *Sock_t, src fdops.Uio_i, addr *Addr_t) (int, defs.Err_t) {
	var dest Addr_t
	if addr != nil {
		dest = *addr
	} else {
		s.Lock()
		connected := s.Connected
		remote := s.Remote
		s.Unlock()
		if !connected {
			return 0, -defs.ENOTCONN
		}
		dest = remote
	}
	if dest.Port == 0 {
		return 0, -defs.EINVAL
	}

	n := src.Remain()
	if n > udpMaxLen {
		n = udpMaxLen
	}

	hdrRoom := udpHdrLen + ipHdrLen
	pkt, err := skb.Alloc(n + hdrRoom)
	if err != 0 {
		return 0, err
	}
	pkt.Reserve(hdrRoom)
	body := pkt.Put(n)
	written, err := src.Uioread(body)
	if err != 0 {
		pkt.Release()
		return 0, err
	}
	pkt.Trim(written)

	err = udpSend(s, pkt, dest.IP, dest.Port)
	pkt.Release()
	if err != 0 {
		return 0, err
	}
	return written, 0
}

// udpHandleRxIP is the ProtoUDP handler registered with HandleRxIP, per
// udp.c's udp_handle_rx: validates the header, finds the destination
// socket by local address, filters by connected peer if set, and queues.
func udpHandleRxIP(iface *Iface_t, srcIP, dstIP arp.Ip_t, pkt *skb.Skb_t) defs.Err_t {
	if !pkt.MayPull(udpHdrLen) {
		return -defs.EINVAL
	}
	hdr := pkt.Bytes()[:udpHdrLen]
	length := binary.BigEndian.Uint16(hdr[4:6])
	if int(length) != pkt.Len() {
		return -defs.EINVAL
	}
	destPort := binary.BigEndian.Uint16(hdr[2:4])
	pkt.SetTransport()
	pkt.Pull(udpHdrLen)

	s := ByLocalAddr(UDP, dstIP, destPort)
	if s == nil {
		return -defs.ECONNREFUSED
	}
	s.Lock()
	connected := s.Connected
	s.Unlock()
	if connected && !udpMatchesConnected(s, pkt) {
		return -defs.ECONNREFUSED
	}

	clone, err := pkt.Clone()
	if err != 0 {
		return err
	}
	p := udpPrivOf(s)
	select {
	case p.inbox <- clone:
	default:
		clone.Release() // inbox full, drop as the original's unbounded
		// list never would, but spec.md names no send-side backpressure
		// signal for a full receive queue, so dropping is the only option
	}
	return 0
}
