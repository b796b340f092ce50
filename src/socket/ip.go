// ip.go supplements spec.md 4.8 with the minimal IPv4 layer UDP needs to
// exist at all (SPEC_FULL 4 "UDP alongside TCP"): header pack/parse, the
// internet checksum, a per-protocol dispatch table, and ARP-backed
// transmission. Grounded on original_source/kernel/ip.c's
// ip_partial_checksum/ip_fold_checksum/ip_pseudo_checksum, ip_handle_rx
// and ip_send, adapted to read/write big-endian fields directly via
// encoding/binary rather than ip.c's endian-agnostic word-at-a-time trick
// (no benefit to replicating that C alignment workaround in Go, where the
// byte-pair read is already portable). No fragmentation, options, or
// routing beyond a single flat segment, matching spec.md 1's non-goals.
package socket

import "encoding/binary"
import "sync"

import "arp"
import "defs"
import "skb"

const (
	ProtoTCP = 6
	ProtoUDP = 17

	ipHdrLen   = 20
	defaultTTL = 64
)

func partialChecksum(b []byte) uint32 {
	var sum uint32
	n := len(b)
	i := 0
	for ; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if i < n {
		sum += uint32(b[i]) << 8
	}
	return sum
}

func foldChecksum(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// PseudoChecksum computes the TCP/UDP checksum over the pseudo-header
// {src_ip, dest_ip, zero, protocol, length} plus the segment, per
// original_source/kernel/ip.c's ip_pseudo_checksum. Exported so tcp (a
// separate package) can checksum its segments the same way udp.go does.
func PseudoChecksum(srcIP, dstIP arp.Ip_t, proto uint8, segment []byte) uint16 {
	var sum uint32
	sum += uint32(srcIP) >> 16
	sum += uint32(srcIP) & 0xffff
	sum += uint32(dstIP) >> 16
	sum += uint32(dstIP) & 0xffff
	sum += uint32(proto)
	sum += uint32(len(segment))
	sum += partialChecksum(segment)
	return foldChecksum(sum)
}

// PackIPHeader prepends a 20-byte IPv4 header (no options) over pkt's
// current payload (the already-built transport segment) and stamps the
// network-header mark, per ip.c's ip_send. Exported for tcp's use
// alongside udp.go's.
func PackIPHeader(pkt *skb.Skb_t, proto uint8, srcIP, dstIP arp.Ip_t) {
	hdr := pkt.Push(ipHdrLen)
	hdr[0] = 0x45 // version 4, IHL 5 (20 bytes, no options)
	hdr[1] = 0    // type of service
	binary.BigEndian.PutUint16(hdr[2:4], uint16(pkt.Len()))
	binary.BigEndian.PutUint16(hdr[4:6], 0) // identification
	binary.BigEndian.PutUint16(hdr[6:8], 0) // flags + fragment offset
	hdr[8] = defaultTTL
	hdr[9] = proto
	binary.BigEndian.PutUint16(hdr[10:12], 0) // checksum, filled below
	binary.BigEndian.PutUint32(hdr[12:16], uint32(srcIP))
	binary.BigEndian.PutUint32(hdr[16:20], uint32(dstIP))
	pkt.SetNetwork()
	binary.BigEndian.PutUint16(hdr[10:12], foldChecksum(partialChecksum(hdr)))
}

// ParseIPHeader validates and strips pkt's IPv4 header, stamping the
// network-header mark before pulling so NetworkBytes can recover the
// addressing fields afterward, per ip.c's ip_handle_rx.
func ParseIPHeader(pkt *skb.Skb_t) (proto uint8, srcIP, dstIP arp.Ip_t, ok bool) {
	if !pkt.MayPull(ipHdrLen) {
		return 0, 0, 0, false
	}
	hdr := pkt.Bytes()[:ipHdrLen]
	if hdr[0]>>4 != 4 || hdr[0]&0xf != 5 {
		return 0, 0, 0, false // IHL != 5: options unsupported
	}
	totalLen := int(binary.BigEndian.Uint16(hdr[2:4]))
	if totalLen < ipHdrLen || totalLen > pkt.Len() {
		return 0, 0, 0, false
	}
	if binary.BigEndian.Uint16(hdr[6:8])&0xbfff != 0 {
		return 0, 0, 0, false // fragmented, unsupported
	}
	if foldChecksum(partialChecksum(hdr)) != 0 {
		return 0, 0, 0, false
	}
	pkt.Trim(totalLen)
	proto = hdr[9]
	srcIP = arp.Ip_t(binary.BigEndian.Uint32(hdr[12:16]))
	dstIP = arp.Ip_t(binary.BigEndian.Uint32(hdr[16:20]))
	pkt.SetNetwork()
	pkt.Pull(ipHdrLen)
	return proto, srcIP, dstIP, true
}

// SendIP hands pkt (already carrying an IP header via PackIPHeader) to
// the next hop, resolving via arp.Cache the way ip_send's caller
// (ethernet_send_ip_skb in the original) does: reachable delivers
// immediately, invalid/waiting queues the packet behind an ARP
// resolution, unreachable fails outright. Exported for tcp's use.
func SendIP(iface *Iface_t, neighIP arp.Ip_t, pkt *skb.Skb_t) defs.Err_t {
	state, mac := arp.Cache.GetState(iface.Dev, neighIP)
	switch state {
	case arp.Reachable:
		return iface.Dev.Transmit(mac, arp.EthertypeIPv4, pkt)
	case arp.Waiting:
		return arp.Cache.QueueInsert(iface.Dev, neighIP, pkt)
	case arp.Unreachable:
		return -defs.ETIMEDOUT
	default: // arp.Invalid: kick off resolution, then queue behind it
		if err := arp.Cache.SendRequest(iface.Dev, neighIP); err != 0 {
			return err
		}
		return arp.Cache.QueueInsert(iface.Dev, neighIP, pkt)
	}
}

// ProtoHandler processes an incoming IP payload for one protocol number,
// the network-layer registration point tcp's handleRxIP hooks into,
// mirroring ip.c's hard-coded IPPROTO_TCP/IPPROTO_UDP switch.
type ProtoHandler func(iface *Iface_t, srcIP, dstIP arp.Ip_t, pkt *skb.Skb_t) defs.Err_t

var protoMu sync.Mutex
var protoHandlers = map[uint8]ProtoHandler{}

// RegisterProtocol installs h as the handler for proto.
func RegisterProtocol(proto uint8, h ProtoHandler) {
	protoMu.Lock()
	defer protoMu.Unlock()
	protoHandlers[proto] = h
}

// HandleRxIP parses pkt's IP header and dispatches to the registered
// handler for its protocol, per ip.c's ip_handle_rx.
func HandleRxIP(iface *Iface_t, pkt *skb.Skb_t) defs.Err_t {
	proto, srcIP, dstIP, ok := ParseIPHeader(pkt)
	if !ok {
		return -defs.EINVAL
	}
	if dstIP != iface.IP {
		return -defs.EINVAL
	}
	protoMu.Lock()
	h, exists := protoHandlers[proto]
	protoMu.Unlock()
	if !exists {
		return -defs.EINVAL
	}
	return h(iface, srcIP, dstIP, pkt)
}
