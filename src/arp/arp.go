// Package arp implements spec.md 4.6's ARP resolver: a cache of
// (device, ip) -> state/mac entries with pending-packet queuing,
// resolve/cache timeouts, and a loopback shortcut (SPEC_FULL 4). Grounded
// directly on original_source/kernel/arp.c's arp_cache_insert/
// arp_queue_insert/arp_get_state/arp_send_request/arp_handle_rx state
// machine, keyed here through the hashtable package the way the teacher's
// hashtable.go is built to be used: a string key folding the device and
// ip together, since hashtable only hashes int/int32/string/ustr.Ustr.
package arp

import "encoding/binary"
import "fmt"
import "sync"

import "defs"
import "hashtable"
import "limits"
import "skb"
import "timer"

// Mac_t is a 6-byte hardware address.
type Mac_t [6]byte

// Ip_t is an IPv4 address, host-order.
type Ip_t uint32

// BroadcastMac is the all-ones ethernet broadcast address.
var BroadcastMac = Mac_t{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Device_i is the network device abstraction arp resolves addresses for.
// Device drivers and loopback delivery are out of this module's scope
// (spec.md 1 places hardware drivers out of scope); any caller with a MAC,
// an IP, and a way to hand a frame to the wire implements this.
type Device_i interface {
	LocalIP() Ip_t
	LocalMAC() Mac_t
	Transmit(dst Mac_t, ethertype uint16, pkt *skb.Skb_t) defs.Err_t
}

// State_t is spec.md 3 ARP entry's state.
type State_t int

const (
	Invalid State_t = iota
	Waiting
	Reachable
	Unreachable
)

const (
	htypeEthernet = 1
	ptypeIPv4     = 0x0800
	opRequest     = 1
	opReply       = 2

	EthertypeARP  = 0x0806
	EthertypeIPv4 = 0x0800

	hdrLen  = 8  // hw_type, proto_type, hw_len, proto_len, op
	bodyLen = 20 // src mac, src ip, dst mac, dst ip

	resolveTimeoutMs = 1 * 1000  // spec.md 4.6 "arm 1 s resolve timer"
	cacheTimeoutMs   = 60 * 1000 // spec.md 4.6 "arm 60 s cache timer"
)

type entry_t struct {
	sync.Mutex
	dev     Device_i
	ip      Ip_t
	mac     Mac_t
	state   State_t
	pending []*skb.Skb_t
	timeout timer.Timer_t
}

// Cache_t is spec.md 4.6's ARP table, keyed by (device, ip).
type Cache_t struct {
	ht *hashtable.Hashtable_t
}

// MkCache constructs an ARP cache with room for roughly size entries.
func MkCache(size int) *Cache_t {
	return &Cache_t{ht: hashtable.MkHash(size)}
}

func cacheKey(dev Device_i, ip Ip_t) string {
	return fmt.Sprintf("%p:%08x", dev, uint32(ip))
}

func (c *Cache_t) find(dev Device_i, ip Ip_t) (*entry_t, bool) {
	v, ok := c.ht.Get(cacheKey(dev, ip))
	if !ok {
		return nil, false
	}
	return v.(*entry_t), true
}

// insert creates the (dev,ip) entry if absent and applies the state
// transition spec.md 4.6 names: known mac -> reachable + 60s cache timer,
// unknown mac -> waiting + 1s resolve timer.
func (c *Cache_t) insert(dev Device_i, ip Ip_t, mac *Mac_t) *entry_t {
	e, ok := c.find(dev, ip)
	if !ok {
		e = &entry_t{dev: dev, ip: ip}
		if v, inserted := c.ht.Set(cacheKey(dev, ip), e); !inserted {
			e = v.(*entry_t) // lost a race with a concurrent insert
		}
	}
	e.Lock()
	if mac != nil {
		e.mac = *mac
		e.state = Reachable
		timer.Setup(&e.timeout, cacheTimeoutMs, func() { c.onCacheTimeout(dev, ip) })
	} else {
		e.state = Waiting
		timer.Setup(&e.timeout, resolveTimeoutMs, func() { c.onResolveTimeout(dev, ip) })
	}
	e.Unlock()
	return e
}

// onResolveTimeout declares the entry unreachable and drops its queue,
// per spec.md 4.6 "Resolve timeout -> unreachable, arm 60 s cache timer,
// drop queued packets".
func (c *Cache_t) onResolveTimeout(dev Device_i, ip Ip_t) {
	e, ok := c.find(dev, ip)
	if !ok {
		return
	}
	e.Lock()
	e.state = Unreachable
	pending := e.pending
	e.pending = nil
	timer.Setup(&e.timeout, cacheTimeoutMs, func() { c.onCacheTimeout(dev, ip) })
	e.Unlock()
	for _, p := range pending {
		p.Release()
	}
}

// onCacheTimeout removes the entry, per spec.md 4.6 "Cache timeout ->
// entry removed (asserts the queue is empty)".
func (c *Cache_t) onCacheTimeout(dev Device_i, ip Ip_t) {
	e, ok := c.find(dev, ip)
	if !ok {
		return
	}
	e.Lock()
	empty := len(e.pending) == 0
	e.Unlock()
	if !empty {
		panic("arp: cache entry expired with a nonempty pending queue")
	}
	c.ht.Del(cacheKey(dev, ip))
}

// GetState returns the current state of (dev,ip), filling mac if
// reachable, per spec.md 4.6 "get_state". The loopback shortcut
// (SPEC_FULL 4) reports a device's own address as immediately reachable,
// bypassing the cache entirely.
func (c *Cache_t) GetState(dev Device_i, ip Ip_t) (State_t, Mac_t) {
	if ip == dev.LocalIP() {
		return Reachable, dev.LocalMAC()
	}
	e, ok := c.find(dev, ip)
	if !ok {
		return Invalid, Mac_t{}
	}
	e.Lock()
	defer e.Unlock()
	return e.state, e.mac
}

// QueueInsert appends a clone of s to (dev,ip)'s pending list, per
// spec.md 4.6 "queue_insert". Fails with EINVAL if no entry exists yet
// (the caller is expected to have already called SendRequest).
func (c *Cache_t) QueueInsert(dev Device_i, ip Ip_t, s *skb.Skb_t) defs.Err_t {
	e, ok := c.find(dev, ip)
	if !ok {
		return -defs.EINVAL
	}
	clone, err := s.Clone()
	if err != 0 {
		return err
	}
	e.Lock()
	e.pending = append(e.pending, clone)
	e.Unlock()
	return 0
}

func buildPacket(op uint16, srcMac Mac_t, srcIP Ip_t, dstMac Mac_t, dstIP Ip_t) (*skb.Skb_t, defs.Err_t) {
	s, err := skb.Alloc(hdrLen + bodyLen)
	if err != 0 {
		return nil, err
	}
	s.Reserve(hdrLen)
	body := s.Put(bodyLen)
	copy(body[0:6], srcMac[:])
	binary.BigEndian.PutUint32(body[6:10], uint32(srcIP))
	copy(body[10:16], dstMac[:])
	binary.BigEndian.PutUint32(body[16:20], uint32(dstIP))

	hdr := s.Push(hdrLen)
	binary.BigEndian.PutUint16(hdr[0:2], htypeEthernet)
	binary.BigEndian.PutUint16(hdr[2:4], ptypeIPv4)
	hdr[4] = 6
	hdr[5] = 4
	binary.BigEndian.PutUint16(hdr[6:8], op)
	return s, 0
}

// SendRequest inserts a pending entry and broadcasts an ARP request, per
// spec.md 4.6 "send_request".
func (c *Cache_t) SendRequest(dev Device_i, ip Ip_t) defs.Err_t {
	c.insert(dev, ip, nil)
	pkt, err := buildPacket(opRequest, dev.LocalMAC(), dev.LocalIP(), BroadcastMac, ip)
	if err != 0 {
		return err
	}
	defer pkt.Release()
	return dev.Transmit(BroadcastMac, EthertypeARP, pkt)
}

// handleReply installs the mapping and flushes the pending queue with
// delivery, per spec.md 4.6 "replies install the mapping and flush the
// queue with delivery".
func (c *Cache_t) handleReply(dev Device_i, srcMac Mac_t, srcIP Ip_t) defs.Err_t {
	e := c.insert(dev, srcIP, &srcMac)
	e.Lock()
	pending := e.pending
	e.pending = nil
	e.Unlock()

	var firstErr defs.Err_t
	for _, p := range pending {
		if err := dev.Transmit(srcMac, EthertypeIPv4, p); err != 0 && firstErr == 0 {
			firstErr = err
		}
		p.Release()
	}
	return firstErr
}

// handleRequest replies with our MAC if the request targets our address,
// per spec.md 4.6 "requests for an interface IP trigger a reply".
func (c *Cache_t) handleRequest(dev Device_i, srcMac Mac_t, srcIP, dstIP Ip_t) defs.Err_t {
	if dstIP != dev.LocalIP() {
		return -defs.EINVAL
	}
	c.insert(dev, srcIP, &srcMac)
	pkt, err := buildPacket(opReply, dev.LocalMAC(), dev.LocalIP(), srcMac, srcIP)
	if err != 0 {
		return err
	}
	defer pkt.Release()
	return dev.Transmit(srcMac, EthertypeARP, pkt)
}

// HandleRx processes an incoming ARP packet, per spec.md 4.6 "handle_rx".
func (c *Cache_t) HandleRx(dev Device_i, pkt *skb.Skb_t) defs.Err_t {
	if !pkt.MayPull(hdrLen + bodyLen) {
		return -defs.EINVAL
	}
	hdr := pkt.Bytes()[:hdrLen]
	hwType := binary.BigEndian.Uint16(hdr[0:2])
	protoType := binary.BigEndian.Uint16(hdr[2:4])
	hwLen := hdr[4]
	protoLen := hdr[5]
	op := binary.BigEndian.Uint16(hdr[6:8])
	pkt.Pull(hdrLen)

	if hwType != htypeEthernet || protoType != ptypeIPv4 || hwLen != 6 || protoLen != 4 {
		return -defs.EINVAL
	}

	body := pkt.Bytes()[:bodyLen]
	var srcMac Mac_t
	copy(srcMac[:], body[0:6])
	srcIP := Ip_t(binary.BigEndian.Uint32(body[6:10]))
	dstIP := Ip_t(binary.BigEndian.Uint32(body[16:20]))

	switch op {
	case opReply:
		return c.handleReply(dev, srcMac, srcIP)
	case opRequest:
		return c.handleRequest(dev, srcMac, srcIP, dstIP)
	default:
		return -defs.EINVAL
	}
}

// Cache is the system-wide ARP cache, a singleton alongside mem.Physmem
// and kalloc.Kheap, per spec.md 313's list of process-wide shared
// structures.
var Cache = MkCache(limits.Syslimit.ArpEnts)
