package arp

import "testing"

import "defs"
import "skb"
import "timer"

type sentPkt struct {
	dst       Mac_t
	ethertype uint16
	payload   []byte
}

type fakeDevice struct {
	ip   Ip_t
	mac  Mac_t
	sent []sentPkt
}

func (d *fakeDevice) LocalIP() Ip_t  { return d.ip }
func (d *fakeDevice) LocalMAC() Mac_t { return d.mac }

func (d *fakeDevice) Transmit(dst Mac_t, ethertype uint16, pkt *skb.Skb_t) defs.Err_t {
	b := append([]byte{}, pkt.Bytes()...)
	d.sent = append(d.sent, sentPkt{dst, ethertype, b})
	return 0
}

func TestGetStateInvalidForUnknown(t *testing.T) {
	dev := &fakeDevice{ip: 0x0a000001, mac: Mac_t{1, 1, 1, 1, 1, 1}}
	c := MkCache(16)
	state, _ := c.GetState(dev, 0x0a000002)
	if state != Invalid {
		t.Fatalf("state = %v want Invalid", state)
	}
}

func TestLoopbackShortcut(t *testing.T) {
	dev := &fakeDevice{ip: 0x7f000001, mac: Mac_t{9, 9, 9, 9, 9, 9}}
	c := MkCache(16)
	state, mac := c.GetState(dev, dev.ip)
	if state != Reachable || mac != dev.mac {
		t.Fatalf("loopback GetState = %v,%v want Reachable,%v", state, mac, dev.mac)
	}
}

func TestSendRequestBroadcastsAndSetsWaiting(t *testing.T) {
	dev := &fakeDevice{ip: 0x0a000001, mac: Mac_t{1, 2, 3, 4, 5, 6}}
	c := MkCache(16)
	if err := c.SendRequest(dev, 0x0a000002); err != 0 {
		t.Fatal(err)
	}
	if len(dev.sent) != 1 {
		t.Fatalf("sent %d frames want 1", len(dev.sent))
	}
	if dev.sent[0].dst != BroadcastMac || dev.sent[0].ethertype != EthertypeARP {
		t.Fatal("request must broadcast as an ARP frame")
	}
	state, _ := c.GetState(dev, 0x0a000002)
	if state != Waiting {
		t.Fatalf("state = %v want Waiting", state)
	}
}

func TestQueueInsertRequiresExistingEntry(t *testing.T) {
	dev := &fakeDevice{ip: 0x0a000001, mac: Mac_t{1, 2, 3, 4, 5, 6}}
	c := MkCache(16)
	s, _ := skb.Alloc(32)
	defer s.Release()
	if err := c.QueueInsert(dev, 0x0a000002, s); err == 0 {
		t.Fatal("expected EINVAL queuing to a nonexistent entry")
	}
}

func TestHandleRxReplyInstallsMappingAndFlushesQueue(t *testing.T) {
	dev := &fakeDevice{ip: 0x0a000001, mac: Mac_t{1, 1, 1, 1, 1, 1}}
	c := MkCache(16)
	peerIP := Ip_t(0x0a000002)
	peerMac := Mac_t{2, 2, 2, 2, 2, 2}

	if err := c.SendRequest(dev, peerIP); err != 0 {
		t.Fatal(err)
	}
	payload, _ := skb.Alloc(64)
	payload.Put(10)
	if err := c.QueueInsert(dev, peerIP, payload); err != 0 {
		t.Fatal(err)
	}
	payload.Release()

	reply, rerr := buildPacket(opReply, peerMac, peerIP, dev.LocalMAC(), dev.LocalIP())
	if rerr != 0 {
		t.Fatal(rerr)
	}
	if err := c.HandleRx(dev, reply); err != 0 {
		t.Fatal(err)
	}
	reply.Release()

	state, mac := c.GetState(dev, peerIP)
	if state != Reachable || mac != peerMac {
		t.Fatalf("state,mac = %v,%v want Reachable,%v", state, mac, peerMac)
	}
	if len(dev.sent) != 2 {
		t.Fatalf("sent %d frames want 2 (request + flushed queue entry)", len(dev.sent))
	}
	if dev.sent[1].ethertype != EthertypeIPv4 || dev.sent[1].dst != peerMac {
		t.Fatal("flushed packet must go out to the resolved mac as an IPv4 frame")
	}

	e, ok := c.find(dev, peerIP)
	if !ok || len(e.pending) != 0 {
		t.Fatal("pending queue must be empty after a flush")
	}
}

func TestHandleRxRequestTriggersReply(t *testing.T) {
	dev := &fakeDevice{ip: 0x0a000001, mac: Mac_t{1, 1, 1, 1, 1, 1}}
	c := MkCache(16)
	peerIP := Ip_t(0x0a000002)
	peerMac := Mac_t{3, 3, 3, 3, 3, 3}

	req, rerr := buildPacket(opRequest, peerMac, peerIP, Mac_t{}, dev.LocalIP())
	if rerr != 0 {
		t.Fatal(rerr)
	}
	if err := c.HandleRx(dev, req); err != 0 {
		t.Fatal(err)
	}
	req.Release()

	if len(dev.sent) != 1 || dev.sent[0].dst != peerMac || dev.sent[0].ethertype != EthertypeARP {
		t.Fatal("a request for our address must draw exactly one ARP reply to the requester")
	}
	state, mac := c.GetState(dev, peerIP)
	if state != Reachable || mac != peerMac {
		t.Fatal("handling a request must also learn the requester's mapping")
	}
}

func TestHandleRxRequestForOtherAddressIsIgnored(t *testing.T) {
	dev := &fakeDevice{ip: 0x0a000001, mac: Mac_t{1, 1, 1, 1, 1, 1}}
	c := MkCache(16)
	req, _ := buildPacket(opRequest, Mac_t{4, 4, 4, 4, 4, 4}, 0x0a0000ff, Mac_t{}, 0x0a000099)
	defer req.Release()
	if err := c.HandleRx(dev, req); err == 0 {
		t.Fatal("expected EINVAL for a request not addressed to our IP")
	}
	if len(dev.sent) != 0 {
		t.Fatal("must not reply to a request for someone else's address")
	}
}

func TestResolveTimeoutBecomesUnreachableAndDropsQueue(t *testing.T) {
	dev := &fakeDevice{ip: 0x0a000001, mac: Mac_t{1, 1, 1, 1, 1, 1}}
	c := MkCache(16)
	peerIP := Ip_t(0x0a000002)

	c.SendRequest(dev, peerIP)
	s, _ := skb.Alloc(32)
	c.QueueInsert(dev, peerIP, s)
	s.Release()

	timer.Tick(timer.Now() + resolveTimeoutMs)

	state, _ := c.GetState(dev, peerIP)
	if state != Unreachable {
		t.Fatalf("state = %v want Unreachable", state)
	}
	e, ok := c.find(dev, peerIP)
	if !ok || len(e.pending) != 0 {
		t.Fatal("resolve timeout must drop the pending queue")
	}
}

func TestCacheTimeoutRemovesEntry(t *testing.T) {
	dev := &fakeDevice{ip: 0x0a000001, mac: Mac_t{1, 1, 1, 1, 1, 1}}
	c := MkCache(16)
	peerIP := Ip_t(0x0a000002)
	peerMac := Mac_t{2, 2, 2, 2, 2, 2}

	c.insert(dev, peerIP, &peerMac) // directly reachable, arms the 60s cache timer
	timer.Tick(timer.Now() + cacheTimeoutMs)

	if _, ok := c.find(dev, peerIP); ok {
		t.Fatal("cache timeout must remove the entry")
	}
}
