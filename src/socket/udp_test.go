package socket

import "testing"

import "arp"
import "defs"
import "fdops"
import "skb"

// loopDevice is a fake arp.Device_i whose Transmit hands the frame straight
// back to HandleRxIP, simulating a single-host wire for the UDP round trip
// below without a real ethernet/device package (none exists in this tree).
// GetState's loopback shortcut (dst == dev.LocalIP()) means SendIP never
// needs an ARP resolution for this self-addressed traffic.
type loopDevice struct {
	ip    arp.Ip_t
	mac   arp.Mac_t
	iface *Iface_t
}

func (d *loopDevice) LocalIP() arp.Ip_t   { return d.ip }
func (d *loopDevice) LocalMAC() arp.Mac_t { return d.mac }

func (d *loopDevice) Transmit(dst arp.Mac_t, ethertype uint16, pkt *skb.Skb_t) defs.Err_t {
	return HandleRxIP(d.iface, pkt)
}

func TestUdpSendtoRecvfromRoundTrip(t *testing.T) {
	dev := &loopDevice{ip: arp.Ip_t(0x0a000001), mac: arp.Mac_t{1, 2, 3, 4, 5, 6}}
	dev.iface = RegisterInterface(dev.ip, dev)

	sender, _ := New(UDP)
	defer sender.Release()
	sender.BindToFile()
	if err := BindAddr(sender, dev.ip, 6000); err != 0 {
		t.Fatal(err)
	}

	receiver, _ := New(UDP)
	defer receiver.Release()
	receiver.BindToFile()
	if err := BindAddr(receiver, dev.ip, 6001); err != 0 {
		t.Fatal(err)
	}

	msg := []byte("hello kernel")
	src := fdops.MkKernelBuf(append([]byte(nil), msg...))
	addr := Addr_t{IP: dev.ip, Port: 6001}
	n, err := sender.ops.Sendto(sender, src, &addr)
	if err != 0 {
		t.Fatal(err)
	}
	if n != len(msg) {
		t.Fatalf("sent %d bytes, want %d", n, len(msg))
	}

	dst := make([]byte, 64)
	kb := fdops.MkKernelBuf(dst)
	var from Addr_t
	n, err = receiver.ops.Recvfrom(receiver, kb, &from)
	if err != 0 {
		t.Fatal(err)
	}
	if string(dst[:n]) != string(msg) {
		t.Fatalf("received %q want %q", dst[:n], msg)
	}
	if from.IP != dev.ip || from.Port != 6000 {
		t.Fatalf("sender address = %+v, want ip=%v port=6000", from, dev.ip)
	}
}

func TestUdpRecvfromNonblockingEAGAIN(t *testing.T) {
	dev := &loopDevice{ip: arp.Ip_t(0x0a000002), mac: arp.Mac_t{1, 1, 1, 1, 1, 1}}
	dev.iface = RegisterInterface(dev.ip, dev)

	s, _ := New(UDP)
	defer s.Release()
	f := s.BindToFile()
	f.Nonblock = true
	if err := BindAddr(s, dev.ip, 6100); err != 0 {
		t.Fatal(err)
	}

	dst := make([]byte, 16)
	kb := fdops.MkKernelBuf(dst)
	if _, err := s.ops.Recvfrom(s, kb, nil); err == 0 {
		t.Fatal("expected EAGAIN reading an empty non-blocking socket")
	}
}

func TestUdpConnectFiltersInboxOnReconnect(t *testing.T) {
	dev := &loopDevice{ip: arp.Ip_t(0x0a000003), mac: arp.Mac_t{2, 2, 2, 2, 2, 2}}
	dev.iface = RegisterInterface(dev.ip, dev)

	peerA, _ := New(UDP)
	defer peerA.Release()
	peerA.BindToFile()
	if err := BindAddr(peerA, dev.ip, 6200); err != 0 {
		t.Fatal(err)
	}

	peerB, _ := New(UDP)
	defer peerB.Release()
	peerB.BindToFile()
	if err := BindAddr(peerB, dev.ip, 6201); err != 0 {
		t.Fatal(err)
	}

	receiver, _ := New(UDP)
	defer receiver.Release()
	receiver.BindToFile()
	if err := BindAddr(receiver, dev.ip, 6202); err != 0 {
		t.Fatal(err)
	}

	send := func(from *Sock_t, toPort uint16, msg string) {
		src := fdops.MkKernelBuf([]byte(msg))
		addr := Addr_t{IP: dev.ip, Port: toPort}
		if _, err := from.ops.Sendto(from, src, &addr); err != 0 {
			t.Fatal(err)
		}
	}

	send(peerA, 6202, "from-a")
	send(peerB, 6202, "from-b")

	// Connecting to peerA must drain peerB's already-queued datagram.
	if err := receiver.ops.Connect(receiver, Addr_t{IP: dev.ip, Port: 6200}); err != 0 {
		t.Fatal(err)
	}

	dst := make([]byte, 32)
	kb := fdops.MkKernelBuf(dst)
	f := receiver.File
	f.Nonblock = true
	n, err := receiver.ops.Recvfrom(receiver, kb, nil)
	if err != 0 {
		t.Fatal(err)
	}
	if string(dst[:n]) != "from-a" {
		t.Fatalf("got %q, want only the peerA datagram to survive reconnect", dst[:n])
	}
	if _, err := receiver.ops.Recvfrom(receiver, kb, nil); err == 0 {
		t.Fatal("expected peerB's pre-connect datagram to have been dropped")
	}
}
