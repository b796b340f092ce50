package tcp

import "testing"

import "arp"
import "defs"
import "fdops"
import "skb"
import "socket"

// loopDevice is a fake arp.Device_i whose Transmit hands the frame
// straight back to socket.HandleRxIP, simulating a single-host wire the
// same way socket/udp_test.go's loopDevice does -- every handshake
// round trip below runs synchronously, in the same call stack, with no
// goroutines involved.
type loopDevice struct {
	ip    arp.Ip_t
	mac   arp.Mac_t
	iface *socket.Iface_t
}

func (d *loopDevice) LocalIP() arp.Ip_t   { return d.ip }
func (d *loopDevice) LocalMAC() arp.Mac_t { return d.mac }

func (d *loopDevice) Transmit(dst arp.Mac_t, ethertype uint16, pkt *skb.Skb_t) defs.Err_t {
	return socket.HandleRxIP(d.iface, pkt)
}

func newLoop() *loopDevice {
	dev := &loopDevice{ip: arp.Ip_t(0x0a000001), mac: arp.Mac_t{1, 2, 3, 4, 5, 6}}
	dev.iface = socket.RegisterInterface(dev.ip, dev)
	return dev
}

func TestHandshakeDataTransferAndShutdown(t *testing.T) {
	dev := newLoop()
	ops := &tcpOps_t{}

	server, _ := socket.New(socket.TCP)
	defer server.Release()
	if err := ops.Bind(server, socket.Addr_t{IP: dev.ip, Port: 7000}); err != 0 {
		t.Fatalf("bind: %v", err)
	}
	if err := ops.Listen(server, 4); err != 0 {
		t.Fatalf("listen: %v", err)
	}

	client, _ := socket.New(socket.TCP)
	defer client.Release()
	if err := ops.Connect(client, socket.Addr_t{IP: dev.ip, Port: 7000}); err != 0 {
		t.Fatalf("connect: %v", err)
	}
	if !stateIs(priv(client), stateEstab) {
		t.Fatalf("client not established after handshake")
	}

	conn, addr, err := ops.Accept(server)
	if err != 0 {
		t.Fatalf("accept: %v", err)
	}
	defer conn.Release()
	if addr.Port == 0 {
		t.Fatalf("accept returned zero remote port")
	}
	if !stateIs(priv(conn), stateEstab) {
		t.Fatalf("accepted connection not established")
	}

	msg := []byte("hello kernel")
	src := fdops.MkKernelBuf(append([]byte(nil), msg...))
	n, err := ops.Sendto(client, src, nil)
	if err != 0 {
		t.Fatalf("sendto: %v", err)
	}
	if n != len(msg) {
		t.Fatalf("sent %d bytes, want %d", n, len(msg))
	}

	dst := make([]byte, 64)
	kb := fdops.MkKernelBuf(dst)
	n, err = ops.Recvfrom(conn, kb, nil)
	if err != 0 {
		t.Fatalf("recvfrom: %v", err)
	}
	if string(dst[:n]) != string(msg) {
		t.Fatalf("recvfrom got %q, want %q", dst[:n], msg)
	}

	if len(priv(client).outbox) != 0 {
		t.Fatalf("client outbox not drained after data acked: %d entries", len(priv(client).outbox))
	}

	// Server closes its write side first: FIN, FIN_WAIT_1 -> FIN_WAIT_2
	// once the client's ACK arrives, and the client itself folds into
	// CLOSE_WAIT.
	if e := ops.Shutdown(conn); e != 0 {
		t.Fatalf("server shutdown: %v", e)
	}
	if !stateIs(priv(conn), stateFinWait2) {
		t.Fatalf("server not in FIN_WAIT_2, state=%v", priv(conn).state)
	}
	if !stateIs(priv(client), stateCloseWait) {
		t.Fatalf("client not in CLOSE_WAIT, state=%v", priv(client).state)
	}

	// Client closes its write side: FIN, LAST_ACK -> CLOSED once the
	// server's ACK arrives, and the server folds into TIME_WAIT.
	if e := ops.Shutdown(client); e != 0 {
		t.Fatalf("client shutdown: %v", e)
	}
	if !stateIs(priv(client), stateClosed) {
		t.Fatalf("client not CLOSED, state=%v", priv(client).state)
	}
	if !stateIs(priv(conn), stateTimeWait) {
		t.Fatalf("server not in TIME_WAIT, state=%v", priv(conn).state)
	}
}

func TestSeqCmpWraparound(t *testing.T) {
	if seqCmp(5, 3) <= 0 {
		t.Fatalf("5 should be after 3")
	}
	if seqCmp(3, 5) >= 0 {
		t.Fatalf("3 should be before 5")
	}
	// Wraparound: 0 comes after 0xffffffff.
	if seqCmp(0, 0xffffffff) <= 0 {
		t.Fatalf("0 should be after 0xffffffff (wraparound)")
	}
}

func TestSegLen(t *testing.T) {
	cases := []struct {
		bodyLen        int
		syn, fin       bool
		want           int
	}{
		{0, false, false, 0},
		{0, true, false, 1},
		{0, false, true, 1},
		{10, true, true, 12},
	}
	for _, c := range cases {
		if got := segLen(c.bodyLen, c.syn, c.fin); got != c.want {
			t.Fatalf("segLen(%d,%v,%v) = %d, want %d", c.bodyLen, c.syn, c.fin, got, c.want)
		}
	}
}

func TestRetransmitTimeoutClampsAndSeeds(t *testing.T) {
	tt := newSock(nil)
	if rto := retransmitTimeout(tt); rto != defaultRTOMs {
		t.Fatalf("unsampled RTO = %d, want default %d", rto, defaultRTOMs)
	}
	updateRTT(tt, 500)
	if tt.estimatedRTTMs != 500 {
		t.Fatalf("first sample should seed the estimate directly, got %d", tt.estimatedRTTMs)
	}
	updateRTT(tt, 200_000)
	if rto := retransmitTimeout(tt); rto != maxRTOMs {
		t.Fatalf("RTO should clamp to max after a huge sample, got %d", rto)
	}
}
