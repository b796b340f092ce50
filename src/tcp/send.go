package tcp

import "arp"
import "defs"
import "skb"
import "socket"
import "timer"

// ipHdrLen is the fixed 20-byte IPv4 header size this kernel always
// uses (no options), matching socket/ip.go's own ihl-must-be-5 rule.
const ipHdrLen = 20

// allocSkb is tcp_alloc_skb: reserves tcp+ip header room ahead of a
// bodyLen-byte payload. No Ethernet head-room is reserved, matching
// udp.go's own hdrRoom convention -- this kernel's arp.Device_i.Transmit
// takes the skb as a bare network-layer frame and handles framing
// itself, unlike the original's shared skb-with-eth-header design.
func allocSkb(bodyLen int) (*skb.Skb_t, defs.Err_t) {
	hdrRoom := tcpHdrLen + ipHdrLen
	pkt, err := skb.Alloc(hdrRoom + bodyLen)
	if err != 0 {
		return nil, err
	}
	pkt.Reserve(hdrRoom)
	return pkt, 0
}

// sendRaw is tcp_send_raw: recomputes the checksum and hands the
// segment to the IP layer. No auto-ACK/auto-rwnd here; callers that want
// that use send.
func sendRaw(iface *socket.Iface_t, dstIP arp.Ip_t, pkt *skb.Skb_t) defs.Err_t {
	hdr := pkt.TransportBytes(tcpHdrLen)
	zeroChecksum(hdr)
	cksum := socket.PseudoChecksum(iface.IP, dstIP, socket.ProtoTCP, pkt.Bytes())
	putChecksum(hdr, cksum)
	socket.PackIPHeader(pkt, socket.ProtoTCP, iface.IP, dstIP)
	return socket.SendIP(iface, dstIP, pkt)
}

func zeroChecksum(hdr []byte)              { hdr[16], hdr[17] = 0, 0 }
func putChecksum(hdr []byte, cksum uint16) { hdr[16], hdr[17] = byte(cksum>>8), byte(cksum) }

// send is tcp_send: auto-ACKs with the current ack_num (unless still in
// SYN_SENT, before we've learned the peer's sequence number), stamps the
// advertised window, and sends.
func send(t *sock_t, pkt *skb.Skb_t) defs.Err_t {
	t.mu.Lock()
	ssock := t.sock
	hdr := pkt.TransportBytes(tcpHdrLen)
	if !t.inStateLocked(stateSynSent) {
		hdr[13] |= flagACK
		putUint32(hdr[8:12], t.ackNum)
	}
	putUint16(hdr[14:16], t.rwnd())
	t.mu.Unlock()

	ssock.Lock()
	iface := ssock.Iface
	remote := ssock.Remote
	ssock.Unlock()
	if iface == nil {
		return -defs.EINVAL
	}
	return sendRaw(iface, remote.IP, pkt)
}

func putUint32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
}
func putUint16(b []byte, v uint16) { b[0], b[1] = byte(v>>8), byte(v) }

// sendSyn is tcp_send_syn: builds and immediately transmits a bare SYN,
// consuming one local sequence number.
func sendSyn(t *sock_t) defs.Err_t {
	return sendControl(t, true, false)
}

// sendFin is tcp_send_fin.
func sendFin(t *sock_t) defs.Err_t {
	return sendControl(t, false, true)
}

func sendControl(t *sock_t, syn, fin bool) defs.Err_t {
	pkt, err := allocSkb(0)
	if err != 0 {
		return err
	}
	t.mu.Lock()
	sport := t.sock.Local.Port
	dport := t.sock.Remote.Port
	seq := t.seqNum
	t.seqNum++
	t.mu.Unlock()

	buildHeader(pkt, tcpHdrFields{srcPort: sport, dstPort: dport, seq: seq, syn: syn, fin: fin})

	pktEntry := outboxInsert(t, pkt, seq, syn, fin, 0)
	if pktEntry == nil {
		pkt.Release()
		return -defs.ENOSPC
	}
	outboxTransmit(t, pktEntry)
	pkt.Release()
	return 0
}

// sendAck is tcp_send_ack: a bare, unqueued ACK of the current ack_num.
func sendAck(t *sock_t) defs.Err_t {
	pkt, err := allocSkb(0)
	if err != 0 {
		return err
	}
	t.mu.Lock()
	sport := t.sock.Local.Port
	dport := t.sock.Remote.Port
	seq := t.seqNum
	t.mu.Unlock()

	buildHeader(pkt, tcpHdrFields{srcPort: sport, dstPort: dport, seq: seq})
	err = send(t, pkt)
	pkt.Release()
	return err
}

// replyRst is tcp_reply_rst: answers an unexpected/invalid incoming
// segment with a RST, inferring addressing from the original packet
// since there may be no tcp socket at all (e.g. a RST to a closed port).
func replyRst(iface *socket.Iface_t, dstIP arp.Ip_t, orig tcpHdrFields, origBodyLen int) defs.Err_t {
	pkt, err := allocSkb(0)
	if err != 0 {
		return err
	}
	f := tcpHdrFields{srcPort: orig.dstPort, dstPort: orig.srcPort, rst: true}
	if orig.ackFlag {
		f.seq = orig.ack
	} else {
		f.ackFlag = true
		f.ack = orig.seq + uint32(segLen(origBodyLen, orig.syn, orig.fin))
	}
	buildHeader(pkt, f)
	e := sendRaw(iface, dstIP, pkt)
	pkt.Release()
	if e != 0 {
		return e
	}
	return err
}

// closeWrite is tcp_close_write: the half of close()/shutdown() that
// closes the writing end of the connection, shared by both syscalls.
func closeWrite(t *sock_t) {
	t.mu.Lock()
	switch {
	case t.inStateLocked(stateListen | stateSynSent):
		t.setStateLocked(stateClosed)
		t.mu.Unlock()
		release(t.sock)
		return
	case t.inStateLocked(stateSynRecv | stateEstab):
		t.setStateLocked(stateFinWait1)
		t.mu.Unlock()
		if sendFin(t) != 0 {
			t.mu.Lock()
			t.reset = true
			t.setStateLocked(stateClosed)
			t.mu.Unlock()
			release(t.sock)
		}
		return
	case t.inStateLocked(stateCloseWait):
		t.setStateLocked(stateLastAck)
		t.mu.Unlock()
		if sendFin(t) != 0 {
			t.mu.Lock()
			t.setStateLocked(stateClosed)
			t.mu.Unlock()
			release(t.sock)
		}
		return
	}
	t.mu.Unlock()
}

// startFinTimeout (re)arms the TIME_WAIT/FIN_WAIT_2 release timer, per
// tcp_start_fin_timeout.
func startFinTimeout(t *sock_t) {
	timer.Setup(&t.finTimer, finTimeoutMs, func() { onFinTimeout(t) })
}

func onFinTimeout(t *sock_t) {
	t.mu.Lock()
	closed := t.inStateLocked(stateClosed)
	if !closed {
		t.setStateLocked(stateClosed)
	}
	t.mu.Unlock()
	if !closed {
		release(t.sock)
	}
}
