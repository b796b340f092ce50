// rx.go is the receive half of the state machine: inbox reassembly and
// the per-segment dispatch, grounded directly on
// original_source/kernel/tcp.c's tcp_inbox_insert/_remove/_drain and
// tcp_handle_rx_connected/_listening/tcp_handle_rx.
package tcp

import "arp"
import "defs"
import "skb"
import "socket"

// stateIs/setState/setResetClosed are small locked accessors shared by
// the rx dispatch functions below, which otherwise never hold t.mu
// across a call into send/handleRxAck/inboxInsert (each of those locks
// t.mu itself).
func stateIs(t *sock_t, mask state_t) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inStateLocked(mask)
}

func setState(t *sock_t, s state_t) {
	t.mu.Lock()
	t.setStateLocked(s)
	t.mu.Unlock()
}

func setResetClosed(t *sock_t) {
	t.mu.Lock()
	t.reset = true
	t.setStateLocked(stateClosed)
	t.mu.Unlock()
}

// isAckValid is tcp_is_ack_valid: an ACK is valid if it does not
// acknowledge a sequence number we have not sent yet.
func isAckValid(t *sock_t, ackNum uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return seqCmp(ackNum, t.seqNum) <= 0
}

// isAckCurrent is tcp_is_ack_current: an ACK covers at least everything
// outstanding before the connection's current unacked floor.
func isAckCurrent(t *sock_t, ackNum uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return seqCmp(ackNum, t.unackNum) >= 0
}

// inRwnd is tcp_in_rwnd: reports whether seq (or, for a non-empty
// segment, its last byte) falls inside the advertised receive window. A
// zero window only accepts an empty probe at exactly ackNum.
func inRwnd(t *sock_t, seq uint32, segLen int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rwnd := uint32(t.rwnd())
	ackNum := t.ackNum
	if rwnd == 0 {
		return segLen == 0 && seqCmp(seq, ackNum) == 0
	}
	if seqCmp(seq, ackNum) >= 0 && seqCmp(seq, ackNum+rwnd) < 0 {
		return true
	}
	if segLen == 0 {
		return false
	}
	last := seq + uint32(segLen) - 1
	return seqCmp(last, ackNum) >= 0 && seqCmp(last, ackNum+rwnd) < 0
}

// inboxRemoveLocked drops the inbox entry at idx, restoring the window
// space it held. Caller holds t.mu.
func inboxRemoveLocked(t *sock_t, idx int) {
	t.rwndSize += t.inbox[idx].segLen()
	t.inbox = append(t.inbox[:idx], t.inbox[idx+1:]...)
}

// inboxDrain is tcp_inbox_drain: frees every already-fully-received
// inbox entry, for a socket whose application end will never read it
// (shutdown/close on the read side).
func inboxDrain(t *sock_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.inbox) > 0 {
		seg := t.inbox[0]
		if seqCmp(seg.seq, t.ackNum) > 0 {
			break
		}
		inboxRemoveLocked(t, 0)
	}
}

// inboxInsert is tcp_inbox_insert: inserts a freshly arrived segment in
// sorted position (scanning from the tail, since segments "usually
// arrive in order" per the original's own comment; retransmissions and
// overlaps are kept, never discarded, so the reassembly walk below can
// still make progress past a hole), then walks forward from the inbox
// head advancing ackNum past every contiguous run of segments,
// discarding anything arriving after a FIN while the connection is
// already shutting down, and transitioning state the first time a FIN
// is folded into ackNum.
func inboxInsert(t *sock_t, seq uint32, syn, fin bool, body []byte) {
	seg := &inboxSeg_t{seq: seq, syn: syn, fin: fin, body: body}

	t.mu.Lock()

	i := len(t.inbox)
	for i > 0 && seqCmp(t.inbox[i-1].seq, seq) > 0 {
		i--
	}
	t.inbox = append(t.inbox, nil)
	copy(t.inbox[i+1:], t.inbox[i:])
	t.inbox[i] = seg
	t.rwndSize -= seg.segLen()

	if t.inStateLocked(stateTimeWait | stateFinWait2) {
		startFinTimeout(t)
	}

	ackNum := t.ackNum
	idx := 0
	for idx < len(t.inbox) {
		cur := t.inbox[idx]
		if seqCmp(cur.seq, ackNum) > 0 {
			break
		}
		end := cur.seq + uint32(cur.segLen())
		if seqCmp(end, ackNum) <= 0 {
			idx++
			continue
		}
		if t.inStateLocked(stateClosing | stateTimeWait | stateCloseWait | stateLastAck | stateClosed) {
			inboxRemoveLocked(t, idx)
			continue
		}
		ackNum = end
		if fin {
			switch {
			case t.inStateLocked(stateSynRecv | stateEstab):
				t.setStateLocked(stateCloseWait)
			case t.inStateLocked(stateFinWait1):
				t.setStateLocked(stateClosing)
			case t.inStateLocked(stateFinWait2):
				t.setStateLocked(stateTimeWait)
				startFinTimeout(t)
			}
		}
		idx++
	}
	t.ackNum = ackNum
	t.broadcastRxLocked()
	t.mu.Unlock()
}

// handleSynSent is the SYN_SENT-specific branch of
// tcp_handle_rx_connected: validates any ACK against our own unconfirmed
// SYN, handles an incoming RST, and on an incoming SYN learns the peer's
// initial sequence number and moves to SYN_RECEIVED (or straight to
// ESTABLISHED if the SYN carried a valid ACK of our own SYN).
func handleSynSent(s *socket.Sock_t, t *sock_t, iface *socket.Iface_t, remoteIP arp.Ip_t, f tcpHdrFields, body []byte) {
	if f.ackFlag && !isAckValid(t, f.ack) {
		setResetClosed(t)
		if !f.rst {
			replyRst(iface, remoteIP, f, len(body))
		}
		release(s)
		return
	}
	if f.rst {
		if f.ackFlag && isAckCurrent(t, f.ack) {
			setResetClosed(t)
			release(s)
		}
		return
	}
	if !f.syn {
		return
	}

	t.mu.Lock()
	t.ackNum = f.seq + 1
	t.readNum = t.ackNum
	t.mu.Unlock()

	if f.ackFlag {
		handleRxAck(t, f.ack)
	}
	inboxInsert(t, f.seq, f.syn, f.fin, body)

	if stateIs(t, stateSynSent) {
		setState(t, stateSynRecv)
		t.mu.Lock()
		var syn *outboxPkt_t
		if len(t.outbox) > 0 {
			syn = t.outbox[0]
		}
		t.mu.Unlock()
		if syn != nil {
			outboxTransmit(t, syn)
		}
	} else {
		sendAck(t)
	}
}

// handleRxConnected is tcp_handle_rx_connected: the per-segment state
// machine for a socket that is past LISTEN (connecting, established, or
// shutting down).
func handleRxConnected(s *socket.Sock_t, t *sock_t, f tcpHdrFields, body []byte) {
	s.Lock()
	iface := s.Iface
	remoteIP := s.Remote.IP
	s.Unlock()

	if stateIs(t, stateClosed) {
		if !f.rst {
			replyRst(iface, remoteIP, f, len(body))
		}
		return
	}

	if stateIs(t, stateSynSent) {
		handleSynSent(s, t, iface, remoteIP, f, body)
		return
	}

	sl := segLen(len(body), f.syn, f.fin)
	inWindow := inRwnd(t, f.seq, sl)
	if !inWindow {
		if !f.rst {
			sendAck(t)
		}
	} else if f.rst {
		setResetClosed(t)
		release(s)
		return
	} else if f.syn {
		setResetClosed(t)
		replyRst(iface, remoteIP, f, len(body))
		release(s)
		return
	}

	if !f.ackFlag {
		return
	}

	if stateIs(t, stateSynRecv) {
		if !isAckValid(t, f.ack) || !isAckCurrent(t, f.ack) {
			replyRst(iface, remoteIP, f, len(body))
			return
		}
	} else if !isAckValid(t, f.ack) {
		sendAck(t)
		return
	}

	handleRxAck(t, f.ack)
	if stateIs(t, stateClosed) {
		release(s)
		return
	}

	if inWindow && stateIs(t, stateEstab|stateFinWait1|stateFinWait2) {
		inboxInsert(t, f.seq, f.syn, f.fin, body)
	}

	if sl > 0 {
		sendAck(t)
	}
}

// handleRxListening is tcp_handle_rx_listening: a bare SYN to a
// listening socket spawns a new connected socket directly (bypassing
// the usual bind/connect conflict checks, since this connection's
// 4-tuple is already known to be unique -- it just arrived), sends the
// SYN-ACK, and appends it to the backlog for a later Accept.
func handleRxListening(iface *socket.Iface_t, listener *socket.Sock_t, lt *sock_t, srcIP, dstIP arp.Ip_t, f tcpHdrFields, body []byte) defs.Err_t {
	if f.rst {
		return 0
	}
	if f.ackFlag {
		return replyRst(iface, srcIP, f, len(body))
	}
	if !f.syn {
		return 0
	}

	connSock, err := socket.New(socket.TCP)
	if err != 0 {
		return err
	}
	connSock.Lock()
	connSock.Bound = true
	connSock.Iface = iface
	connSock.Local = socket.Addr_t{IP: dstIP, Port: f.dstPort}
	connSock.Connected = true
	connSock.Remote = socket.Addr_t{IP: srcIP, Port: f.srcPort}
	connSock.Unlock()

	ct := priv(connSock)
	ct.mu.Lock()
	ct.ackNum = f.seq + 1
	ct.readNum = ct.ackNum
	ct.mu.Unlock()

	acquire(connSock)
	setState(ct, stateSynRecv)
	inboxInsert(ct, f.seq, f.syn, f.fin, body)

	if e := sendSyn(ct); e != 0 {
		setState(ct, stateClosed)
		release(connSock)
		return e
	}

	lt.mu.Lock()
	lt.backlog = append(lt.backlog, connSock)
	lt.broadcastAcceptLocked()
	lt.mu.Unlock()
	return 0
}

// handleRxIP is tcp_handle_rx: looks up a connected socket by the full
// 4-tuple first, falls back to a listening socket bound to the
// destination address, and answers with a RST (unless the incoming
// segment was itself a RST) if neither exists.
func handleRxIP(iface *socket.Iface_t, srcIP, dstIP arp.Ip_t, pkt *skb.Skb_t) defs.Err_t {
	f, ok := parseHeader(pkt)
	if !ok {
		return -defs.EINVAL
	}
	pkt.SetTransport()
	pkt.Pull(tcpHdrLen)
	body := append([]byte(nil), pkt.Bytes()...)

	if s := socket.ByAddr(socket.TCP, dstIP, f.dstPort, srcIP, f.srcPort); s != nil {
		handleRxConnected(s, priv(s), f, body)
		return 0
	}

	if s := socket.ByAddr(socket.TCP, dstIP, f.dstPort, socket.AnyIP, 0); s != nil {
		s.Lock()
		listening := s.Listening
		s.Unlock()
		if listening {
			return handleRxListening(iface, s, priv(s), srcIP, dstIP, f, body)
		}
	}

	if f.rst {
		return 0
	}
	return replyRst(iface, srcIP, f, len(body))
}
