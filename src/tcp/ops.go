// ops.go wires the state machine built in tcp.go/sock.go/send.go/
// retransmit.go/rx.go into socket.Ops_i, registered with package socket
// the same way udp.go registers udpOps_t -- the maintainer-facing half
// of this package, grounded on original_source/kernel/tcp.c's
// tcp_bind/_connect/_listen/_accept/_recvfrom/_sendto/_shutdown/_close.
package tcp

import "defs"
import "fdops"
import "socket"
import "timer"

type tcpOps_t struct{}

func init() {
	socket.RegisterType(socket.TCP, &tcpOps_t{})
	socket.RegisterProtocol(socket.ProtoTCP, handleRxIP)
}

func (o *tcpOps_t) Ctor(s *socket.Sock_t) defs.Err_t {
	s.Priv = newSock(s)
	return 0
}

// Dtor is tcp_dtor: a listening socket forces every never-accepted
// backlog connection into its FIN shutdown and drops the listener's own
// reference to it; any outstanding outbox entries (only ever populated
// on a connected socket) are released and the FIN timer is cancelled.
func (o *tcpOps_t) Dtor(s *socket.Sock_t) {
	t := priv(s)
	t.mu.Lock()
	backlog := t.backlog
	t.backlog = nil
	outbox := t.outbox
	t.outbox = nil
	timer.Cancel(&t.finTimer)
	t.mu.Unlock()

	for _, conn := range backlog {
		closeWrite(priv(conn))
		release(conn)
	}
	for _, pkt := range outbox {
		dropOutboxEntry(pkt)
	}
}

// Close is tcp_close: the inbox is drained first since the application
// end is going away and will never read the rest of it, then the write
// side is shut down the same way Shutdown does.
func (o *tcpOps_t) Close(s *socket.Sock_t) {
	t := priv(s)
	inboxDrain(t)
	closeWrite(t)
}

func (o *tcpOps_t) Bind(s *socket.Sock_t, addr socket.Addr_t) defs.Err_t {
	s.Lock()
	conflict := s.Connected || s.Listening
	s.Unlock()
	if conflict {
		return -defs.EINVAL
	}
	return socket.BindAddr(s, addr.IP, addr.Port)
}

// Connect is tcp_connect: routes and (if needed) auto-binds, then sends
// the opening SYN, rolling the connect back if the send itself fails
// (no interface, skb budget exhausted).
func (o *tcpOps_t) Connect(s *socket.Sock_t, addr socket.Addr_t) defs.Err_t {
	s.Lock()
	conflict := s.Connected || s.Listening
	s.Unlock()
	if conflict {
		return -defs.EINVAL
	}
	t := priv(s)
	if !stateIs(t, stateClosed) {
		return -defs.EINVAL
	}
	if err := socket.ConnectAndBindAddr(s, addr.IP, addr.Port); err != 0 {
		return err
	}
	acquire(s)
	setState(t, stateSynSent)
	if err := sendSyn(t); err != 0 {
		setState(t, stateClosed)
		s.Lock()
		s.Connected = false
		s.Unlock()
		release(s)
		return err
	}
	return 0
}

// Listen is tcp_listen: a no-op if already listening, otherwise requires
// a bound, unconnected socket.
func (o *tcpOps_t) Listen(s *socket.Sock_t, backlog int) defs.Err_t {
	s.Lock()
	bound := s.Bound
	connected := s.Connected
	listening := s.Listening
	s.Unlock()
	if !bound || connected {
		return -defs.EINVAL
	}
	if listening {
		return 0
	}
	acquire(s)
	s.Lock()
	s.Listening = true
	s.Unlock()
	setState(priv(s), stateListen)
	return 0
}

// Accept is tcp_accept: blocks (or returns EAGAIN) until a completed
// connection sits in the backlog, then hands it to the caller -- the
// backlog's own reference becomes the caller's.
func (o *tcpOps_t) Accept(s *socket.Sock_t) (*socket.Sock_t, socket.Addr_t, defs.Err_t) {
	t := priv(s)
	s.Lock()
	listening := s.Listening
	s.Unlock()
	if !listening || !stateIs(t, stateListen) {
		return nil, socket.Addr_t{}, -defs.EINVAL
	}

	for {
		t.mu.Lock()
		if len(t.backlog) > 0 {
			conn := t.backlog[0]
			t.backlog = t.backlog[1:]
			t.mu.Unlock()
			conn.Lock()
			addr := conn.Remote
			conn.Unlock()
			return conn, addr, 0
		}
		ch := t.acceptCh
		t.mu.Unlock()

		if s.IsNonblocking() {
			return nil, socket.Addr_t{}, -defs.EAGAIN
		}
		<-ch
	}
}

func (o *tcpOps_t) Shutdown(s *socket.Sock_t) defs.Err_t {
	s.Lock()
	connected := s.Connected
	s.Unlock()
	if !connected {
		return -defs.ENOTCONN
	}
	closeWrite(priv(s))
	return 0
}

func rwndSnapshot(t *sock_t) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rwndSize
}

// Recvfrom is tcp_recvfrom: blocks past the handshake, then copies
// whatever contiguous inbox bytes are available, sending a window
// update once enough room has opened up to be worth announcing (the
// same maxSegLen threshold tcp_recvfrom checks, to avoid silly-window
// ACK storms).
func (o *tcpOps_t) Recvfrom(s *socket.Sock_t, dst fdops.Uio_i, addr *socket.Addr_t) (int, defs.Err_t) {
	s.Lock()
	connected := s.Connected
	remote := s.Remote
	s.Unlock()
	if !connected {
		return 0, -defs.ENOTCONN
	}
	t := priv(s)

	for {
		t.mu.Lock()
		if t.inStateLocked(stateClosed) && t.reset {
			t.mu.Unlock()
			return 0, -defs.ECONNRESET
		}
		if !t.inStateLocked(stateSynSent | stateSynRecv) {
			t.mu.Unlock()
			break
		}
		ch := t.rxCh
		t.mu.Unlock()
		if s.IsNonblocking() {
			return 0, -defs.EAGAIN
		}
		<-ch
	}

	for {
		before := rwndSnapshot(t)
		n, closing := copyInbox(t, dst)
		if n > 0 {
			after := rwndSnapshot(t)
			if before < maxSegLen && after >= maxSegLen && !closing {
				sendAck(t)
			}
			if addr != nil {
				*addr = remote
			}
			return n, 0
		}
		if closing {
			return 0, 0
		}

		t.mu.Lock()
		ch := t.rxCh
		t.mu.Unlock()
		if s.IsNonblocking() {
			return 0, -defs.EAGAIN
		}
		<-ch
	}
}

// copyInbox copies as much contiguous, already-acknowledged inbox data
// as dst has room for, starting at readNum (which may sit mid-segment,
// or just past a SYN's imaginary byte), removing entries as they're
// fully drained. Reports whether the connection is in a state where no
// more data will ever arrive.
func copyInbox(t *sock_t, dst fdops.Uio_i) (int, bool) {
	t.mu.Lock()
	total := 0
	for len(t.inbox) > 0 {
		seg := t.inbox[0]
		if seqCmp(seg.seq, t.readNum) > 0 {
			break // hole: nothing past here is contiguous yet
		}
		end := seg.seq + uint32(seg.segLen())
		bodyOff := int(t.readNum - seg.seq)
		if seg.syn {
			bodyOff--
		}
		if bodyOff < 0 {
			bodyOff = 0
		}
		if bodyOff >= len(seg.body) {
			// nothing but the virtual SYN/FIN byte(s) left in this entry
			if seqCmp(end, t.readNum) <= 0 {
				t.readNum = end
				inboxRemoveLocked(t, 0)
				continue
			}
			break
		}

		chunk := seg.body[bodyOff:]
		t.mu.Unlock()
		n, err := dst.Uiowrite(chunk)
		t.mu.Lock()
		if err != 0 || n == 0 {
			break
		}
		total += n
		t.readNum += uint32(n)
		if bodyOff+n < len(seg.body) {
			break // dst ran out of room before this entry was exhausted
		}
		if seqCmp(end, t.readNum) <= 0 {
			inboxRemoveLocked(t, 0)
		} else {
			break
		}
	}
	closing := t.inStateLocked(stateCloseWait | stateClosing | stateTimeWait | stateLastAck | stateClosed)
	t.mu.Unlock()
	return total, closing
}

// Sendto is tcp_sendto: splits into maxSegLen-sized segments, queuing
// and immediately transmitting each. Fails outright once the write side
// is closed, and blocks the caller never -- EAGAIN during the handshake,
// matching the original's non-blocking-only send path.
func (o *tcpOps_t) Sendto(s *socket.Sock_t, src fdops.Uio_i, addr *socket.Addr_t) (int, defs.Err_t) {
	s.Lock()
	connected := s.Connected
	s.Unlock()
	if !connected {
		return 0, -defs.ENOTCONN
	}
	t := priv(s)
	if stateIs(t, stateClosed|stateFinWait1|stateFinWait2|stateClosing|stateTimeWait) {
		return 0, -defs.ESHUTDOWN
	}
	if stateIs(t, stateSynSent|stateSynRecv) {
		return 0, -defs.EAGAIN
	}

	total := 0
	var lastErr defs.Err_t = -defs.ENOSPC
	for src.Remain() > 0 {
		n := src.Remain()
		if n > maxSegLen {
			n = maxSegLen
		}
		pkt, err := allocSkb(n)
		if err != 0 {
			lastErr = err
			break
		}
		body := pkt.Put(n)
		written, err := src.Uioread(body)
		if err != 0 {
			pkt.Release()
			lastErr = err
			break
		}
		pkt.Trim(written)

		t.mu.Lock()
		seq := t.seqNum
		t.seqNum += uint32(written)
		t.mu.Unlock()
		s.Lock()
		sport := s.Local.Port
		dport := s.Remote.Port
		s.Unlock()

		buildHeader(pkt, tcpHdrFields{srcPort: sport, dstPort: dport, seq: seq})
		entry := outboxInsert(t, pkt, seq, false, false, written)
		outboxTransmit(t, entry)
		pkt.Release()

		total += written
		if written < n {
			break
		}
	}
	if total == 0 {
		return 0, lastErr
	}
	return total, 0
}
