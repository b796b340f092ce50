package tcp

import "sync"

import "skb"
import "socket"
import "timer"

// outboxPkt_t is tcp_pkt_t: an outstanding outbox entry plus its
// retransmission bookkeeping.
type outboxPkt_t struct {
	seq     uint32
	syn, fin bool
	bodyLen int
	skb     *skb.Skb_t // full built segment (header+body), retained

	retransmitTimer  timer.Timer_t
	numTransmissions int
	transmitTimeMs   int64
}

// inboxSeg_t is one entry of the original's skb-based inbox list,
// reduced to the fields tcp_recvfrom and tcp_inbox_drain actually read:
// sequence number, SYN/FIN flags, and the segment's own body bytes
// (copied out at insertion time so the backing skb can be released
// immediately, rather than held pinned in the inbox list).
type inboxSeg_t struct {
	seq      uint32
	syn, fin bool
	body     []byte
}

func (s *inboxSeg_t) segLen() int { return segLen(len(s.body), s.syn, s.fin) }

// sock_t is tcp_sock_t: the per-connection TCP state, reachable via a
// connected or listening socket.Sock_t's Priv field.
type sock_t struct {
	mu sync.Mutex

	sock *socket.Sock_t

	state state_t

	// backlog holds, for a listening socket, the connections that have
	// completed SYN_RECEIVED and are waiting for accept(); unused
	// otherwise. acceptCh is broadcast (closed and replaced) whenever an
	// entry is appended, waking a blocked Accept.
	backlog  []*socket.Sock_t
	acceptCh chan struct{}

	inbox  []*inboxSeg_t  // sorted by seq, may have holes/overlaps
	outbox []*outboxPkt_t // sorted by seq, never has holes

	// rxCh is broadcast whenever the inbox advances or the connection's
	// state changes in a way that might unblock a pending Recvfrom.
	rxCh chan struct{}

	finTimer timer.Timer_t

	rwndSize int // may go negative; read via rwnd()

	readNum   uint32 // remote seq the application has consumed up to
	ackNum    uint32 // remote seq of next expected in-order segment
	seqNum    uint32 // local seq of next segment to add to the outbox
	unackNum  uint32 // earliest local seq not yet acknowledged

	numDupAcks int
	reset      bool

	estimatedRTTMs int64 // -1 until the first sample
	varianceRTTMs  int64
}

func newSock(s *socket.Sock_t) *sock_t {
	seq := randSeq32()
	return &sock_t{
		sock:           s,
		state:          stateClosed,
		acceptCh:       make(chan struct{}),
		rxCh:           make(chan struct{}),
		rwndSize:       initialRwndSize,
		seqNum:         seq,
		unackNum:       seq,
		estimatedRTTMs: -1,
		varianceRTTMs:  -1,
	}
}

func priv(s *socket.Sock_t) *sock_t { return s.Priv.(*sock_t) }

// inStateLocked is tcp_in_state: reports whether t's current state is one of
// the OR'd states in mask. Caller holds t.mu.
func (t *sock_t) inStateLocked(mask state_t) bool { return t.state&mask != 0 }

func (t *sock_t) setStateLocked(s state_t) { t.state = s }

// broadcastRxLocked wakes every goroutine blocked on rxCh.
func (t *sock_t) broadcastRxLocked() {
	close(t.rxCh)
	t.rxCh = make(chan struct{})
}

func (t *sock_t) broadcastAcceptLocked() {
	close(t.acceptCh)
	t.acceptCh = make(chan struct{})
}

// rwnd is tcp_rwnd_size: the advertised receive window, clamped to zero.
func (t *sock_t) rwnd() uint16 {
	if t.rwndSize < 0 {
		return 0
	}
	if t.rwndSize > 0xffff {
		return 0xffff
	}
	return uint16(t.rwndSize)
}

// acquire/release are tcp_acquire/tcp_release: thin wrappers over the
// socket object's own refcount, named to keep the state-machine code
// readable in the same terms as tcp.c.
func acquire(s *socket.Sock_t) { s.Retain() }
func release(s *socket.Sock_t) { s.Release() }
