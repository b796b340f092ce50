// Package tcp implements spec.md 4.9's TCP state machine: the three-way
// handshake, in-order data delivery over a reassembling inbox/outbox,
// Jacobson/Karn retransmission timing, and the graceful four-way
// shutdown, wired into package socket's type registry the same way
// udp.go registers itself (RegisterType/RegisterProtocol).
//
// Grounded directly on original_source/kernel/tcp.c: the bitflag state
// enum, tcp_sock_t/tcp_pkt_t, the cmp() wraparound-safe sequence
// comparison, tcp_send/tcp_send_raw/tcp_send_syn/_fin/_ack, Jacobson's
// tcp_update_rtt and tcp_get_retransmit_timeout, Karn's algorithm in
// tcp_outbox_transmit/tcp_on_retransmit_timeout, tcp_inbox_insert/
// _remove/_drain, tcp_handle_rx_ack's duplicate-ACK fast retransmit, and
// tcp_handle_rx_connected/_listening/tcp_handle_rx's dispatch. The
// original's intrusive list_t inbox/outbox become plain Go slices kept
// sorted by insertion (tcp.c's own comment notes inbox entries "usually
// arrive in order"); the original's blocking syscall handlers, built on
// a cooperative sleep queue, become a condition-style broadcast channel
// per socket, the same substitution terminal.go and socket/udp.go make
// for the scheduler primitives this hosted simulation has no interrupt
// to drive.
package tcp

import "encoding/binary"
import "math/rand"

import "skb"

// tcpHdrLen is sizeof(tcp_hdr_t): 20 bytes, no options (matches ip.go's
// ihl==5-only restriction: this kernel never emits or accepts TCP
// options, per spec.md 1's non-goals).
const tcpHdrLen = 20

// TCP header flag bits, standard wire layout.
const (
	flagFIN = 1 << 0
	flagSYN = 1 << 1
	flagRST = 1 << 2
	flagPSH = 1 << 3
	flagACK = 1 << 4
	flagURG = 1 << 5
)

// Tunables straight from tcp.c, with TIMER_HZ-scaled durations converted
// to this kernel's millisecond tick (timer.Tick's unit).
const (
	maxSegLen           = 1460 // TCP_MAX_LEN
	finTimeoutMs        = 60 * 1000
	maxRetransmissions  = 3
	minRTOMs            = 1000
	maxRTOMs            = 120 * 1000
	defaultRTOMs        = 3000
	initialRwndSize     = 8192 // TCP_RWND_SIZE
)

// state_t is tcp_state_t: a bitflag enum so inStateLocked can test
// membership in a set of states with one mask, per tcp_in_state.
type state_t uint32

const (
	stateListen     state_t = 1 << 0
	stateSynSent    state_t = 1 << 1
	stateSynRecv    state_t = 1 << 2
	stateEstab      state_t = 1 << 3
	stateFinWait1   state_t = 1 << 4
	stateFinWait2   state_t = 1 << 5
	stateClosing    state_t = 1 << 6
	stateTimeWait   state_t = 1 << 7
	stateCloseWait  state_t = 1 << 8
	stateLastAck    state_t = 1 << 9
	stateClosed     state_t = 1 << 10
)

// seqCmp replicates tcp.c's cmp(a, b) = (int)(a - b): wraparound-safe
// sequence number ordering via a signed subtraction.
func seqCmp(a, b uint32) int32 { return int32(a - b) }

// randSeq32 is tcp_rand32: a random initial sequence number.
func randSeq32() uint32 { return rand.Uint32() }

// tcpHdrFields is a decoded TCP segment header.
type tcpHdrFields struct {
	srcPort, dstPort uint16
	seq, ack         uint32
	fin, syn, rst, psh, ackFlag bool
	window           uint16
}

func (f *tcpHdrFields) flags() byte {
	var b byte
	if f.fin {
		b |= flagFIN
	}
	if f.syn {
		b |= flagSYN
	}
	if f.rst {
		b |= flagRST
	}
	if f.psh {
		b |= flagPSH
	}
	if f.ackFlag {
		b |= flagACK
	}
	return b
}

// buildHeader pushes a fresh tcpHdrLen-byte header in front of pkt's
// current payload (the segment body, already Put), zeroing every field
// not named, per tcp_alloc_skb's full-zero initialization. Stamps the
// transport-header mark so later callers (send's auto-ACK patch,
// checksum recompute) can recover the header via pkt.TransportBytes.
func buildHeader(pkt *skb.Skb_t, f tcpHdrFields) {
	hdr := pkt.Push(tcpHdrLen)
	binary.BigEndian.PutUint16(hdr[0:2], f.srcPort)
	binary.BigEndian.PutUint16(hdr[2:4], f.dstPort)
	binary.BigEndian.PutUint32(hdr[4:8], f.seq)
	binary.BigEndian.PutUint32(hdr[8:12], f.ack)
	hdr[12] = 5 << 4 // data_offset = 5 (20 bytes / 4), reserved/ns = 0
	hdr[13] = f.flags()
	binary.BigEndian.PutUint16(hdr[14:16], f.window)
	binary.BigEndian.PutUint16(hdr[16:18], 0) // checksum, filled at send
	binary.BigEndian.PutUint16(hdr[18:20], 0) // urgent pointer, unused
	pkt.SetTransport()
}

// parseHeader decodes pkt's already-pulled-IP transport header without
// consuming it (the caller decides when to Pull, since tcp_handle_rx
// needs the header fields before deciding how to route the packet).
// Rejects anything carrying options (data_offset != 5), matching this
// kernel's no-TCP-options stance.
func parseHeader(pkt *skb.Skb_t) (tcpHdrFields, bool) {
	if !pkt.MayPull(tcpHdrLen) {
		return tcpHdrFields{}, false
	}
	hdr := pkt.Bytes()[:tcpHdrLen]
	if hdr[12]>>4 != 5 {
		return tcpHdrFields{}, false
	}
	flags := hdr[13]
	f := tcpHdrFields{
		srcPort: binary.BigEndian.Uint16(hdr[0:2]),
		dstPort: binary.BigEndian.Uint16(hdr[2:4]),
		seq:     binary.BigEndian.Uint32(hdr[4:8]),
		ack:     binary.BigEndian.Uint32(hdr[8:12]),
		fin:     flags&flagFIN != 0,
		syn:     flags&flagSYN != 0,
		rst:     flags&flagRST != 0,
		psh:     flags&flagPSH != 0,
		ackFlag: flags&flagACK != 0,
		window:  binary.BigEndian.Uint16(hdr[14:16]),
	}
	return f, true
}

// segLen is tcp_seg_len: the body length plus one imaginary byte for
// each of SYN and FIN, since both consume a sequence number.
func segLen(bodyLen int, syn, fin bool) int {
	n := bodyLen
	if syn {
		n++
	}
	if fin {
		n++
	}
	return n
}

func clampTimer(ms int64) int64 {
	if ms < minRTOMs {
		return minRTOMs
	}
	if ms > maxRTOMs {
		return maxRTOMs
	}
	return ms
}
