package tcp

import "defs"
import "skb"
import "timer"

// updateRTT is tcp_update_rtt: Jacobson's algorithm. The first sample
// seeds the estimate directly; afterwards the estimate and mean
// deviation are updated by weighted moving averages.
func updateRTT(t *sock_t, sampleMs int64) {
	if t.estimatedRTTMs < 0 {
		t.estimatedRTTMs = sampleMs
		t.varianceRTTMs = sampleMs / 2
		return
	}
	errMs := sampleMs - t.estimatedRTTMs
	if errMs < 0 {
		errMs = -errMs
	}
	t.estimatedRTTMs = 7*t.estimatedRTTMs/8 + sampleMs/8
	t.varianceRTTMs = 3*t.varianceRTTMs/4 + errMs/4
}

// retransmitTimeout is tcp_get_retransmit_timeout: RTO = EstRTT +
// 4*VarRTT, clamped to [minRTOMs, maxRTOMs], or defaultRTOMs before the
// first sample.
func retransmitTimeout(t *sock_t) int64 {
	if t.estimatedRTTMs < 0 {
		return defaultRTOMs
	}
	return clampTimer(t.estimatedRTTMs + 4*t.varianceRTTMs)
}

// outboxInsert is tcp_outbox_insert: appends a freshly built segment to
// the outbox (never reordered -- the caller only ever appends segments
// in increasing sequence order) and retains its skb for retransmission.
func outboxInsert(t *sock_t, pkt *skb.Skb_t, seq uint32, syn, fin bool, bodyLen int) *outboxPkt_t {
	pkt.Retain()
	entry := &outboxPkt_t{seq: seq, syn: syn, fin: fin, bodyLen: bodyLen, skb: pkt, transmitTimeMs: timer.Now()}
	t.mu.Lock()
	t.outbox = append(t.outbox, entry)
	t.mu.Unlock()
	return entry
}

// outboxTransmit is tcp_outbox_transmit: (re)arms the retransmit timer
// scaled by Karn's algorithm (2^(transmissions so far)) and sends.
func outboxTransmit(t *sock_t, pkt *outboxPkt_t) defs.Err_t {
	t.mu.Lock()
	timeout := retransmitTimeout(t) << uint(pkt.numTransmissions)
	t.mu.Unlock()

	timer.Setup(&pkt.retransmitTimer, timeout, func() { onRetransmitTimeout(t, pkt) })

	pkt.transmitTimeMs = timer.Now()
	pkt.numTransmissions++
	return send(t, pkt.skb)
}

// onRetransmitTimeout is tcp_on_retransmit_timeout: gives up and resets
// the connection after maxRetransmissions attempts, otherwise
// retransmits.
func onRetransmitTimeout(t *sock_t, pkt *outboxPkt_t) {
	t.mu.Lock()
	if t.inStateLocked(stateClosed) {
		t.mu.Unlock()
		return
	}
	if pkt.numTransmissions > maxRetransmissions {
		t.reset = true
		t.setStateLocked(stateClosed)
		t.mu.Unlock()
		release(t.sock)
		return
	}
	t.mu.Unlock()
	outboxTransmit(t, pkt)
}

// dropOutboxEntry cancels pkt's retransmit timer and releases its skb,
// per the tail of tcp_handle_rx_ack's per-packet cleanup.
func dropOutboxEntry(pkt *outboxPkt_t) {
	timer.Cancel(&pkt.retransmitTimer)
	pkt.skb.Release()
}

// handleRxAck is tcp_handle_rx_ack: purges every outbox entry the new
// ackNum covers, updates RTT on non-retransmitted packets (Karn's
// algorithm), advances the handshake/shutdown state machine on SYN/FIN
// ACKs, and falls back to the duplicate-ACK fast-retransmit counter when
// nothing was actually acknowledged. Returns the number of segments
// acked. Caller must not hold t.mu.
func handleRxAck(t *sock_t, ackNum uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	numAcked := 0
	i := 0
	for i < len(t.outbox) {
		pkt := t.outbox[i]
		d := seqCmp(pkt.seq+uint32(segLen(pkt.bodyLen, pkt.syn, pkt.fin)), ackNum)
		if d > 0 {
			break
		}
		if d == 0 && pkt.numTransmissions == 1 {
			updateRTT(t, timer.Now()-pkt.transmitTimeMs)
		}

		if pkt.syn && t.inStateLocked(stateSynSent|stateSynRecv) {
			t.setStateLocked(stateEstab)
			for _, txpkt := range t.outbox {
				if txpkt.numTransmissions == 0 {
					t.mu.Unlock()
					outboxTransmit(t, txpkt)
					t.mu.Lock()
				}
			}
		}

		if pkt.fin {
			switch {
			case t.inStateLocked(stateFinWait1):
				t.setStateLocked(stateFinWait2)
				startFinTimeout(t)
			case t.inStateLocked(stateClosing):
				t.setStateLocked(stateTimeWait)
				startFinTimeout(t)
			case t.inStateLocked(stateLastAck):
				t.setStateLocked(stateClosed)
			case t.inStateLocked(stateTimeWait):
				startFinTimeout(t)
			}
		}

		dropOutboxEntry(pkt)
		i++
		numAcked++
	}
	t.outbox = t.outbox[i:]

	if numAcked == 0 && len(t.outbox) > 0 {
		t.numDupAcks++
		if t.numDupAcks == 3 {
			earliest := t.outbox[0]
			t.mu.Unlock()
			outboxTransmit(t, earliest)
			t.mu.Lock()
			t.numDupAcks = 0
		}
	} else {
		t.numDupAcks = 0
	}

	return numAcked
}
