// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"fmt"
	"sync"

	"github.com/google/netstack/tcpip/seqnum"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/minitcp/pkg/eventloop"
	"github.com/dtn7/minitcp/pkg/segment"
)

// outstandingSegment is the retransmission record: the exact bytes put on the wire and their sequence number.
type outstandingSegment struct {
	raw []byte
	seq seqnum.Value
}

// Connection is the per-flow protocol state. Except for Key, String, Send, Close and RegisterSink, its methods must
// be called on the Dispatcher's event loop.
type Connection struct {
	dispatcher *Dispatcher
	key        FlowKey

	clientISN seqnum.Value

	// ackNo is the next in-order byte expected from the peer; seqNo is the next byte to be sent.
	ackNo seqnum.Value
	seqNo seqnum.Value

	cwnd     int
	ssthresh int

	// Only the most recently sent data segment is kept for retransmission, overwriting older records. The count
	// may become negative if an acknowledgement follows a timeout.
	outstanding      *outstandingSegment
	outstandingCount int
	timer            eventloop.Timer

	sink      DataSink
	sinkMutex sync.Mutex

	peerClosed  bool
	localClosed bool
	finSeq      seqnum.Value
	finAcked    bool

	// lingering Connections are finished and await their removal; the timer then holds the removal.
	lingering bool

	// detached Connections were replaced or removed and must not emit anything.
	detached bool
}

func newConnection(d *Dispatcher, key FlowKey, clientISN, isn seqnum.Value) *Connection {
	return &Connection{
		dispatcher: d,
		key:        key,
		clientISN:  clientISN,
		ackNo:      clientISN.Add(1),
		seqNo:      isn,
		cwnd:       d.config.InitialCwnd,
		ssthresh:   d.config.InitialSsthresh,
	}
}

// Key of this Connection's flow.
func (c *Connection) Key() FlowKey {
	return c.key
}

func (c *Connection) String() string {
	return fmt.Sprintf("tcp://%v", c.key)
}

func (c *Connection) logger() *log.Entry {
	return log.WithField("flow", c.key.String())
}

// handshake answers the peer's SYN and reserves the SYN's virtual sequence byte.
func (c *Connection) handshake() {
	c.transmit(segment.FlagSyn|segment.FlagAck, c.seqNo, c.ackNo, nil)
	c.seqNo.UpdateForward(1)

	c.logger().WithFields(log.Fields{
		"client_isn": uint32(c.clientISN),
		"isn":        uint32(c.seqNo) - 1,
	}).Info("Accepted connection, sent SYN+ACK")
}

// transmit builds, checksums and sends a segment from this listener to the peer. The raw segment is returned for the
// retransmission record.
func (c *Connection) transmit(flags uint8, seq, ack seqnum.Value, payload []byte) []byte {
	raw := segment.Build(segment.Header{
		SrcPort: c.key.DstPort,
		DstPort: c.key.SrcPort,
		SeqNo:   uint32(seq),
		AckNo:   uint32(ack),
		Flags:   flags,
		Window:  c.dispatcher.config.Window,
	}, payload)
	raw = segment.FixChecksum(raw, c.key.DstAddr, c.key.SrcAddr)

	c.put(raw)
	return raw
}

// put hands a raw segment to the network layer. Failures are logged only; the retransmission timer covers loss.
func (c *Connection) put(raw []byte) {
	if err := c.dispatcher.network.Send(raw, c.key.SrcAddr); err != nil {
		c.logger().WithFields(log.Fields{
			"segment": segment.Describe(raw),
			"error":   err,
		}).Warn("Network layer failed to send segment")
		return
	}

	if log.IsLevelEnabled(log.TraceLevel) {
		c.logger().WithField("segment", segment.Describe(raw)).Trace("Sent segment")
	}
}

// handleSegment processes an inbound segment which was already validated and routed by the Dispatcher.
func (c *Connection) handleSegment(h segment.Header, payload []byte) {
	seq := seqnum.Value(h.SeqNo)

	switch {
	case h.Flags&segment.FlagFin != 0:
		c.transmit(segment.FlagAck, c.seqNo, seq.Add(1), nil)
		c.peerClosed = true

		c.logger().WithField("seq", h.SeqNo).Info("Peer closed connection")
		if sink := c.currentSink(); sink != nil {
			sink.OnClose(c)
		}

	case len(payload) > 0:
		if seq == c.ackNo {
			c.ackNo.UpdateForward(seqnum.Size(len(payload)))
			c.deliver(payload)
		} else {
			c.logger().WithFields(log.Fields{
				"seq":      h.SeqNo,
				"expected": uint32(c.ackNo),
				"length":   len(payload),
			}).Debug("Discarding out-of-order payload")
		}

		c.transmit(segment.FlagAck, c.seqNo, c.ackNo, nil)

	default:
		// pure ACK, nothing to deliver
	}

	if h.Flags&segment.FlagAck != 0 {
		c.handleAck(seqnum.Value(h.AckNo))
	}

	c.dispatcher.removeIfFinished(c)
}

// deliver a copy of in-order payload to the sink.
func (c *Connection) deliver(payload []byte) {
	sink := c.currentSink()
	if sink == nil {
		c.logger().WithField("length", len(payload)).Debug("No sink registered, discarding delivered payload")
		return
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	sink.OnData(c, data)
}

func (c *Connection) currentSink() DataSink {
	c.sinkMutex.Lock()
	defer c.sinkMutex.Unlock()

	return c.sink
}

// handleAck releases the retransmission record if the acknowledgement covers it and grows the congestion window.
func (c *Connection) handleAck(ack seqnum.Value) {
	if c.localClosed && !c.finAcked && c.finSeq.LessThan(ack) {
		c.finAcked = true
	}

	if c.outstanding == nil || !c.outstanding.seq.LessThan(ack) {
		return
	}

	c.stopTimer()
	c.outstanding = nil

	// After a timeout reset the counter drops below zero, granting one additional send slot; cwnd then only grows
	// once the count returns to zero.
	c.outstandingCount--
	if c.outstandingCount == 0 {
		c.cwnd++

		c.logger().WithField("cwnd", c.cwnd).Debug("Congestion window increased")
	}
}

// send splits data into chunks of at most MSS bytes and transmits as many as the congestion window allows. Chunks
// beyond the window are dropped, not queued. The amount of sent bytes is returned.
func (c *Connection) send(data []byte) (sent int) {
	if c.detached || c.localClosed {
		c.logger().WithField("length", len(data)).Warn("Dropping data for closed connection")
		return
	}

	mss := c.dispatcher.config.MSS
	for sent < len(data) && c.outstandingCount < c.cwnd {
		end := sent + mss
		if end > len(data) {
			end = len(data)
		}
		chunk := data[sent:end]

		raw := c.transmit(segment.FlagAck, c.seqNo, c.ackNo, chunk)
		c.outstanding = &outstandingSegment{raw: raw, seq: c.seqNo}
		c.restartTimer()

		c.seqNo.UpdateForward(seqnum.Size(len(chunk)))
		c.outstandingCount++
		sent = end
	}

	if sent < len(data) {
		c.logger().WithFields(log.Fields{
			"dropped":     len(data) - sent,
			"cwnd":        c.cwnd,
			"outstanding": c.outstandingCount,
		}).Debug("Congestion window exhausted, dropping remaining data")
	}
	return
}

// restartTimer cancels a pending retransmission timer before starting a new one.
func (c *Connection) restartTimer() {
	c.stopTimer()
	c.timer = c.dispatcher.scheduler.AfterFunc(c.dispatcher.config.RetransmissionTimeout, c.onTimeout)
}

func (c *Connection) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// onTimeout retransmits the recorded segment unchanged and halves the congestion window. There is neither backoff
// nor a retry limit.
func (c *Connection) onTimeout() {
	c.timer = nil

	if c.outstanding == nil || c.detached {
		return
	}

	c.put(c.outstanding.raw)
	c.restartTimer()

	c.cwnd /= 2
	if c.cwnd < 1 {
		c.cwnd = 1
	}
	c.outstandingCount = 0

	c.logger().WithFields(log.Fields{
		"seq":  uint32(c.outstanding.seq),
		"cwnd": c.cwnd,
	}).Info("Retransmission timeout, resent segment")
}

// close sends a FIN and reserves its virtual sequence byte. There is no wait for the peer's acknowledgement.
func (c *Connection) close() {
	if c.detached || c.localClosed {
		c.logger().Debug("Connection already closed")
		return
	}

	c.finSeq = c.seqNo
	c.transmit(segment.FlagFin, c.seqNo, c.ackNo, nil)
	c.seqNo.UpdateForward(1)
	c.localClosed = true

	c.logger().Info("Closed connection, sent FIN")
}

// teardown detaches the Connection from the network, e.g., when it is replaced by a new SYN.
func (c *Connection) teardown() {
	c.stopTimer()
	c.outstanding = nil
	c.outstandingCount = 0
	c.detached = true
}

// Send data to the peer. The data is copied and transmitted asynchronously on the event loop; whatever exceeds the
// congestion window at that point is dropped.
func (c *Connection) Send(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	c.dispatcher.scheduler.Post(func() { c.send(buf) })
}

// Close the sending direction by emitting a FIN on the event loop.
func (c *Connection) Close() {
	c.dispatcher.scheduler.Post(c.close)
}

// RegisterSink sets the DataSink for this Connection's inbound stream. It takes effect immediately and is usually
// called from the accept hook, before any payload can be delivered.
func (c *Connection) RegisterSink(sink DataSink) {
	c.sinkMutex.Lock()
	defer c.sinkMutex.Unlock()

	c.sink = sink
}

// Stats returns a snapshot of the protocol state.
func (c *Connection) Stats() Stats {
	st := Stats{
		Flow:             c.key,
		Remote:           c.key.Remote().String(),
		Local:            c.key.Local().String(),
		ClientISN:        uint32(c.clientISN),
		SeqNo:            uint32(c.seqNo),
		AckNo:            uint32(c.ackNo),
		Cwnd:             c.cwnd,
		Ssthresh:         c.ssthresh,
		Outstanding:      c.outstanding != nil,
		OutstandingCount: c.outstandingCount,
		TimerPending:     c.timer != nil,
		PeerClosed:       c.peerClosed,
		LocalClosed:      c.localClosed,
		Lingering:        c.lingering,
	}
	if c.outstanding != nil {
		st.OutstandingSeq = uint32(c.outstanding.seq)
	}
	return st
}
