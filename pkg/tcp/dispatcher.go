// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/netip"
	"sort"
	"time"

	"github.com/google/netstack/tcpip/seqnum"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/minitcp/pkg/eventloop"
	"github.com/dtn7/minitcp/pkg/network"
	"github.com/dtn7/minitcp/pkg/segment"
)

// Dispatcher owns a listening port, accepts new flows and routes segments to their Connections.
type Dispatcher struct {
	port      uint16
	network   network.Layer
	scheduler eventloop.Scheduler
	config    Config

	// conns and everything below are owned by the scheduler.
	conns      map[FlowKey]*Connection
	acceptHook func(*Connection)
	counters   Counters
	closed     bool

	// isn yields the initial sequence number for a new Connection.
	isn func() seqnum.Value
}

// NewDispatcher creates a Dispatcher for the port and registers it as the network.Layer's receiver.
func NewDispatcher(layer network.Layer, scheduler eventloop.Scheduler, port uint16, config Config) *Dispatcher {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	d := &Dispatcher{
		port:      port,
		network:   layer,
		scheduler: scheduler,
		config:    config.normalize(),
		conns:     make(map[FlowKey]*Connection),
		isn: func() seqnum.Value {
			return seqnum.Value(rng.Intn(1 << 16))
		},
	}

	layer.RegisterReceiver(d.receive)

	log.WithFields(log.Fields{
		"port":           port,
		"mss":            d.config.MSS,
		"rto":            d.config.RetransmissionTimeout,
		"ignoreChecksum": layer.IgnoreChecksum(),
	}).Info("Dispatcher listening")

	return d
}

// Port returns the listening port.
func (d *Dispatcher) Port() uint16 {
	return d.port
}

// RegisterAcceptHook sets a callback invoked on the event loop with each newly created Connection, right after its
// SYN+ACK was sent.
func (d *Dispatcher) RegisterAcceptHook(hook func(*Connection)) {
	d.scheduler.Post(func() { d.acceptHook = hook })
}

// receive is the network.Receiver, moving inbound segments onto the event loop.
func (d *Dispatcher) receive(src, dst netip.Addr, raw []byte) {
	d.scheduler.Post(func() { d.handleIncoming(src, dst, raw) })
}

// handleIncoming dispatches a segment and logs why it was dropped, if so.
func (d *Dispatcher) handleIncoming(src, dst netip.Addr, raw []byte) {
	err := d.dispatch(src, dst, raw)
	if err == nil {
		return
	}

	level, msg := log.WarnLevel, "Dropping segment"
	switch {
	case errors.Is(err, ErrPortMismatch):
		level, msg = log.TraceLevel, "Dropping segment for another port"
	case errors.Is(err, ErrChecksumMismatch):
		msg = "Dropping segment with incorrect checksum"
	case errors.Is(err, ErrUnknownFlow):
		msg = "Dropping segment for unknown connection"
	}

	// Decoding for the log is not free; skip it for disabled levels.
	if !log.IsLevelEnabled(level) {
		return
	}

	log.WithFields(log.Fields{
		"src":     src,
		"dst":     dst,
		"segment": segment.Describe(raw),
		"error":   err,
	}).Log(level, msg)
}

// dispatch validates and routes one inbound segment. A returned error names the reason for dropping it.
func (d *Dispatcher) dispatch(src, dst netip.Addr, raw []byte) error {
	if d.closed {
		return ErrDispatcherClosed
	}

	h, payload, err := segment.Parse(raw)
	if err != nil {
		d.counters.Malformed++
		return fmt.Errorf("%w: %v", ErrMalformedSegment, err)
	}

	if h.DstPort != d.port {
		d.counters.PortMismatch++
		return fmt.Errorf("%w: %d", ErrPortMismatch, h.DstPort)
	}

	if !d.network.IgnoreChecksum() && !segment.VerifyChecksum(raw, src, dst) {
		d.counters.ChecksumMismatch++
		return ErrChecksumMismatch
	}

	key := FlowKey{SrcAddr: src, SrcPort: h.SrcPort, DstAddr: dst, DstPort: h.DstPort}

	if h.Flags&segment.FlagSyn != 0 {
		d.accept(key, seqnum.Value(h.SeqNo))
		return nil
	}

	conn, ok := d.conns[key]
	if !ok {
		d.counters.UnknownFlow++
		return fmt.Errorf("%w: %v", ErrUnknownFlow, key)
	}

	conn.handleSegment(h, payload)
	return nil
}

// accept creates a Connection for a SYN. An existing Connection of the same flow is torn down and replaced.
func (d *Dispatcher) accept(key FlowKey, clientISN seqnum.Value) {
	if old, ok := d.conns[key]; ok {
		old.teardown()
		d.counters.Replaced++

		log.WithFields(log.Fields{
			"flow": key.String(),
		}).Info("SYN for active flow, replacing connection")
	}

	conn := newConnection(d, key, clientISN, d.isn())
	d.conns[key] = conn
	d.counters.Accepted++

	conn.handshake()

	if d.acceptHook != nil {
		d.acceptHook(conn)
	}
}

// removeIfFinished schedules a Connection's removal after both directions were closed, the own FIN was acknowledged
// and no data awaits acknowledgement. The Connection lingers for two retransmission timeouts, still acknowledging a
// retransmitted FIN of the peer whose ACK got lost.
func (d *Dispatcher) removeIfFinished(c *Connection) {
	if !d.config.RemoveClosed || c.lingering {
		return
	}
	if !c.peerClosed || !c.localClosed || !c.finAcked || c.outstanding != nil {
		return
	}
	if d.conns[c.key] != c {
		return
	}

	linger := 2 * d.config.RetransmissionTimeout

	c.lingering = true
	c.stopTimer()
	c.timer = d.scheduler.AfterFunc(linger, func() {
		c.timer = nil
		d.remove(c)
	})

	c.logger().WithField("linger", linger).Debug("Connection finished, lingering before removal")
}

// remove a Connection from the table, unless it was already replaced.
func (d *Dispatcher) remove(c *Connection) {
	if d.conns[c.key] != c {
		return
	}

	c.teardown()
	delete(d.conns, c.key)
	d.counters.Removed++

	c.logger().Info("Connection finished, removed")
}

// Connections returns a snapshot of all tracked Connections, ordered by their remote endpoint.
func (d *Dispatcher) Connections(ctx context.Context) ([]Stats, error) {
	var stats []Stats
	err := d.scheduler.Call(ctx, func() {
		snapshot := make([]Stats, 0, len(d.conns))
		for _, conn := range d.conns {
			snapshot = append(snapshot, conn.Stats())
		}
		stats = snapshot
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Remote < stats[j].Remote
	})
	return stats, nil
}

// Counters returns a snapshot of the Dispatcher's counters.
func (d *Dispatcher) Counters(ctx context.Context) (Counters, error) {
	var counters Counters
	err := d.scheduler.Call(ctx, func() {
		snapshot := d.counters
		snapshot.Active = len(d.conns)
		counters = snapshot
	})
	if err != nil {
		return Counters{}, err
	}
	return counters, nil
}

// Close tears down all Connections without notifying peers. Segments received afterwards are dropped.
func (d *Dispatcher) Close() error {
	return d.scheduler.Call(context.Background(), func() {
		for key, conn := range d.conns {
			conn.teardown()
			delete(d.conns, key)
		}
		d.closed = true

		log.WithField("port", d.port).Info("Dispatcher closed")
	})
}
