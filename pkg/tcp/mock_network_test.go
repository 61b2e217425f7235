// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/netstack/tcpip/seqnum"

	"github.com/dtn7/minitcp/pkg/eventloop"
	"github.com/dtn7/minitcp/pkg/network"
	"github.com/dtn7/minitcp/pkg/segment"
)

var (
	clientAddr = netip.MustParseAddr("10.0.0.2")
	serverAddr = netip.MustParseAddr("10.0.0.1")
)

var errTestNetwork = errors.New("network unreachable")

const (
	clientPort uint16 = 40000
	serverPort uint16 = 8080
	serverISN         = 5000
)

// sentSegment is a segment handed to the mockNetwork.
type sentSegment struct {
	raw     []byte
	dst     netip.Addr
	header  segment.Header
	payload []byte
}

// mockNetwork is a network.Layer recording every sent segment.
type mockNetwork struct {
	sync.Mutex

	receiver       network.Receiver
	sent           []sentSegment
	ignoreChecksum bool
	sendErr        error
}

func (mn *mockNetwork) RegisterReceiver(receiver network.Receiver) {
	mn.Lock()
	defer mn.Unlock()

	mn.receiver = receiver
}

func (mn *mockNetwork) Send(raw []byte, dst netip.Addr) error {
	mn.Lock()
	defer mn.Unlock()

	if mn.sendErr != nil {
		return mn.sendErr
	}

	buf := make([]byte, len(raw))
	copy(buf, raw)

	h, payload, err := segment.Parse(buf)
	if err != nil {
		return errors.New("mock network: sent unparsable segment")
	}

	mn.sent = append(mn.sent, sentSegment{raw: buf, dst: dst, header: h, payload: payload})
	return nil
}

func (mn *mockNetwork) IgnoreChecksum() bool {
	return mn.ignoreChecksum
}

// drain returns and forgets all sent segments.
func (mn *mockNetwork) drain() []sentSegment {
	mn.Lock()
	defer mn.Unlock()

	sent := mn.sent
	mn.sent = nil
	return sent
}

// recordingSink collects a Connection's inbound stream.
type recordingSink struct {
	chunks [][]byte
	closes int
}

func (rs *recordingSink) OnData(_ *Connection, data []byte) {
	rs.chunks = append(rs.chunks, data)
}

func (rs *recordingSink) OnClose(_ *Connection) {
	rs.closes++
}

// harness wires a Dispatcher to a mockNetwork and a Manual scheduler. Accepted Connections get a recordingSink.
type harness struct {
	t *testing.T

	network    *mockNetwork
	scheduler  *eventloop.Manual
	dispatcher *Dispatcher

	accepted []*Connection
	sinks    map[*Connection]*recordingSink
}

func testConfig() Config {
	conf := DefaultConfig()
	conf.MSS = 5
	return conf
}

func newHarness(t *testing.T, conf Config) *harness {
	h := &harness{
		t:         t,
		network:   &mockNetwork{},
		scheduler: eventloop.NewManual(time.Unix(0, 0)),
		sinks:     make(map[*Connection]*recordingSink),
	}

	h.dispatcher = NewDispatcher(h.network, h.scheduler, serverPort, conf)
	h.dispatcher.isn = func() seqnum.Value { return serverISN }
	h.dispatcher.RegisterAcceptHook(func(conn *Connection) {
		sink := &recordingSink{}
		h.sinks[conn] = sink
		h.accepted = append(h.accepted, conn)
		conn.RegisterSink(sink)
	})
	h.scheduler.RunPending()

	return h
}

// inject a segment from the client, with a correct checksum, and process it.
func (h *harness) inject(hdr segment.Header, payload []byte) {
	if hdr.SrcPort == 0 {
		hdr.SrcPort = clientPort
	}
	if hdr.DstPort == 0 {
		hdr.DstPort = serverPort
	}
	if hdr.Window == 0 {
		hdr.Window = 0xffff
	}

	raw := segment.Build(hdr, payload)
	raw = segment.FixChecksum(raw, clientAddr, serverAddr)
	h.injectRaw(raw)
}

func (h *harness) injectRaw(raw []byte) {
	h.network.receiver(clientAddr, serverAddr, raw)
	h.scheduler.RunPending()
}

// connect performs the client's SYN and returns the new Connection, discarding the SYN+ACK.
func (h *harness) connect(clientISN uint32) *Connection {
	h.inject(segment.Header{SeqNo: clientISN, Flags: segment.FlagSyn}, nil)
	if len(h.accepted) == 0 {
		h.t.Fatal("no connection was accepted")
	}
	h.network.drain()

	return h.accepted[len(h.accepted)-1]
}

func (h *harness) counters() Counters {
	counters, err := h.dispatcher.Counters(context.Background())
	if err != nil {
		h.t.Fatal(err)
	}
	return counters
}
