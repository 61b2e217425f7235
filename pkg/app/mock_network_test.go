// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package app

import (
	"net/netip"
	"testing"
	"time"

	"github.com/dtn7/minitcp/pkg/eventloop"
	"github.com/dtn7/minitcp/pkg/network"
	"github.com/dtn7/minitcp/pkg/segment"
	"github.com/dtn7/minitcp/pkg/tcp"
)

var (
	peerAddr  = netip.MustParseAddr("192.168.1.20")
	localAddr = netip.MustParseAddr("192.168.1.10")
)

const (
	peerPort  uint16 = 51000
	localPort uint16 = 7
)

// loopbackPeer is a network.Layer with a single scripted peer.
type loopbackPeer struct {
	t *testing.T

	receiver  network.Receiver
	scheduler *eventloop.Manual
	received  []segment.Header
	payloads  [][]byte
}

func newLoopbackPeer(t *testing.T, hook func(*tcp.Connection)) (*loopbackPeer, *tcp.Dispatcher) {
	peer := &loopbackPeer{
		t:         t,
		scheduler: eventloop.NewManual(time.Unix(0, 0)),
	}

	conf := tcp.DefaultConfig()
	conf.InitialCwnd = 8

	dispatcher := tcp.NewDispatcher(peer, peer.scheduler, localPort, conf)
	dispatcher.RegisterAcceptHook(hook)
	peer.scheduler.RunPending()

	return peer, dispatcher
}

func (lp *loopbackPeer) RegisterReceiver(receiver network.Receiver) {
	lp.receiver = receiver
}

func (lp *loopbackPeer) Send(raw []byte, _ netip.Addr) error {
	h, payload, err := segment.Parse(raw)
	if err != nil {
		lp.t.Fatal(err)
	}

	lp.received = append(lp.received, h)
	lp.payloads = append(lp.payloads, append([]byte(nil), payload...))
	return nil
}

func (lp *loopbackPeer) IgnoreChecksum() bool {
	return false
}

// send a segment from the peer and run the event loop until it is idle.
func (lp *loopbackPeer) send(flags uint8, seq, ack uint32, payload []byte) {
	raw := segment.Build(segment.Header{
		SrcPort: peerPort,
		DstPort: localPort,
		SeqNo:   seq,
		AckNo:   ack,
		Flags:   flags,
		Window:  0xffff,
	}, payload)
	raw = segment.FixChecksum(raw, peerAddr, localAddr)

	lp.receiver(peerAddr, localAddr, raw)
	lp.scheduler.RunPending()
}

// take returns and forgets all segments sent to the peer.
func (lp *loopbackPeer) take() (headers []segment.Header, payloads [][]byte) {
	headers, payloads = lp.received, lp.payloads
	lp.received, lp.payloads = nil, nil
	return
}
