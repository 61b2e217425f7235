// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package network describes the unreliable datagram layer below the protocol core and provides a UDP based
// implementation of it.
package network

import "net/netip"

// Receiver is called for each inbound datagram with its source address, its destination address and the raw segment.
type Receiver func(src, dst netip.Addr, segment []byte)

// Layer delivers raw segments between addresses. Delivery is unordered and unreliable.
type Layer interface {
	// RegisterReceiver sets the callback for inbound datagrams, replacing a previous one.
	RegisterReceiver(receiver Receiver)

	// Send a raw segment to the destination address. This is fire-and-forget: a nil error does not imply delivery.
	Send(segment []byte, dst netip.Addr) error

	// IgnoreChecksum indicates that checksum verification should be bypassed, e.g., for testing.
	IgnoreChecksum() bool
}
