// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"fmt"
	"net/netip"
)

// FlowKey identifies a Connection by the addresses and ports of an inbound segment. The source is the peer, the
// destination is this listener.
type FlowKey struct {
	SrcAddr netip.Addr
	SrcPort uint16
	DstAddr netip.Addr
	DstPort uint16
}

// Remote endpoint of the flow.
func (fk FlowKey) Remote() netip.AddrPort {
	return netip.AddrPortFrom(fk.SrcAddr, fk.SrcPort)
}

// Local endpoint of the flow.
func (fk FlowKey) Local() netip.AddrPort {
	return netip.AddrPortFrom(fk.DstAddr, fk.DstPort)
}

func (fk FlowKey) String() string {
	return fmt.Sprintf("%v->%v", fk.Remote(), fk.Local())
}
