// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package segment

import (
	"fmt"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Describe decodes a raw segment independently of Parse and returns a one-line summary for log output.
func Describe(raw []byte) string {
	pkt := gopacket.NewPacket(raw, layers.LayerTypeTCP, gopacket.NoCopy)

	tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok {
		if errLayer := pkt.ErrorLayer(); errLayer != nil {
			return fmt.Sprintf("malformed segment (%v)", errLayer.Error())
		}
		return "malformed segment"
	}

	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{{tcp.SYN, "SYN"}, {tcp.FIN, "FIN"}, {tcp.RST, "RST"}, {tcp.PSH, "PSH"}, {tcp.ACK, "ACK"}, {tcp.URG, "URG"}} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	if len(flags) == 0 {
		flags = []string{"-"}
	}

	return fmt.Sprintf("%d->%d [%s] seq=%d ack=%d win=%d len=%d",
		uint16(tcp.SrcPort), uint16(tcp.DstPort), strings.Join(flags, ","),
		tcp.Seq, tcp.Ack, tcp.Window, len(tcp.Payload))
}
