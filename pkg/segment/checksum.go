// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package segment

import (
	"encoding/binary"
	"net/netip"

	"github.com/google/netstack/tcpip/header"
)

// checksumOffset is the position of the checksum field within the header.
const checksumOffset = 16

// pseudoHeader assembles the checksum's pseudo-header for either an IPv4 or an IPv6 address pair.
func pseudoHeader(src, dst netip.Addr, length int) []byte {
	if src.Is4() && dst.Is4() {
		ph := make([]byte, 12)
		s, d := src.As4(), dst.As4()
		copy(ph[0:4], s[:])
		copy(ph[4:8], d[:])
		ph[9] = ProtocolNumber
		binary.BigEndian.PutUint16(ph[10:12], uint16(length))
		return ph
	}

	ph := make([]byte, 40)
	s, d := src.As16(), dst.As16()
	copy(ph[0:16], s[:])
	copy(ph[16:32], d[:])
	binary.BigEndian.PutUint32(ph[32:36], uint32(length))
	ph[39] = ProtocolNumber
	return ph
}

// ComputeChecksum over the pseudo-header and the whole segment, including its current checksum field. The result is
// zero for a segment carrying a correct checksum.
func ComputeChecksum(raw []byte, src, dst netip.Addr) uint16 {
	xsum := header.Checksum(pseudoHeader(src, dst, len(raw)), 0)
	xsum = header.Checksum(raw, xsum)
	return xsum ^ 0xffff
}

// FixChecksum patches the segment's checksum field in place for the given addresses and returns the segment.
func FixChecksum(raw []byte, src, dst netip.Addr) []byte {
	if len(raw) < HeaderLen {
		return raw
	}

	binary.BigEndian.PutUint16(raw[checksumOffset:], 0)
	binary.BigEndian.PutUint16(raw[checksumOffset:], ComputeChecksum(raw, src, dst))
	return raw
}

// VerifyChecksum checks a received segment.
func VerifyChecksum(raw []byte, src, dst netip.Addr) bool {
	return ComputeChecksum(raw, src, dst) == 0
}
