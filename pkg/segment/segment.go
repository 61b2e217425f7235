// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/google/netstack/tcpip/header"
)

// Flag bits of the header's flags byte.
const (
	FlagFin uint8 = header.TCPFlagFin
	FlagSyn uint8 = header.TCPFlagSyn
	FlagRst uint8 = header.TCPFlagRst
	FlagPsh uint8 = header.TCPFlagPsh
	FlagAck uint8 = header.TCPFlagAck
	FlagUrg uint8 = header.TCPFlagUrg
)

const (
	// HeaderLen is the length of an option-less header in bytes.
	HeaderLen = header.TCPMinimumSize

	// MSS bounds the payload carried by a single segment.
	MSS = 1460

	urgentPtrOffset = 18

	// ProtocolNumber is placed in the checksum's pseudo-header.
	ProtocolNumber = uint8(header.TCPProtocolNumber)
)

var (
	// ErrTooShort is returned for buffers shorter than HeaderLen.
	ErrTooShort = errors.New("segment shorter than minimum header")

	// ErrBadDataOffset is returned if the data offset points before the fixed header or beyond the buffer.
	ErrBadDataOffset = errors.New("segment data offset out of range")
)

// Header holds the decoded header fields of a segment.
type Header struct {
	SrcPort uint16
	DstPort uint16
	SeqNo   uint32
	AckNo   uint32

	// DataOffset is the header length in bytes, including options. Zero is treated as HeaderLen by Build.
	DataOffset uint8
	Flags      uint8

	Window    uint16
	Checksum  uint16
	UrgentPtr uint16
}

// Has checks if all given flag bits are set.
func (h Header) Has(flags uint8) bool {
	return h.Flags&flags == flags
}

func (h Header) String() string {
	return fmt.Sprintf("%d->%d [%s] seq=%d ack=%d win=%d", h.SrcPort, h.DstPort, FlagString(h.Flags), h.SeqNo, h.AckNo, h.Window)
}

// FlagString renders the set flag bits, e.g., "SYN,ACK".
func FlagString(flags uint8) string {
	names := []struct {
		flag uint8
		name string
	}{
		{FlagSyn, "SYN"},
		{FlagFin, "FIN"},
		{FlagRst, "RST"},
		{FlagPsh, "PSH"},
		{FlagAck, "ACK"},
		{FlagUrg, "URG"},
	}

	var set []string
	for _, n := range names {
		if flags&n.flag != 0 {
			set = append(set, n.name)
		}
	}

	if len(set) == 0 {
		return "-"
	}
	return strings.Join(set, ",")
}

// Parse the header of a raw segment and return it together with the payload. The payload shares raw's memory.
func Parse(raw []byte) (h Header, payload []byte, err error) {
	if len(raw) < HeaderLen {
		err = fmt.Errorf("%w: %d bytes", ErrTooShort, len(raw))
		return
	}

	tcp := header.TCP(raw)
	h = Header{
		SrcPort:    tcp.SourcePort(),
		DstPort:    tcp.DestinationPort(),
		SeqNo:      tcp.SequenceNumber(),
		AckNo:      tcp.AckNumber(),
		DataOffset: tcp.DataOffset(),
		Flags:      tcp.Flags(),
		Window:     tcp.WindowSize(),
		Checksum:   tcp.Checksum(),
		UrgentPtr:  binary.BigEndian.Uint16(raw[urgentPtrOffset:]),
	}

	if off := int(h.DataOffset); off < HeaderLen || off > len(raw) {
		err = fmt.Errorf("%w: offset %d, length %d", ErrBadDataOffset, off, len(raw))
		return
	}

	payload = raw[h.DataOffset:]
	return
}

// Build a new segment from a Header and a payload. The checksum field is copied from the Header; use FixChecksum to
// patch it for a concrete pair of addresses. Options are not supported, the data offset is always HeaderLen.
func Build(h Header, payload []byte) []byte {
	raw := make([]byte, HeaderLen+len(payload))

	header.TCP(raw).Encode(&header.TCPFields{
		SrcPort:       h.SrcPort,
		DstPort:       h.DstPort,
		SeqNum:        h.SeqNo,
		AckNum:        h.AckNo,
		DataOffset:    HeaderLen,
		Flags:         h.Flags,
		WindowSize:    h.Window,
		Checksum:      h.Checksum,
		UrgentPointer: h.UrgentPtr,
	})
	copy(raw[HeaderLen:], payload)

	return raw
}
