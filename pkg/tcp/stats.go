// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

// Stats is a snapshot of a Connection's protocol state.
type Stats struct {
	Flow   FlowKey `json:"-"`
	Remote string  `json:"remote"`
	Local  string  `json:"local"`

	ClientISN uint32 `json:"client_isn"`
	SeqNo     uint32 `json:"seq_no"`
	AckNo     uint32 `json:"ack_no"`

	Cwnd     int `json:"cwnd"`
	Ssthresh int `json:"ssthresh"`

	Outstanding      bool   `json:"outstanding"`
	OutstandingSeq   uint32 `json:"outstanding_seq,omitempty"`
	OutstandingCount int    `json:"outstanding_count"`
	TimerPending     bool   `json:"timer_pending"`

	PeerClosed  bool `json:"peer_closed"`
	LocalClosed bool `json:"local_closed"`
	Lingering   bool `json:"lingering"`
}

// Counters of a Dispatcher's handled and dropped segments.
type Counters struct {
	Accepted uint64 `json:"accepted"`
	Replaced uint64 `json:"replaced"`
	Removed  uint64 `json:"removed"`
	Active   int    `json:"active"`

	Malformed        uint64 `json:"malformed"`
	PortMismatch     uint64 `json:"port_mismatch"`
	ChecksumMismatch uint64 `json:"checksum_mismatch"`
	UnknownFlow      uint64 `json:"unknown_flow"`
}
