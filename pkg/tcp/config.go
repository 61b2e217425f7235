// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"time"

	"github.com/dtn7/minitcp/pkg/segment"
)

// Config for a Dispatcher and all its Connections.
type Config struct {
	// MSS is the largest payload of a single outbound segment.
	MSS int

	// RetransmissionTimeout is the fixed interval of the retransmission timer.
	RetransmissionTimeout time.Duration

	// InitialCwnd is each Connection's initial congestion window in segments.
	InitialCwnd int

	// InitialSsthresh is stored with each Connection but not used by the AIMD policy.
	InitialSsthresh int

	// Window is the receive window advertised in every outbound segment.
	Window uint16

	// RemoveClosed removes a Connection from the Dispatcher after both directions were closed and the own FIN was
	// acknowledged. Otherwise, Connections are only ever replaced by a new SYN.
	RemoveClosed bool
}

// DefaultConfig returns the default Config.
func DefaultConfig() Config {
	return Config{
		MSS:                   segment.MSS,
		RetransmissionTimeout: time.Second,
		InitialCwnd:           1,
		InitialSsthresh:       1000,
		Window:                0xffff,
		RemoveClosed:          true,
	}
}

// normalize replaces invalid values by their defaults.
func (conf Config) normalize() Config {
	def := DefaultConfig()

	if conf.MSS <= 0 {
		conf.MSS = def.MSS
	}
	if conf.RetransmissionTimeout <= 0 {
		conf.RetransmissionTimeout = def.RetransmissionTimeout
	}
	if conf.InitialCwnd < 1 {
		conf.InitialCwnd = def.InitialCwnd
	}
	if conf.InitialSsthresh <= 0 {
		conf.InitialSsthresh = def.InitialSsthresh
	}
	if conf.Window == 0 {
		conf.Window = def.Window
	}
	return conf
}
