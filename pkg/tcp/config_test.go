// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"testing"
	"time"

	"github.com/dtn7/minitcp/pkg/segment"
)

func TestConfigNormalize(t *testing.T) {
	def := DefaultConfig()

	tests := []struct {
		name     string
		conf     Config
		expected Config
	}{
		{"empty", Config{}, Config{
			MSS:                   def.MSS,
			RetransmissionTimeout: def.RetransmissionTimeout,
			InitialCwnd:           def.InitialCwnd,
			InitialSsthresh:       def.InitialSsthresh,
			Window:                def.Window,
		}},
		{"invalid", Config{MSS: -1, RetransmissionTimeout: -time.Second, InitialCwnd: 0, RemoveClosed: true}, Config{
			MSS:                   def.MSS,
			RetransmissionTimeout: def.RetransmissionTimeout,
			InitialCwnd:           def.InitialCwnd,
			InitialSsthresh:       def.InitialSsthresh,
			Window:                def.Window,
			RemoveClosed:          true,
		}},
		{"custom", Config{MSS: 5, RetransmissionTimeout: time.Millisecond, InitialCwnd: 3, InitialSsthresh: 8, Window: 512},
			Config{MSS: 5, RetransmissionTimeout: time.Millisecond, InitialCwnd: 3, InitialSsthresh: 8, Window: 512}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if conf := test.conf.normalize(); conf != test.expected {
				t.Fatalf("got %+v, expected %+v", conf, test.expected)
			}
		})
	}
}

func TestConfigAdvertisedWindow(t *testing.T) {
	h := newHarness(t, Config{MSS: 5})
	h.inject(segment.Header{SeqNo: 1000, Flags: segment.FlagSyn}, nil)

	sent := h.network.drain()
	if len(sent) != 1 || sent[0].header.Window != 0xffff {
		t.Fatalf("expected SYN+ACK advertising 65535, got %v", sent)
	}
}
