// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import "errors"

// Reasons for dropping an inbound segment. None of them is fatal; the Dispatcher logs and continues.
var (
	// ErrMalformedSegment indicates a segment which could not be parsed.
	ErrMalformedSegment = errors.New("malformed segment")

	// ErrPortMismatch indicates a segment not addressed to the listening port.
	ErrPortMismatch = errors.New("destination port mismatch")

	// ErrChecksumMismatch indicates a segment failing checksum verification.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrUnknownFlow indicates a non-SYN segment for an untracked FlowKey.
	ErrUnknownFlow = errors.New("unknown connection")

	// ErrDispatcherClosed indicates a segment received after Close.
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)
