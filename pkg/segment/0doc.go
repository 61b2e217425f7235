// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package segment implements the wire codec for minitcp segments.
//
// A segment is a TCP-shaped header followed by a payload. The header length is stored as the data offset in the top
// nibble of the flags word, counted in 4-byte words. The checksum is the one's-complement internet checksum over a
// pseudo-header (source address, destination address, protocol number and segment length) and the segment itself.
// ComputeChecksum yields zero for every segment whose checksum field was patched by FixChecksum.
package segment
