// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package tcp implements the passive-open side of a reliable, ordered byte-stream protocol on top of an unreliable
// network.Layer.
//
// A Dispatcher owns one listening port and demultiplexes inbound segments by their FlowKey into Connections. Each
// Connection acknowledges in-order data cumulatively, keeps a single retransmission record guarded by one timer, and
// adjusts its congestion window additively on acknowledgements and multiplicatively on timeouts.
//
// All state is owned by an eventloop.Scheduler. Inbound segments, timer expiries and the application's Send and Close
// calls are all executed as tasks on it; callbacks into the application (accept hook, DataSink) run on it as well.
package tcp
