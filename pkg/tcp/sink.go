// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

// DataSink receives a Connection's inbound stream. Its methods are called on the event loop and must not block.
type DataSink interface {
	// OnData delivers the next in-order, non-empty chunk of the stream. Each byte is delivered exactly once.
	OnData(conn *Connection, data []byte)

	// OnClose signals the end of stream after the peer sent a FIN.
	OnClose(conn *Connection)
}

// SinkFunc adapts a single callback to a DataSink. An empty data slice signals the end of stream.
type SinkFunc func(conn *Connection, data []byte)

// OnData calls f with the data.
func (f SinkFunc) OnData(conn *Connection, data []byte) {
	f(conn, data)
}

// OnClose calls f with an empty slice.
func (f SinkFunc) OnClose(conn *Connection) {
	f(conn, []byte{})
}
