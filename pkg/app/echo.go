// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package app

import "github.com/dtn7/minitcp/pkg/tcp"

// Echo sends every received chunk back to its peer and closes the Connection after the peer did.
type Echo struct{}

// Attach Echo to a newly accepted Connection.
func (e Echo) Attach(conn *tcp.Connection) {
	conn.RegisterSink(e)
}

func (Echo) OnData(conn *tcp.Connection, data []byte) {
	conn.Send(data)
}

func (Echo) OnClose(conn *tcp.Connection) {
	conn.Close()
}
