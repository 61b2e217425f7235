// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/minitcp/pkg/tcp"
)

// Logger logs each delivery and end of stream. At most PreviewLen bytes of payload are included.
type Logger struct {
	PreviewLen int
}

// Attach Logger to a newly accepted Connection.
func (l Logger) Attach(conn *tcp.Connection) {
	conn.RegisterSink(l)
}

func (l Logger) OnData(conn *tcp.Connection, data []byte) {
	preview := data
	if len(preview) > l.PreviewLen {
		preview = preview[:l.PreviewLen]
	}

	log.WithFields(log.Fields{
		"flow":    conn.Key().String(),
		"length":  len(data),
		"preview": string(preview),
	}).Info("Received data")
}

func (l Logger) OnClose(conn *tcp.Connection) {
	log.WithField("flow", conn.Key().String()).Info("Received end of stream")
}
