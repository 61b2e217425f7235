// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package app contains ready-made tcp.DataSinks, consuming the inbound streams of accepted Connections.
//
// An application is attached to a tcp.Dispatcher by its accept hook, e.g.,
//
//	dispatcher.RegisterAcceptHook(app.Echo{}.Attach)
package app
