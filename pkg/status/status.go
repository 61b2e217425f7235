// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package status provides a read-only HTTP API to inspect a running tcp.Dispatcher.
//
//	GET /connections  - state of all tracked connections
//	GET /counters     - accepted, replaced, removed and dropped segments
package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/minitcp/pkg/tcp"
)

// requestTimeout bounds the wait for the event loop while answering a request.
const requestTimeout = 2 * time.Second

// Source of the served information, usually a *tcp.Dispatcher.
type Source interface {
	Connections(ctx context.Context) ([]tcp.Stats, error)
	Counters(ctx context.Context) (tcp.Counters, error)
}

// Server serves the status API for a Source.
type Server struct {
	source Source
	router *mux.Router
	server *http.Server
}

// NewServer creates a Server for the Source. It must be started to listen on the address.
func NewServer(source Source, addr string) *Server {
	s := &Server{
		source: source,
		router: mux.NewRouter(),
	}

	s.router.HandleFunc("/connections", s.handleConnections).Methods(http.MethodGet)
	s.router.HandleFunc("/counters", s.handleCounters).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: requestTimeout,
	}

	return s
}

// ServeHTTP makes Server a http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listening in the background. The bound address is returned, which is useful for port zero.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "status server failed to listen on %s", s.server.Addr)
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("Status server errored")
		}
	}()

	log.WithField("address", ln.Addr().String()).Info("Started status server")
	return ln.Addr(), nil
}

// Close shuts the server down, waiting briefly for running requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stats, err := s.source.Connections(ctx)
	if err != nil {
		s.fail(w, "connections", err)
		return
	}

	s.write(w, "connections", stats)
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	counters, err := s.source.Counters(ctx)
	if err != nil {
		s.fail(w, "counters", err)
		return
	}

	s.write(w, "counters", counters)
}

func (s *Server) fail(w http.ResponseWriter, resource string, err error) {
	log.WithFields(log.Fields{
		"resource": resource,
		"error":    err,
	}).Warn("Failed to query status")

	http.Error(w, err.Error(), http.StatusServiceUnavailable)
}

func (s *Server) write(w http.ResponseWriter, resource string, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithFields(log.Fields{
			"resource": resource,
			"error":    err,
		}).Warn("Failed to write status response")
	}
}
