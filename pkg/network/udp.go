// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package network

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// maxDatagramSize is large enough for every UDP payload.
const maxDatagramSize = 65535

// UDPConfig configures an UDP Layer.
type UDPConfig struct {
	// ListenAddress is the UDP socket's "host:port".
	ListenAddress string

	// LocalAddress is used as the destination address of inbound datagrams. It must be the address peers use in their
	// checksum's pseudo-header. If unset, the listening socket's IP is used.
	LocalAddress netip.Addr

	// IgnoreChecksum bypasses checksum verification.
	IgnoreChecksum bool
}

// UDP is a Layer carrying exactly one segment per UDP datagram. The source address of a segment is the sending
// socket's IP. Because multiple peers might share an IP, the UDP endpoint of the most recently received datagram of
// each address is used as the route for outbound segments.
type UDP struct {
	config UDPConfig
	conn   *net.UDPConn

	receiver      Receiver
	receiverMutex sync.RWMutex

	routes      map[netip.Addr]netip.AddrPort
	routesMutex sync.RWMutex

	stopSyn   chan struct{}
	stopAck   chan struct{}
	closeOnce sync.Once
}

// NewUDP creates an UDP Layer, which must be started by Start.
func NewUDP(config UDPConfig) *UDP {
	return &UDP{
		config:  config,
		routes:  make(map[netip.Addr]netip.AddrPort),
		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}
}

// Start listening on the configured address.
func (u *UDP) Start() error {
	addr, err := net.ResolveUDPAddr("udp", u.config.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", u.config.ListenAddress)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", u.config.ListenAddress)
	}

	if !u.config.LocalAddress.IsValid() {
		local := conn.LocalAddr().(*net.UDPAddr).AddrPort().Addr().Unmap()
		if local.IsUnspecified() {
			_ = conn.Close()
			return errors.Errorf("listen address %s is unspecified and no local address is configured", u.config.ListenAddress)
		}
		u.config.LocalAddress = local
	}
	u.conn = conn

	log.WithFields(log.Fields{
		"listen": conn.LocalAddr().String(),
		"local":  u.config.LocalAddress,
	}).Info("UDP network layer started")

	go u.handle()

	return nil
}

func (u *UDP) handle() {
	defer close(u.stopAck)

	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-u.stopSyn:
			return

		default:
			if err := u.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
				log.WithFields(log.Fields{
					"error": err,
				}).Warn("UDP network layer failed to set read deadline")
				return
			}

			n, from, err := u.conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					continue
				}

				log.WithFields(log.Fields{
					"error": err,
				}).Warn("UDP network layer failed to read datagram")
				continue
			}

			src := from.Addr().Unmap()
			u.learnRoute(src, from)

			datagram := make([]byte, n)
			copy(datagram, buf[:n])

			u.receiverMutex.RLock()
			receiver := u.receiver
			u.receiverMutex.RUnlock()

			if receiver != nil {
				receiver(src, u.config.LocalAddress, datagram)
			}
		}
	}
}

func (u *UDP) learnRoute(addr netip.Addr, endpoint netip.AddrPort) {
	u.routesMutex.Lock()
	defer u.routesMutex.Unlock()

	if known, ok := u.routes[addr]; !ok || known != endpoint {
		log.WithFields(log.Fields{
			"address":  addr,
			"endpoint": endpoint,
		}).Debug("UDP network layer learned route")
	}
	u.routes[addr] = endpoint
}

// AddRoute registers an UDP endpoint for an address, e.g., for peers which did not send anything yet.
func (u *UDP) AddRoute(addr netip.Addr, endpoint netip.AddrPort) {
	u.learnRoute(addr, endpoint)
}

// RegisterReceiver for inbound segments.
func (u *UDP) RegisterReceiver(receiver Receiver) {
	u.receiverMutex.Lock()
	defer u.receiverMutex.Unlock()

	u.receiver = receiver
}

// Send a segment to the UDP endpoint known for dst.
func (u *UDP) Send(segment []byte, dst netip.Addr) error {
	u.routesMutex.RLock()
	endpoint, ok := u.routes[dst]
	u.routesMutex.RUnlock()

	if !ok {
		return errors.Errorf("no route to %v", dst)
	}
	if u.conn == nil {
		return errors.New("UDP network layer was not started")
	}

	if _, err := u.conn.WriteToUDPAddrPort(segment, endpoint); err != nil {
		return errors.Wrapf(err, "sending %d bytes to %v", len(segment), endpoint)
	}
	return nil
}

// IgnoreChecksum as configured.
func (u *UDP) IgnoreChecksum() bool {
	return u.config.IgnoreChecksum
}

// LocalAddress returns the address used as the destination of inbound segments.
func (u *UDP) LocalAddress() netip.Addr {
	return u.config.LocalAddress
}

// Addr returns the UDP socket's address.
func (u *UDP) Addr() net.Addr {
	return u.conn.LocalAddr()
}

// Close the UDP socket and stop receiving.
func (u *UDP) Close() error {
	if u.conn == nil {
		return nil
	}

	err := errors.New("UDP network layer is already closed")
	u.closeOnce.Do(func() {
		close(u.stopSyn)
		<-u.stopAck

		err = errors.Wrap(u.conn.Close(), "closing UDP socket")
	})
	return err
}

func (u *UDP) String() string {
	return fmt.Sprintf("udp://%s", u.config.ListenAddress)
}
