package net

import (
	"context"
	"errors"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/sirupsen/logrus"
)

var errNotTCP = errors.New("address is not a TCP address")

// TCPStreamLayer implements StreamLayer interface for plain TCP.
type TCPStreamLayer struct {
	dialer manet.Dialer
}

// NewTCPStreamLayer returns a TCPStreamLayer whose dials give up after
// timeout.
func NewTCPStreamLayer(timeout time.Duration) *TCPStreamLayer {
	return &TCPStreamLayer{
		dialer: manet.Dialer{
			Dialer: net.Dialer{Timeout: timeout},
		},
	}
}

// Listen implements the StreamLayer interface.
func (t *TCPStreamLayer) Listen(addr ma.Multiaddr) (manet.Listener, error) {
	if !isTCP(addr) {
		return nil, errNotTCP
	}
	return manet.Listen(addr)
}

// Dial implements the StreamLayer interface.
func (t *TCPStreamLayer) Dial(ctx context.Context, addr ma.Multiaddr) (net.Conn, error) {
	if !isTCP(addr) {
		return nil, errNotTCP
	}
	return t.dialer.DialContext(ctx, addr)
}

func isTCP(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	_, err := addr.ValueForProtocol(ma.P_TCP)
	return err == nil
}

// NewTCPTransport returns a NetworkTransport that is built on top of
// a TCP streaming transport layer, with log output going to the supplied Logger
func NewTCPTransport(
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {
	return NewNetworkTransport(NewTCPStreamLayer(timeout), maxPool, timeout, logger)
}
