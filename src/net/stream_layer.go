package net

import (
	"context"
	"net"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// StreamLayer is used with the NetworkTransport to provide the low level stream
// abstraction.
type StreamLayer interface {
	// Listen binds a new listener to addr.
	Listen(addr ma.Multiaddr) (manet.Listener, error)

	// Dial is used to create a new outgoing connection
	Dial(ctx context.Context, addr ma.Multiaddr) (net.Conn, error)
}
