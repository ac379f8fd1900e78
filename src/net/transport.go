package net

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"
)

// Transport provides an interface for network transports
// to allow a node to communicate with other nodes.
type Transport interface {

	// Listen starts accepting connections on addr and returns the address
	// actually bound, with any wildcard port resolved.
	Listen(addr ma.Multiaddr) (ma.Multiaddr, error)

	// Listeners returns the addresses the transport is listening on.
	Listeners() []ma.Multiaddr

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// Identify, FindNode, GetRecord, PutRecord and Request send the
	// appropriate RPC to the target address. The target must not carry a
	// /p2p component.

	Identify(ctx context.Context, target ma.Multiaddr, args *IdentifyRequest, resp *IdentifyResponse) error

	FindNode(ctx context.Context, target ma.Multiaddr, args *FindNodeRequest, resp *FindNodeResponse) error

	GetRecord(ctx context.Context, target ma.Multiaddr, args *GetRecordRequest, resp *GetRecordResponse) error

	PutRecord(ctx context.Context, target ma.Multiaddr, args *PutRecordRequest, resp *PutRecordResponse) error

	Request(ctx context.Context, target ma.Multiaddr, args *AppRequest, resp *AppResponse) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
