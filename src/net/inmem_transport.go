package net

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the host name.
func NewInmemAddr() ma.Multiaddr {
	return ma.StringCast(fmt.Sprintf("/dns/%s.inmem", uuid.NewString()))
}

// InmemTransport Implements the Transport interface, to allow safenode to be
// tested in-memory without going over a network.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  ma.Multiaddr
	listening  bool
	peers      map[string]*InmemTransport
	timeout    time.Duration
	shutdownCh chan struct{}
	shutdown   bool
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr ma.Multiaddr) (ma.Multiaddr, *InmemTransport) {
	if addr == nil {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		timeout:    2 * time.Second,
		shutdownCh: make(chan struct{}),
	}
	return addr, trans
}

// LocalAddr returns the address other in-memory transports use to reach this
// one.
func (i *InmemTransport) LocalAddr() ma.Multiaddr {
	return i.localAddr
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// Listen implements the Transport interface. The requested address is
// ignored, an in-memory transport is only reachable on its local address.
func (i *InmemTransport) Listen(addr ma.Multiaddr) (ma.Multiaddr, error) {
	i.Lock()
	defer i.Unlock()

	if i.shutdown {
		return nil, ErrTransportShutdown
	}

	i.listening = true
	return i.localAddr, nil
}

// Listeners implements the Transport interface.
func (i *InmemTransport) Listeners() []ma.Multiaddr {
	i.RLock()
	defer i.RUnlock()

	if !i.listening {
		return nil
	}
	return []ma.Multiaddr{i.localAddr}
}

// Identify implements the Transport interface.
func (i *InmemTransport) Identify(ctx context.Context, target ma.Multiaddr, args *IdentifyRequest, resp *IdentifyResponse) error {
	rpcResp, err := i.makeRPC(ctx, target, args)
	if err != nil {
		return err
	}

	// Copy the result back
	out, ok := rpcResp.Response.(*IdentifyResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", rpcResp.Response)
	}
	*resp = *out
	return nil
}

// FindNode implements the Transport interface.
func (i *InmemTransport) FindNode(ctx context.Context, target ma.Multiaddr, args *FindNodeRequest, resp *FindNodeResponse) error {
	rpcResp, err := i.makeRPC(ctx, target, args)
	if err != nil {
		return err
	}

	// Copy the result back
	out, ok := rpcResp.Response.(*FindNodeResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", rpcResp.Response)
	}
	*resp = *out
	return nil
}

// GetRecord implements the Transport interface.
func (i *InmemTransport) GetRecord(ctx context.Context, target ma.Multiaddr, args *GetRecordRequest, resp *GetRecordResponse) error {
	rpcResp, err := i.makeRPC(ctx, target, args)
	if err != nil {
		return err
	}

	// Copy the result back
	out, ok := rpcResp.Response.(*GetRecordResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", rpcResp.Response)
	}
	*resp = *out
	return nil
}

// PutRecord implements the Transport interface.
func (i *InmemTransport) PutRecord(ctx context.Context, target ma.Multiaddr, args *PutRecordRequest, resp *PutRecordResponse) error {
	rpcResp, err := i.makeRPC(ctx, target, args)
	if err != nil {
		return err
	}

	// Copy the result back
	out, ok := rpcResp.Response.(*PutRecordResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", rpcResp.Response)
	}
	*resp = *out
	return nil
}

// Request implements the Transport interface.
func (i *InmemTransport) Request(ctx context.Context, target ma.Multiaddr, args *AppRequest, resp *AppResponse) error {
	rpcResp, err := i.makeRPC(ctx, target, args)
	if err != nil {
		return err
	}

	// Copy the result back
	out, ok := rpcResp.Response.(*AppResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", rpcResp.Response)
	}
	*resp = *out
	return nil
}

func (i *InmemTransport) makeRPC(ctx context.Context, target ma.Multiaddr, args interface{}) (rpcResp RPCResponse, err error) {
	i.RLock()
	peer, ok := i.peers[target.String()]
	shutdown := i.shutdown
	timeout := i.timeout
	i.RUnlock()

	if shutdown {
		err = ErrTransportShutdown
		return
	}

	if !ok || !peer.isListening() {
		err = fmt.Errorf("failed to connect to peer: %v", target)
		return
	}

	done := make(chan struct{})
	defer close(done)
	rpc, respCh := NewRPC(args, done)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Send the RPC over
	select {
	case peer.consumerCh <- rpc:
	case <-peer.shutdownCh:
		err = fmt.Errorf("failed to connect to peer: %v", target)
		return
	case <-ctx.Done():
		err = ctx.Err()
		return
	case <-timer.C:
		err = fmt.Errorf("command timed out")
		return
	}

	// Wait for a response
	select {
	case rpcResp = <-respCh:
		if rpcResp.Error != nil {
			err = rpcResp.Error
		}
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
		err = fmt.Errorf("command timed out")
	}
	return
}

func (i *InmemTransport) isListening() bool {
	i.RLock()
	defer i.RUnlock()
	return i.listening && !i.shutdown
}

// SetTimeout changes how long an RPC waits for its response.
func (i *InmemTransport) SetTimeout(timeout time.Duration) {
	i.Lock()
	defer i.Unlock()
	i.timeout = timeout
}

// Connect is used to connect this transport to another transport for
// a given peer address. This allows for local routing.
func (i *InmemTransport) Connect(peer ma.Multiaddr, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer.String()] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer ma.Multiaddr) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer.String())
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()

	if !i.shutdown {
		i.shutdown = true
		close(i.shutdownCh)
		i.peers = make(map[string]*InmemTransport)
	}
	return nil
}
