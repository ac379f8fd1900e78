package network

import (
	"context"
	"errors"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/common/oneshot"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol"
	"github.com/safenetwork/safenode/src/protocol/messages"
)

// Network submits commands to a SwarmDriver and waits for their outcome. It is
// safe for concurrent use.
type Network struct {
	local      peers.ID
	cmdCh      chan<- SwarmCmd
	shutdownCh <-chan struct{}
}

// PeerID returns the ID of the local peer.
func (n *Network) PeerID() peers.ID {
	return n.local
}

// StartListening listens on addr.
func (n *Network) StartListening(ctx context.Context, addr ma.Multiaddr) error {
	sender, receiver := oneshot.New[error]()

	err, rerr := call(ctx, n, &StartListeningCmd{Addr: addr, Sender: sender}, receiver)
	if rerr != nil {
		return rerr
	}
	return err
}

// Dial connects to the peer id at addr. It returns nil once the peer is
// connected. A second Dial to a peer that is still being dialed is dropped and
// returns oneshot.ErrClosed.
func (n *Network) Dial(ctx context.Context, id peers.ID, addr ma.Multiaddr) error {
	sender, receiver := oneshot.New[error]()

	err, rerr := call(ctx, n, &DialCmd{Peer: id, Addr: addr, Sender: sender}, receiver)
	if rerr != nil {
		return rerr
	}
	return err
}

// GetClosestPeers looks up the network for the peers closest to target.
func (n *Network) GetClosestPeers(ctx context.Context, target protocol.XorName) (peers.IDSet, error) {
	sender, receiver := oneshot.New[peers.IDSet]()
	return call(ctx, n, &GetClosestPeersCmd{Target: target, Sender: sender}, receiver)
}

// GetClosestLocalPeers returns the peers of the local routing table closest to
// target.
func (n *Network) GetClosestLocalPeers(ctx context.Context, target protocol.XorName) (peers.IDSet, error) {
	sender, receiver := oneshot.New[peers.IDSet]()
	return call(ctx, n, &GetClosestLocalPeersCmd{Target: target, Sender: sender}, receiver)
}

// SendRequest sends req to peer and waits for the response. peer may be the
// local peer.
func (n *Network) SendRequest(ctx context.Context, req messages.Request, peer peers.ID) (messages.Response, error) {
	sender, receiver := oneshot.New[ResponseResult]()

	res, err := call(ctx, n, &SendRequestCmd{Request: req, Peer: peer, Sender: sender}, receiver)
	if err != nil {
		return messages.Response{}, err
	}
	return res.Response, res.Err
}

// SendResponse answers the request ch came with.
func (n *Network) SendResponse(ctx context.Context, resp messages.Response, ch MsgResponder) error {
	return n.send(ctx, &SendResponseCmd{Response: resp, Channel: ch})
}

// GetSwarmLocalState returns a snapshot of the swarm.
func (n *Network) GetSwarmLocalState(ctx context.Context) (SwarmLocalState, error) {
	sender, receiver := oneshot.New[SwarmLocalState]()
	return call(ctx, n, &GetSwarmLocalStateCmd{Sender: sender}, receiver)
}

// PutRecord stores r on the network. It returns once the command is queued;
// the outcome of the replication is not reported.
func (n *Network) PutRecord(ctx context.Context, r kad.Record) error {
	return n.send(ctx, &PutRecordCmd{Record: r})
}

// GetRecord fetches the record stored under key. The returned error only
// reports a failure to run the query; a record that could not be found is
// reported by the Err field of the QueryResponse.
func (n *Network) GetRecord(ctx context.Context, key []byte) (messages.QueryResponse, error) {
	sender, receiver := oneshot.New[messages.QueryResponse]()
	return call(ctx, n, &GetRecordCmd{Key: key, Sender: sender}, receiver)
}

// send queues cmd.
func (n *Network) send(ctx context.Context, cmd SwarmCmd) error {
	select {
	case <-n.shutdownCh:
		return ErrNetworkShutdown
	default:
	}

	select {
	case n.cmdCh <- cmd:
		return nil
	case <-n.shutdownCh:
		return ErrNetworkShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call queues cmd and waits for its outcome on receiver.
func call[T any](ctx context.Context, n *Network, cmd SwarmCmd, receiver *oneshot.Receiver[T]) (T, error) {
	var zero T

	if err := n.send(ctx, cmd); err != nil {
		return zero, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-n.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	v, err := receiver.Recv(ctx)
	if err == nil {
		return v, nil
	}

	select {
	case <-n.shutdownCh:
		if errors.Is(err, context.Canceled) || errors.Is(err, oneshot.ErrClosed) {
			return zero, ErrNetworkShutdown
		}
	default:
	}

	return zero, err
}
