package swarm

import (
	"github.com/safenetwork/safenode/src/net"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol/messages"
)

// ResponseChannel answers one inbound request. It is used on the goroutine
// driving the swarm.
type ResponseChannel struct {
	rpc  net.RPC
	peer peers.ID
	sent bool
}

// NewResponseChannel returns the channel answering rpc, an inbound request of
// peer.
func NewResponseChannel(rpc net.RPC, peer peers.ID) *ResponseChannel {
	return &ResponseChannel{
		rpc:  rpc,
		peer: peer,
	}
}

// Peer returns the peer the response goes to.
func (c *ResponseChannel) Peer() peers.ID {
	return c.peer
}

// IsOpen reports whether a response can still be sent.
func (c *ResponseChannel) IsOpen() bool {
	if c.sent {
		return false
	}
	select {
	case <-c.rpc.Done():
		return false
	default:
		return true
	}
}

func (c *ResponseChannel) send(resp messages.Response) error {
	if c.sent {
		return ErrResponseAlreadySent
	}
	c.sent = true

	switch err := c.rpc.Respond(&net.AppResponse{Response: resp}, nil); err {
	case nil:
		return nil
	case net.ErrRPCAbandoned:
		return ErrResponseChannelClosed
	default:
		return err
	}
}
