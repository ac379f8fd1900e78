package swarm

import (
	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/net"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol/messages"
)

// Notification is posted by the background work of the swarm on the channel
// returned by Notifications. It must be handed back to Process.
type Notification interface {
	swarmNotification()
}

type kadNotification struct {
	n kad.Notification
}

type inboundRPC struct {
	rpc net.RPC
}

type dialDone struct {
	peer peers.ID
	addr ma.Multiaddr
	info *peers.Peer
	err  error
}

type requestDone struct {
	id   RequestID
	peer peers.ID
	resp messages.Response
	err  error
}

func (*kadNotification) swarmNotification() {}
func (*inboundRPC) swarmNotification()      {}
func (*dialDone) swarmNotification()        {}
func (*requestDone) swarmNotification()     {}
