package swarm

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol/messages"
)

var (
	// ErrDialSelf is returned when asked to dial the local peer.
	ErrDialSelf = errors.New("dial to self attempted")

	// ErrNoAddress is reported when a request targets a peer without a known
	// address.
	ErrNoAddress = errors.New("no known address for peer")

	// ErrResponseAlreadySent is returned when a ResponseChannel is used twice.
	ErrResponseAlreadySent = errors.New("response already sent")

	// ErrResponseChannelClosed is returned when the requester stopped waiting
	// for the response.
	ErrResponseChannelClosed = errors.New("response channel closed")

	// ErrSwarmClosed is returned by operations on a closed swarm.
	ErrSwarmClosed = errors.New("swarm closed")
)

// WrongPeerError is reported when the peer answering a dial is not the one
// named in the dialed address.
type WrongPeerError struct {
	Expected peers.ID
	Got      peers.ID
}

func (e *WrongPeerError) Error() string {
	return fmt.Sprintf("dialed peer %s but reached %s", e.Expected, e.Got)
}

// ProtocolMismatchError is reported when a peer speaks another protocol
// version.
type ProtocolMismatchError struct {
	Local  string
	Remote string
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("protocol mismatch: local %s, remote %s", e.Local, e.Remote)
}

// RequestID identifies an outbound request until its response or failure is
// reported.
type RequestID uint64

// Event is reported by Swarm.NextEvent. Besides the event types of this
// package, the swarm passes on kad.QueryProgressed and kad.RoutingUpdated.
type Event interface{}

// ConnectionEstablished is reported when a dial succeeds, and when a peer
// reaches us for the first time.
type ConnectionEstablished struct {
	Peer     peers.ID
	Endpoint ma.Multiaddr
}

// OutgoingConnectionError is reported when a dial fails.
type OutgoingConnectionError struct {
	Peer peers.ID
	Err  error
}

// RequestReceived carries an inbound application request. It must be
// answered through Channel.
type RequestReceived struct {
	Peer    peers.ID
	Request messages.Request
	Channel *ResponseChannel
}

// ResponseReceived carries the response to the outbound request RequestID.
type ResponseReceived struct {
	Peer      peers.ID
	RequestID RequestID
	Response  messages.Response
}

// OutboundFailure reports that the outbound request RequestID will never be
// answered.
type OutboundFailure struct {
	Peer      peers.ID
	RequestID RequestID
	Err       error
}
