package network

import (
	"context"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/common/oneshot"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol"
	"github.com/safenetwork/safenode/src/protocol/messages"
	"github.com/sirupsen/logrus"
)

// SwarmCmd is a command submitted to the SwarmDriver. The set of commands is
// closed; every variant is defined in this file.
type SwarmCmd interface {
	// abandon drops the completion handle of the command, if any, without a
	// value.
	abandon()
}

// StartListeningCmd starts listening on Addr.
type StartListeningCmd struct {
	Addr   ma.Multiaddr
	Sender *oneshot.Sender[error]
}

// DialCmd connects to Peer at Addr. Addr must not carry the /p2p component.
type DialCmd struct {
	Peer   peers.ID
	Addr   ma.Multiaddr
	Sender *oneshot.Sender[error]
}

// GetClosestPeersCmd looks up the peers of the network closest to Target.
type GetClosestPeersCmd struct {
	Target protocol.XorName
	Sender *oneshot.Sender[peers.IDSet]
}

// GetClosestLocalPeersCmd returns the peers of the local routing table closest
// to Target.
type GetClosestLocalPeersCmd struct {
	Target protocol.XorName
	Sender *oneshot.Sender[peers.IDSet]
}

// SendRequestCmd sends Request to Peer, which may be the local peer.
type SendRequestCmd struct {
	Request messages.Request
	Peer    peers.ID
	Sender  *oneshot.Sender[ResponseResult]
}

// SendResponseCmd answers the request Channel came with.
type SendResponseCmd struct {
	Response messages.Response
	Channel  MsgResponder
}

// GetSwarmLocalStateCmd takes a snapshot of the swarm state.
type GetSwarmLocalStateCmd struct {
	Sender *oneshot.Sender[SwarmLocalState]
}

// PutRecordCmd stores Record on the network. It requires every replica to
// acknowledge, and its outcome is not reported.
type PutRecordCmd struct {
	Record kad.Record
}

// GetRecordCmd fetches the record stored under Key.
type GetRecordCmd struct {
	Key    []byte
	Sender *oneshot.Sender[messages.QueryResponse]
}

func (c *StartListeningCmd) abandon()       { c.Sender.Close() }
func (c *DialCmd) abandon()                 { c.Sender.Close() }
func (c *GetClosestPeersCmd) abandon()      { c.Sender.Close() }
func (c *GetClosestLocalPeersCmd) abandon() { c.Sender.Close() }
func (c *SendRequestCmd) abandon()          { c.Sender.Close() }
func (c *SendResponseCmd) abandon()         { c.Channel.abandon() }
func (c *GetSwarmLocalStateCmd) abandon()   { c.Sender.Close() }
func (c *PutRecordCmd) abandon()            {}
func (c *GetRecordCmd) abandon()            { c.Sender.Close() }

// ResponseResult is the outcome of a SendRequestCmd.
type ResponseResult struct {
	Response messages.Response
	Err      error
}

// SwarmLocalState is a snapshot of the swarm. It shares no memory with the
// swarm.
type SwarmLocalState struct {
	// ConnectedPeers are the peers currently reachable.
	ConnectedPeers []peers.ID
	// Listeners are the addresses we listen on.
	Listeners []ma.Multiaddr
}

// handleCmd performs cmd. It is only called from Run, one command at a time,
// and is the only place where the pending tables get new entries.
func (d *SwarmDriver) handleCmd(ctx context.Context, cmd SwarmCmd) error {
	switch cmd := cmd.(type) {
	case *GetRecordCmd:
		id := d.swarm.GetRecord(cmd.Key)
		return pend(cmd, d.pendingQuery.insert(id, cmd.Sender))

	case *PutRecordCmd:
		// Records are never removed from the local store.
		_, err := d.swarm.PutRecord(cmd.Record, kad.QuorumAll)
		return err

	case *StartListeningCmd:
		_, err := d.swarm.ListenOn(cmd.Addr)
		complete(d.logger, cmd.Sender, err)

	case *DialCmd:
		if d.pendingDial.contains(cmd.Peer) {
			d.logger.WithField("peer", cmd.Peer.ShortString()).Warn("Already dialing peer")
			cmd.abandon()
			return nil
		}

		d.swarm.AddAddress(cmd.Peer, cmd.Addr)

		full, err := cmd.Peer.Multiaddr(cmd.Addr)
		if err == nil {
			err = d.swarm.Dial(full)
		}

		if err != nil {
			complete(d.logger, cmd.Sender, err)
			return nil
		}

		return pend(cmd, d.pendingDial.insert(cmd.Peer, cmd.Sender))

	case *GetClosestPeersCmd:
		id := d.swarm.GetClosestPeers(cmd.Target.Bytes())
		return pend(cmd, d.pendingGetClosestPeers.insert(id, &closestPeersQuery{
			sender: cmd.Sender,
			peers:  peers.NewIDSet(),
		}))

	case *GetClosestLocalPeersCmd:
		closest := peers.NewIDSet(d.swarm.GetClosestLocalPeers(cmd.Target.Bytes())...)
		complete(d.logger, cmd.Sender, closest)

	case *SendRequestCmd:
		// A request to ourselves goes straight to the upper layer, which
		// answers it through the FromSelf responder.
		if cmd.Peer == d.local {
			d.logger.WithField("request", cmd.Request).Debug("Sending request to self")
			err := d.sendEvent(ctx, RequestReceived{
				Request: cmd.Request,
				Channel: &FromSelf{Sender: cmd.Sender},
			})
			if err != nil {
				cmd.abandon()
			}
			return err
		}

		d.logger.WithFields(logrus.Fields{
			"request": cmd.Request,
			"peer":    cmd.Peer.ShortString(),
		}).Debug("Sending request to peer")

		id := d.swarm.SendRequest(cmd.Peer, cmd.Request)
		return pend(cmd, d.pendingRequests.insert(id, cmd.Sender))

	case *SendResponseCmd:
		switch ch := cmd.Channel.(type) {
		case *FromSelf:
			d.logger.Debug("Sending response to self")
			if err := ch.Sender.Send(ResponseResult{Response: cmd.Response}); err != nil {
				return ErrInternalMsgChannelDropped
			}
		case *FromPeer:
			if err := d.swarm.SendResponse(ch.Channel, cmd.Response); err != nil {
				return &OutgoingResponseDroppedError{Response: cmd.Response, Err: err}
			}
		default:
			return fmt.Errorf("unknown responder %T", cmd.Channel)
		}

	case *GetSwarmLocalStateCmd:
		state := SwarmLocalState{
			ConnectedPeers: append([]peers.ID(nil), d.swarm.ConnectedPeers()...),
			Listeners:      append([]ma.Multiaddr(nil), d.swarm.Listeners()...),
		}

		if err := cmd.Sender.Send(state); err != nil {
			return ErrInternalMsgChannelDropped
		}

	default:
		return fmt.Errorf("unknown command %T", cmd)
	}

	return nil
}

// pend abandons cmd when its pending entry could not be recorded, so that its
// caller does not wait for an event that will never complete it.
func pend(cmd SwarmCmd, err error) error {
	if err != nil {
		cmd.abandon()
	}
	return err
}

// complete sends v on s. A caller that stopped waiting is not an error.
func complete[T any](logger *logrus.Entry, s *oneshot.Sender[T], v T) {
	if err := s.Send(v); err != nil {
		logger.WithError(err).Debug("Completion not delivered")
	}
}
