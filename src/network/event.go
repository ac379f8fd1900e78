package network

import (
	"context"
	"errors"

	"github.com/safenetwork/safenode/src/common/oneshot"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol/messages"
	"github.com/safenetwork/safenode/src/swarm"
	"github.com/sirupsen/logrus"
)

// MsgResponder answers a single inbound request, either to the local peer
// (FromSelf) or to a remote one (FromPeer).
type MsgResponder interface {
	abandon()
}

// FromSelf answers a request the local peer sent to itself.
type FromSelf struct {
	Sender *oneshot.Sender[ResponseResult]
}

// FromPeer answers a request received from a remote peer.
type FromPeer struct {
	Channel *swarm.ResponseChannel
}

func (r *FromSelf) abandon() { r.Sender.Close() }

// The transport fails the request by itself once it stops waiting.
func (r *FromPeer) abandon() {}

// NetworkEvent is delivered to the upper layer on the channel returned by
// NewSwarmDriver.
type NetworkEvent interface {
	networkEvent()
}

// RequestReceived carries an inbound request. Channel must be answered exactly
// once with Network.SendResponse.
type RequestReceived struct {
	Request messages.Request
	Channel MsgResponder
}

// PeerAdded is emitted when a new peer enters the routing table.
type PeerAdded struct {
	Peer peers.ID
}

func (RequestReceived) networkEvent() {}
func (PeerAdded) networkEvent()       {}

// closestPeersQuery accumulates the peers reported by the progress events of
// a closest peers lookup until the last one.
type closestPeersQuery struct {
	sender *oneshot.Sender[peers.IDSet]
	peers  peers.IDSet
}

// sendEvent hands ev to the upper layer. It blocks until the event is taken
// or ctx is done.
func (d *SwarmDriver) sendEvent(ctx context.Context, ev NetworkEvent) error {
	select {
	case d.eventCh <- ev:
		return nil
	case <-ctx.Done():
		return ErrNetworkShutdown
	}
}

// handleSwarmEvent completes the pending operation ev belongs to, or forwards
// ev to the upper layer. Events of operations that are no longer pending are
// dropped.
func (d *SwarmDriver) handleSwarmEvent(ctx context.Context, ev swarm.Event) error {
	switch ev := ev.(type) {
	case swarm.ConnectionEstablished:
		d.logger.WithField("peer", ev.Peer.ShortString()).Debug("Connection established")
		if sender, ok := d.pendingDial.remove(ev.Peer); ok {
			complete[error](d.logger, sender, nil)
		}

	case swarm.OutgoingConnectionError:
		d.logger.WithField("peer", ev.Peer.ShortString()).WithError(ev.Err).Debug("Outgoing connection error")
		if sender, ok := d.pendingDial.remove(ev.Peer); ok {
			complete(d.logger, sender, ev.Err)
		}

	case swarm.RequestReceived:
		if !ev.Channel.IsOpen() {
			d.logger.WithField("peer", ev.Peer.ShortString()).Debug("Requester stopped waiting, dropping request")
			return nil
		}
		return d.sendEvent(ctx, RequestReceived{
			Request: ev.Request,
			Channel: &FromPeer{Channel: ev.Channel},
		})

	case swarm.ResponseReceived:
		if sender, ok := d.pendingRequests.remove(ev.RequestID); ok {
			complete(d.logger, sender, ResponseResult{Response: ev.Response})
		} else {
			d.logger.WithField("request_id", ev.RequestID).Debug("Response for unknown request")
		}

	case swarm.OutboundFailure:
		if sender, ok := d.pendingRequests.remove(ev.RequestID); ok {
			complete(d.logger, sender, ResponseResult{Err: ev.Err})
		} else {
			d.logger.WithField("request_id", ev.RequestID).Debug("Failure for unknown request")
		}

	case kad.QueryProgressed:
		d.handleQueryProgressed(ev)

	case kad.RoutingUpdated:
		if ev.IsNewPeer {
			return d.sendEvent(ctx, PeerAdded{Peer: ev.Peer})
		}

	case kad.RoutingPeerRemoved:
		d.logger.WithField("peer", ev.Peer.ShortString()).Debug("Peer removed from routing table")

	default:
		d.logger.Debugf("Unhandled swarm event %T", ev)
	}

	return nil
}

func (d *SwarmDriver) handleQueryProgressed(ev kad.QueryProgressed) {
	logger := d.logger.WithFields(logrus.Fields{
		"query_id": ev.ID,
		"step":     ev.Step.Count,
		"last":     ev.Step.Last,
	})

	switch res := ev.Result.(type) {
	case kad.GetClosestPeersResult:
		q, ok := d.pendingGetClosestPeers.get(ev.ID)
		if !ok {
			logger.Debug("Progress of unknown closest peers query")
			return
		}

		for _, p := range res.Peers {
			q.peers.Add(p)
		}

		if !ev.Step.Last {
			return
		}

		if res.Err != nil {
			logger.WithError(res.Err).Debug("Closest peers query ended early")
		}

		d.pendingGetClosestPeers.remove(ev.ID)
		complete(d.logger, q.sender, q.peers)

	case kad.GetRecordResult:
		sender, ok := d.pendingQuery.remove(ev.ID)
		if !ok {
			logger.Debug("Result of unknown record query")
			return
		}

		resp := messages.QueryResponse{Key: res.Key}
		switch {
		case res.Record != nil:
			resp.Value = res.Record.Value
		case errors.Is(res.Err, kad.ErrNotFound):
			resp.Err = ErrRecordNotFound
		case res.Err != nil:
			resp.Err = res.Err
		default:
			resp.Err = ErrRecordNotFound
		}

		complete(d.logger, sender, resp)

	case kad.PutRecordResult:
		if res.Err != nil {
			logger.WithError(res.Err).Warn("Record not replicated")
		} else {
			logger.WithField("replicas", res.Success).Debug("Record replicated")
		}
	}
}
