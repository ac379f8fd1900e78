package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/net"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol/messages"
	"github.com/safenetwork/safenode/src/version"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const notificationBuffer = 256

// Config ...
type Config struct {
	Kad kad.Config

	// DialTimeout bounds the identify handshake that follows a dial.
	DialTimeout time.Duration

	// RequestTimeout bounds an outbound application request.
	RequestTimeout time.Duration
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		Kad:            kad.DefaultConfig(),
		DialTimeout:    10 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Swarm is the network stack of a node: it owns the transport, the Kademlia
// behaviour and the request/response protocol.
//
// Apart from Notifications and Close, the methods of a Swarm must be called
// from a single goroutine, the one that owns it. Network I/O runs in
// background goroutines, whose outcomes are posted on the Notifications
// channel and applied by Process. Events are collected with NextEvent.
type Swarm struct {
	conf  Config
	local peers.ID
	trans net.Transport
	store kad.RecordStore
	kad   *kad.Behaviour

	connected     peers.IDSet
	events        []Event
	nextRequestID RequestID

	notifyCh   chan Notification
	shutdownCh chan struct{}
	closeOnce  sync.Once

	logger *logrus.Entry
}

// New creates a Swarm for the local peer and starts consuming the RPCs of
// trans. The swarm takes ownership of trans and store.
func New(
	local peers.ID,
	trans net.Transport,
	store kad.RecordStore,
	conf Config,
	logger *logrus.Entry,
) *Swarm {
	s := &Swarm{
		conf:       conf,
		local:      local,
		trans:      trans,
		store:      store,
		connected:  peers.NewIDSet(),
		notifyCh:   make(chan Notification, notificationBuffer),
		shutdownCh: make(chan struct{}),
		logger:     logger.WithField("peer", local.ShortString()),
	}

	s.kad = kad.NewBehaviour(
		local,
		store,
		&messenger{trans: trans, info: s.localInfo},
		func(n kad.Notification) { s.notify(&kadNotification{n: n}) },
		conf.Kad,
		s.logger,
	)

	go s.consumeRPCs()

	return s
}

// LocalPeerID returns the ID of the local peer.
func (s *Swarm) LocalPeerID() peers.ID {
	return s.local
}

// Notifications returns the channel background work posts to. It is safe to
// call from any goroutine.
func (s *Swarm) Notifications() <-chan Notification {
	return s.notifyCh
}

// ListenOn starts listening on addr and returns the bound address.
func (s *Swarm) ListenOn(addr ma.Multiaddr) (ma.Multiaddr, error) {
	bound, err := s.trans.Listen(addr)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("addr", bound).Info("Listening")
	return bound, nil
}

// Listeners returns the addresses the swarm listens on.
func (s *Swarm) Listeners() []ma.Multiaddr {
	return s.trans.Listeners()
}

// ConnectedPeers returns the peers we exchanged with, sorted.
func (s *Swarm) ConnectedPeers() []peers.ID {
	return s.connected.Slice()
}

// AddAddress records addr as an address of id in the routing table.
func (s *Swarm) AddAddress(id peers.ID, addr ma.Multiaddr) kad.RoutingUpdate {
	return s.kad.AddAddress(id, addr)
}

// Dial connects to the peer named by the /p2p component of addr. The outcome
// is reported by a ConnectionEstablished or OutgoingConnectionError event.
func (s *Swarm) Dial(addr ma.Multiaddr) error {
	transport, id, err := peers.SplitAddr(addr)
	if err != nil {
		return err
	}

	if id == s.local {
		return ErrDialSelf
	}

	args := net.IdentifyRequest{From: s.localInfo(), ProtocolVersion: version.ProtocolVersion}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.conf.DialTimeout)
		defer cancel()

		n := &dialDone{peer: id, addr: transport}

		var resp net.IdentifyResponse
		if err := s.trans.Identify(ctx, transport, &args, &resp); err != nil {
			n.err = err
		} else if resp.ProtocolVersion != version.ProtocolVersion {
			n.err = &ProtocolMismatchError{Local: version.ProtocolVersion, Remote: resp.ProtocolVersion}
		} else if n.info, n.err = resp.Peer.Peer(); n.err == nil && n.info.ID != id {
			n.err = &WrongPeerError{Expected: id, Got: n.info.ID}
		}

		s.notify(n)
	}()

	return nil
}

// GetClosestPeers starts a network lookup of the peers closest to key.
func (s *Swarm) GetClosestPeers(key []byte) kad.QueryID {
	return s.kad.GetClosestPeers(key)
}

// GetClosestLocalPeers returns the peers of the routing table closest to key.
func (s *Swarm) GetClosestLocalPeers(key []byte) []peers.ID {
	closest := s.kad.ClosestLocalPeers(key)
	ids := make([]peers.ID, 0, len(closest))
	for _, p := range closest {
		ids = append(ids, p.ID)
	}
	return ids
}

// PutRecord stores r locally and replicates it to the closest peers.
func (s *Swarm) PutRecord(r kad.Record, quorum kad.Quorum) (kad.QueryID, error) {
	return s.kad.PutRecord(r, quorum)
}

// GetRecord starts a lookup of the record stored under key.
func (s *Swarm) GetRecord(key []byte) kad.QueryID {
	return s.kad.GetRecord(key)
}

// SendRequest sends req to peer. The outcome is reported by a
// ResponseReceived or OutboundFailure event carrying the returned id.
func (s *Swarm) SendRequest(peer peers.ID, req messages.Request) RequestID {
	s.nextRequestID++
	id := s.nextRequestID

	p, ok := s.kad.Peer(peer)
	if !ok || len(p.Addrs) == 0 {
		s.events = append(s.events, OutboundFailure{
			Peer:      peer,
			RequestID: id,
			Err:       ErrNoAddress,
		})
		return id
	}

	args := net.AppRequest{From: s.localInfo(), Request: req}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.conf.RequestTimeout)
		defer cancel()

		n := &requestDone{id: id, peer: peer}

		for _, addr := range p.Addrs {
			var resp net.AppResponse
			err := s.trans.Request(ctx, addr, &args, &resp)
			if err == nil {
				n.resp, n.err = resp.Response, nil
				break
			}
			n.err = multierr.Append(n.err, err)
		}

		s.notify(n)
	}()

	return id
}

// SendResponse answers the inbound request of ch.
func (s *Swarm) SendResponse(ch *ResponseChannel, resp messages.Response) error {
	return ch.send(resp)
}

// RoutingTableSize returns the number of peers in the routing table.
func (s *Swarm) RoutingTableSize() int {
	return s.kad.RoutingTableSize()
}

// RecordCount returns the number of records in the local store.
func (s *Swarm) RecordCount() int {
	return s.store.Len()
}

// NextEvent returns the oldest pending event.
func (s *Swarm) NextEvent() (Event, bool) {
	for {
		ev, ok := s.kad.PollEvent()
		if !ok {
			break
		}
		if rr, ok := ev.(kad.RoutingPeerRemoved); ok {
			s.connected.Remove(rr.Peer)
		}
		s.events = append(s.events, ev)
	}

	if len(s.events) == 0 {
		return nil, false
	}

	ev := s.events[0]
	s.events[0] = nil
	s.events = s.events[1:]
	return ev, true
}

// Process applies a notification received from Notifications.
func (s *Swarm) Process(n Notification) {
	switch n := n.(type) {
	case *kadNotification:
		s.kad.HandleNotification(n.n)
	case *inboundRPC:
		s.processRPC(n.rpc)
	case *dialDone:
		s.processDial(n)
	case *requestDone:
		s.processResponse(n)
	}
}

// Close stops the swarm and releases the transport and the record store.
func (s *Swarm) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.shutdownCh)
		s.kad.Close()
		err = multierr.Combine(
			s.trans.Close(),
			s.store.Close(),
		)
	})
	return err
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

// notify posts n unless the swarm is closed. It may be called from any
// goroutine.
func (s *Swarm) notify(n Notification) {
	select {
	case s.notifyCh <- n:
	case <-s.shutdownCh:
	}
}

func (s *Swarm) consumeRPCs() {
	for {
		select {
		case rpc := <-s.trans.Consumer():
			s.notify(&inboundRPC{rpc: rpc})
		case <-s.shutdownCh:
			return
		}
	}
}

// localInfo describes the local peer to remote peers. It may be called from
// any goroutine.
func (s *Swarm) localInfo() net.PeerInfo {
	return net.NewPeerInfo(peers.NewPeer(s.local, s.trans.Listeners()...))
}

// observe records the sender of an inbound RPC.
func (s *Swarm) observe(from net.PeerInfo) (peers.ID, error) {
	p, err := from.Peer()
	if err != nil {
		return "", err
	}

	if p.ID == s.local {
		return "", ErrDialSelf
	}

	s.kad.AddPeer(p)

	if !s.connected.Contains(p.ID) {
		s.connected.Add(p.ID)

		var endpoint ma.Multiaddr
		if len(p.Addrs) > 0 {
			endpoint = p.Addrs[0]
		}
		s.events = append(s.events, ConnectionEstablished{Peer: p.ID, Endpoint: endpoint})
	}

	return p.ID, nil
}

// disconnect forgets a peer that could not be reached: it is no longer
// connected and leaves the routing table.
func (s *Swarm) disconnect(id peers.ID) {
	connected := s.connected.Contains(id)
	s.connected.Remove(id)

	if s.kad.RemovePeer(id) || connected {
		s.logger.WithField("to", id.ShortString()).Debug("Peer unreachable, disconnecting")
	}
}

func (s *Swarm) processRPC(rpc net.RPC) {
	var err error

	switch cmd := rpc.Command.(type) {
	case *net.IdentifyRequest:
		if cmd.ProtocolVersion != version.ProtocolVersion {
			err = &ProtocolMismatchError{Local: version.ProtocolVersion, Remote: cmd.ProtocolVersion}
		} else if _, err = s.observe(cmd.From); err == nil {
			err = rpc.Respond(&net.IdentifyResponse{Peer: s.localInfo(), ProtocolVersion: version.ProtocolVersion}, nil)
		}
	case *net.FindNodeRequest:
		var from peers.ID
		if from, err = s.observe(cmd.From); err == nil {
			closer := s.kad.HandleFindNode(from, cmd.Key)
			err = rpc.Respond(&net.FindNodeResponse{Closer: net.NewPeerInfos(closer)}, nil)
		}
	case *net.GetRecordRequest:
		var from peers.ID
		if from, err = s.observe(cmd.From); err == nil {
			resp := &net.GetRecordResponse{}
			r, closer := s.kad.HandleGetRecord(from, cmd.Key)
			if r != nil {
				w := toWireRecord(*r)
				resp.Record = &w
			}
			resp.Closer = net.NewPeerInfos(closer)
			err = rpc.Respond(resp, nil)
		}
	case *net.PutRecordRequest:
		var from peers.ID
		if from, err = s.observe(cmd.From); err == nil {
			storeErr := s.kad.HandlePutRecord(from, fromWireRecord(cmd.Record))
			err = rpc.Respond(&net.PutRecordResponse{Stored: storeErr == nil}, storeErr)
		}
	case *net.AppRequest:
		var from peers.ID
		if from, err = s.observe(cmd.From); err == nil {
			s.events = append(s.events, RequestReceived{
				Peer:    from,
				Request: cmd.Request,
				Channel: NewResponseChannel(rpc, from),
			})
			return
		}
	default:
		err = fmt.Errorf("unexpected command %T", rpc.Command)
	}

	if err != nil {
		s.logger.WithError(err).Debug("Failed to process RPC")
		rpc.Respond(nil, err)
	}
}

func (s *Swarm) processDial(n *dialDone) {
	if n.err != nil {
		s.disconnect(n.peer)
		s.events = append(s.events, OutgoingConnectionError{Peer: n.peer, Err: n.err})
		return
	}

	s.kad.AddAddress(n.peer, n.addr)
	s.connected.Add(n.peer)

	s.events = append(s.events, ConnectionEstablished{Peer: n.peer, Endpoint: n.addr})
}

func (s *Swarm) processResponse(n *requestDone) {
	if n.err != nil {
		s.disconnect(n.peer)
		s.events = append(s.events, OutboundFailure{
			Peer:      n.peer,
			RequestID: n.id,
			Err:       n.err,
		})
		return
	}

	s.connected.Add(n.peer)

	s.events = append(s.events, ResponseReceived{
		Peer:      n.peer,
		RequestID: n.id,
		Response:  n.resp,
	})
}
