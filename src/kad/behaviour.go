package kad

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	cm "github.com/safenetwork/safenode/src/common"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config holds the Kademlia parameters.
type Config struct {
	// ReplicationFactor is the bucket size and the number of closest peers a
	// lookup converges on.
	ReplicationFactor int

	// Alpha is the number of RPCs a query keeps in flight.
	Alpha int

	// QueryTimeout bounds the duration of a whole query.
	QueryTimeout time.Duration

	// MaxRPCFailures is the number of query RPCs in a row a peer may fail
	// before it is dropped from the routing table.
	MaxRPCFailures int
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		ReplicationFactor: 20,
		Alpha:             3,
		QueryTimeout:      10 * time.Second,
		MaxRPCFailures:    2,
	}
}

// Messenger sends Kademlia RPCs to remote peers. It is called from background
// goroutines and must be safe for concurrent use.
type Messenger interface {
	FindNode(ctx context.Context, to *peers.Peer, key []byte) ([]*peers.Peer, error)
	GetRecord(ctx context.Context, to *peers.Peer, key []byte) (*Record, []*peers.Peer, error)
	PutRecord(ctx context.Context, to *peers.Peer, r Record) error
}

// Notification carries the outcome of background work back to the Behaviour.
// It must be passed to HandleNotification on the goroutine driving the
// Behaviour.
type Notification interface {
	kadNotification()
}

type rpcDone struct {
	query  QueryID
	peer   peers.ID
	closer []*peers.Peer
	record *Record
	err    error
}

type putDone struct {
	query     QueryID
	success   int
	contacted int
	err       error
}

type queryTimedOut struct {
	query QueryID
}

func (*rpcDone) kadNotification()       {}
func (*putDone) kadNotification()       {}
func (*queryTimedOut) kadNotification() {}

// Behaviour implements the Kademlia protocol on top of a routing table and a
// record store: it runs iterative queries and answers inbound RPCs.
//
// Behaviour is not safe for concurrent use. Every method must be called from
// the same goroutine, which also receives the Notifications posted by the
// background work and hands them back through HandleNotification.
type Behaviour struct {
	conf      Config
	local     peers.ID
	table     *RoutingTable
	store     RecordStore
	messenger Messenger
	post      func(Notification)

	queries  map[QueryID]*query
	nextID   QueryID
	events   []Event
	failures map[peers.ID]int

	ctx    context.Context
	cancel context.CancelFunc

	logger *logrus.Entry
}

// NewBehaviour creates a Behaviour for the local peer. post is called from
// background goroutines to deliver Notifications.
func NewBehaviour(
	local peers.ID,
	store RecordStore,
	messenger Messenger,
	post func(Notification),
	conf Config,
	logger *logrus.Entry,
) *Behaviour {
	ctx, cancel := context.WithCancel(context.Background())
	return &Behaviour{
		conf:      conf,
		local:     local,
		table:     NewRoutingTable(local, conf.ReplicationFactor),
		store:     store,
		messenger: messenger,
		post:      post,
		queries:   make(map[QueryID]*query),
		failures:  make(map[peers.ID]int),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.WithField("component", "kad"),
	}
}

// AddAddress records addr as an address of id.
func (b *Behaviour) AddAddress(id peers.ID, addr ma.Multiaddr) RoutingUpdate {
	update, isNew := b.table.AddAddress(id, addr)
	if isNew {
		p, _ := b.table.Peer(id)
		b.emit(RoutingUpdated{
			Peer:      id,
			Addresses: p.Addrs,
			IsNewPeer: true,
		})
	}
	return update
}

// AddPeer records every address of p.
func (b *Behaviour) AddPeer(p *peers.Peer) RoutingUpdate {
	if len(p.Addrs) == 0 {
		return b.AddAddress(p.ID, nil)
	}

	var update RoutingUpdate
	for _, addr := range p.Addrs {
		update = b.AddAddress(p.ID, addr)
	}
	return update
}

// RemovePeer drops id from the routing table. A RoutingPeerRemoved event is
// emitted if id was in the table.
func (b *Behaviour) RemovePeer(id peers.ID) bool {
	delete(b.failures, id)

	if !b.table.Remove(id) {
		return false
	}

	b.emit(RoutingPeerRemoved{Peer: id})
	return true
}

// Peer returns the routing table entry of id.
func (b *Behaviour) Peer(id peers.ID) (*peers.Peer, bool) {
	return b.table.Peer(id)
}

// RoutingTableSize returns the number of peers in the routing table.
func (b *Behaviour) RoutingTableSize() int {
	return b.table.Len()
}

// ClosestLocalPeers returns the peers of the routing table closest to the key
// derived from target. No network traffic is involved.
func (b *Behaviour) ClosestLocalPeers(target []byte) []*peers.Peer {
	return b.table.NearestPeers(KeyFromBytes(target), b.conf.ReplicationFactor)
}

// GetClosestPeers starts a lookup of the peers closest to the key derived from
// target.
func (b *Behaviour) GetClosestPeers(target []byte) QueryID {
	q := b.startQuery(closestPeersQuery, target)
	b.advance(q)
	return q.id
}

// GetRecord starts a lookup of the record stored under key. A record held by
// the local store completes the query at once.
func (b *Behaviour) GetRecord(key []byte) QueryID {
	q := b.startQuery(getRecordQuery, key)

	r, err := b.store.Get(key)
	if err == nil {
		b.finish(q, GetRecordResult{Key: key, Record: &r})
		return q.id
	}
	if !cm.IsStore(err, cm.KeyNotFound) {
		b.logger.WithError(err).Warn("GetRecord: local store")
	}

	b.advance(q)
	return q.id
}

// PutRecord stores r locally and starts replicating it to the closest peers.
// An error means the record could not be stored locally and no query was
// started.
func (b *Behaviour) PutRecord(r Record, quorum Quorum) (QueryID, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}

	if r.Publisher == "" {
		r.Publisher = b.local
	}

	if err := b.store.Put(r); err != nil {
		return 0, err
	}

	q := b.startQuery(putRecordQuery, r.Key)
	q.record = &r
	q.quorum = quorum

	b.advance(q)
	return q.id, nil
}

// PollEvent returns the oldest pending event.
func (b *Behaviour) PollEvent() (Event, bool) {
	if len(b.events) == 0 {
		return nil, false
	}
	ev := b.events[0]
	b.events[0] = nil
	b.events = b.events[1:]
	return ev, true
}

// HandleNotification advances the query n belongs to. Notifications of
// finished queries are dropped.
func (b *Behaviour) HandleNotification(n Notification) {
	switch n := n.(type) {
	case *rpcDone:
		b.onRPCDone(n)
	case *putDone:
		b.onPutDone(n)
	case *queryTimedOut:
		b.onTimeout(n)
	}
}

// ActiveQueries returns the number of queries in progress.
func (b *Behaviour) ActiveQueries() int {
	return len(b.queries)
}

// Close aborts the RPCs in flight and stops the query timers. Queries in
// progress never complete.
func (b *Behaviour) Close() {
	b.cancel()
	for id, q := range b.queries {
		q.timer.Stop()
		delete(b.queries, id)
	}
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
// Inbound RPCs

// HandleFindNode answers a FindNode RPC from a remote peer.
func (b *Behaviour) HandleFindNode(from peers.ID, target []byte) []*peers.Peer {
	return b.closerPeers(from, target)
}

// HandleGetRecord answers a GetRecord RPC. Peers that do not hold the record
// answer with the peers closest to it.
func (b *Behaviour) HandleGetRecord(from peers.ID, key []byte) (*Record, []*peers.Peer) {
	r, err := b.store.Get(key)
	if err == nil {
		return &r, nil
	}
	return nil, b.closerPeers(from, key)
}

// HandlePutRecord answers a PutRecord RPC.
func (b *Behaviour) HandlePutRecord(from peers.ID, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Publisher == "" {
		r.Publisher = from
	}
	return b.store.Put(r)
}

func (b *Behaviour) closerPeers(from peers.ID, target []byte) []*peers.Peer {
	nearest := b.table.NearestPeers(KeyFromBytes(target), b.conf.ReplicationFactor+1)
	_, others := peers.ExcludePeer(nearest, from)
	if len(others) > b.conf.ReplicationFactor {
		others = others[:b.conf.ReplicationFactor]
	}
	return others
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
// Queries

func (b *Behaviour) emit(ev Event) {
	b.events = append(b.events, ev)
}

func (b *Behaviour) startQuery(kind queryKind, target []byte) *query {
	b.nextID++
	q := newQuery(b.nextID, kind, target)

	for _, p := range b.table.NearestPeers(q.key, b.conf.ReplicationFactor) {
		q.addCandidate(p)
	}

	id := q.id
	q.timer = time.AfterFunc(b.conf.QueryTimeout, func() {
		b.post(&queryTimedOut{query: id})
	})

	b.queries[q.id] = q

	b.logger.WithFields(logrus.Fields{
		"query":      q.id,
		"kind":       kind,
		"candidates": len(q.candidates),
	}).Debug("Query started")

	return q
}

// advance keeps up to Alpha RPCs in flight to the closest candidates not yet
// contacted. The lookup is over once the ReplicationFactor closest candidates
// have all answered or failed.
func (b *Behaviour) advance(q *query) {
	if q.storing {
		return
	}

	for q.inflight < b.conf.Alpha {
		c := q.next(b.conf.ReplicationFactor)
		if c == nil {
			break
		}
		c.state = waiting
		q.inflight++
		b.sendRPC(q, c.peer)
	}

	if q.inflight == 0 {
		b.lookupDone(q)
	}
}

func (b *Behaviour) sendRPC(q *query, to *peers.Peer) {
	id, kind, target := q.id, q.kind, q.target

	go func() {
		ctx, cancel := context.WithTimeout(b.ctx, b.conf.QueryTimeout)
		defer cancel()

		n := &rpcDone{query: id, peer: to.ID}
		if kind == getRecordQuery {
			n.record, n.closer, n.err = b.messenger.GetRecord(ctx, to, target)
		} else {
			n.closer, n.err = b.messenger.FindNode(ctx, to, target)
		}
		b.post(n)
	}()
}

func (b *Behaviour) onRPCDone(n *rpcDone) {
	q, ok := b.queries[n.query]
	if !ok {
		return
	}

	c, ok := q.candidates[n.peer]
	if !ok || c.state != waiting {
		return
	}
	q.inflight--

	if n.err != nil {
		c.state = failed
		b.logger.WithFields(logrus.Fields{
			"query": q.id,
			"peer":  n.peer.ShortString(),
		}).WithError(n.err).Debug("Query RPC failed")
		b.rpcFailed(n.peer)
		b.advance(q)
		return
	}

	c.state = succeeded
	delete(b.failures, n.peer)
	b.AddPeer(c.peer)

	for _, p := range n.closer {
		if p.ID != b.local {
			q.addCandidate(p)
		}
	}

	switch q.kind {
	case closestPeersQuery:
		q.step++
		b.emit(QueryProgressed{
			ID: q.id,
			Result: GetClosestPeersResult{
				Key:   q.target,
				Peers: []peers.ID{n.peer},
			},
			Step: ProgressStep{Count: q.step},
		})
	case getRecordQuery:
		if n.record != nil && bytes.Equal(n.record.Key, q.target) {
			b.finish(q, GetRecordResult{Key: q.target, Record: n.record})
			return
		}
	}

	b.advance(q)
}

// rpcFailed counts a failed query RPC to id and drops id from the routing
// table once it failed MaxRPCFailures times in a row.
func (b *Behaviour) rpcFailed(id peers.ID) {
	if _, ok := b.table.Peer(id); !ok {
		return
	}

	b.failures[id]++
	if b.failures[id] < b.conf.MaxRPCFailures {
		return
	}

	b.logger.WithField("peer", id.ShortString()).Debug("Dropping unresponsive peer")
	b.RemovePeer(id)
}

// lookupDone is called once the lookup phase of q is over.
func (b *Behaviour) lookupDone(q *query) {
	closest := q.succeededPeers(b.conf.ReplicationFactor)

	switch q.kind {
	case closestPeersQuery:
		b.finish(q, GetClosestPeersResult{Key: q.target, Peers: peerIDs(closest)})
	case getRecordQuery:
		b.finish(q, GetRecordResult{Key: q.target, Err: ErrNotFound})
	case putRecordQuery:
		if len(closest) == 0 {
			b.finish(q, PutRecordResult{Key: q.target, Err: ErrNoPeers})
			return
		}
		q.storing = true
		b.replicate(q, closest)
	}
}

// replicate sends the record of q to every target at once, and posts a single
// notification when all of them answered.
func (b *Behaviour) replicate(q *query, targets []*peers.Peer) {
	id, r := q.id, *q.record

	go func() {
		ctx, cancel := context.WithTimeout(b.ctx, b.conf.QueryTimeout)
		defer cancel()

		var success int32
		var g errgroup.Group
		for _, p := range targets {
			p := p
			g.Go(func() error {
				if err := b.messenger.PutRecord(ctx, p, r); err != nil {
					return err
				}
				atomic.AddInt32(&success, 1)
				return nil
			})
		}
		err := g.Wait()

		b.post(&putDone{
			query:     id,
			success:   int(atomic.LoadInt32(&success)),
			contacted: len(targets),
			err:       err,
		})
	}()
}

func (b *Behaviour) onPutDone(n *putDone) {
	q, ok := b.queries[n.query]
	if !ok {
		return
	}

	if n.err != nil {
		b.logger.WithField("query", q.id).WithError(n.err).Debug("Replication RPC failed")
	}

	if required := q.quorum.Eval(n.contacted); n.success < required {
		b.finish(q, PutRecordResult{
			Key:     q.target,
			Success: n.success,
			Err: &QuorumFailedError{
				Quorum:    q.quorum,
				Success:   n.success,
				Contacted: n.contacted,
			},
		})
		return
	}

	b.finish(q, PutRecordResult{Key: q.target, Success: n.success})
}

func (b *Behaviour) onTimeout(n *queryTimedOut) {
	q, ok := b.queries[n.query]
	if !ok {
		return
	}

	b.logger.WithFields(logrus.Fields{
		"query": q.id,
		"kind":  q.kind,
	}).Debug("Query timed out")

	switch q.kind {
	case closestPeersQuery:
		b.finish(q, GetClosestPeersResult{
			Key:   q.target,
			Peers: peerIDs(q.succeededPeers(b.conf.ReplicationFactor)),
			Err:   ErrQueryTimeout,
		})
	case getRecordQuery:
		b.finish(q, GetRecordResult{Key: q.target, Err: ErrQueryTimeout})
	case putRecordQuery:
		b.finish(q, PutRecordResult{Key: q.target, Err: ErrQueryTimeout})
	}
}

// finish removes q and emits its last event.
func (b *Behaviour) finish(q *query, result QueryResult) {
	q.timer.Stop()
	delete(b.queries, q.id)

	q.step++
	b.emit(QueryProgressed{
		ID:     q.id,
		Result: result,
		Step:   ProgressStep{Count: q.step, Last: true},
	})
}
