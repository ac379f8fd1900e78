package kad

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/peers"
)

var (
	// ErrNotFound is returned by a GetRecord query that found no record.
	ErrNotFound = errors.New("record not found")

	// ErrQueryTimeout is returned by a query that did not complete in time.
	ErrQueryTimeout = errors.New("query timed out")

	// ErrNoPeers is returned by a PutRecord query that found no peer to
	// replicate the record to.
	ErrNoPeers = errors.New("no peers to replicate the record to")
)

// QuorumFailedError is returned by a PutRecord query that did not collect
// enough acknowledgements.
type QuorumFailedError struct {
	Quorum    Quorum
	Success   int
	Contacted int
}

func (e *QuorumFailedError) Error() string {
	return fmt.Sprintf("quorum %s failed: %d of %d replicas stored the record", e.Quorum, e.Success, e.Contacted)
}

// QueryID identifies a query for its whole lifetime.
type QueryID uint64

// Event is emitted by the Behaviour and collected with PollEvent.
type Event interface {
	kadEvent()
}

// QueryProgressed reports a step of a query. The final step of every query has
// Step.Last set; no event for the query follows it.
type QueryProgressed struct {
	ID     QueryID
	Result QueryResult
	Step   ProgressStep
}

// ProgressStep numbers the events of a query from 1.
type ProgressStep struct {
	Count int
	Last  bool
}

// RoutingUpdated is emitted when a peer enters the routing table.
type RoutingUpdated struct {
	Peer      peers.ID
	Addresses []ma.Multiaddr
	IsNewPeer bool
}

// RoutingPeerRemoved is emitted when a peer leaves the routing table.
type RoutingPeerRemoved struct {
	Peer peers.ID
}

func (QueryProgressed) kadEvent()    {}
func (RoutingUpdated) kadEvent()     {}
func (RoutingPeerRemoved) kadEvent() {}

// QueryResult is the payload of a QueryProgressed event.
type QueryResult interface {
	queryResult()
}

// GetClosestPeersResult carries the peers that answered a closest peers
// lookup. Intermediate steps carry the peer that just answered, the last step
// carries the closest peers found.
type GetClosestPeersResult struct {
	Key   []byte
	Peers []peers.ID
	Err   error
}

// GetRecordResult carries the record found by a lookup, or an error.
type GetRecordResult struct {
	Key    []byte
	Record *Record
	Err    error
}

// PutRecordResult reports how many replicas stored a record.
type PutRecordResult struct {
	Key     []byte
	Success int
	Err     error
}

func (GetClosestPeersResult) queryResult() {}
func (GetRecordResult) queryResult()       {}
func (PutRecordResult) queryResult()       {}
