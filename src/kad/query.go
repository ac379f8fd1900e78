package kad

import (
	"sort"
	"time"

	"github.com/safenetwork/safenode/src/peers"
)

type queryKind uint8

const (
	closestPeersQuery queryKind = iota
	getRecordQuery
	putRecordQuery
)

func (k queryKind) String() string {
	switch k {
	case closestPeersQuery:
		return "GetClosestPeers"
	case getRecordQuery:
		return "GetRecord"
	default:
		return "PutRecord"
	}
}

type candidateState uint8

const (
	notContacted candidateState = iota
	waiting
	succeeded
	failed
)

type candidate struct {
	peer     *peers.Peer
	distance Key
	state    candidateState
}

// query is the state of an iterative lookup. It is only touched by the
// Behaviour, on the goroutine driving it.
type query struct {
	id     QueryID
	kind   queryKind
	target []byte
	key    Key

	// record and quorum are set for PutRecord queries
	record *Record
	quorum Quorum

	candidates map[peers.ID]*candidate
	inflight   int
	step       int

	// storing is set once a PutRecord query is replicating the record
	storing bool

	timer *time.Timer
}

func newQuery(id QueryID, kind queryKind, target []byte) *query {
	return &query{
		id:         id,
		kind:       kind,
		target:     target,
		key:        KeyFromBytes(target),
		candidates: make(map[peers.ID]*candidate),
	}
}

// addCandidate inserts p unless it is already known.
func (q *query) addCandidate(p *peers.Peer) {
	if _, ok := q.candidates[p.ID]; ok {
		return
	}
	q.candidates[p.ID] = &candidate{
		peer:     p,
		distance: KeyFromPeer(p.ID).Distance(q.key),
	}
}

// closest returns up to n candidates that have not failed, closest first.
func (q *query) closest(n int) []*candidate {
	res := make([]*candidate, 0, len(q.candidates))
	for _, c := range q.candidates {
		if c.state != failed {
			res = append(res, c)
		}
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].distance.Less(res[j].distance)
	})

	if len(res) > n {
		res = res[:n]
	}
	return res
}

// next returns the closest candidate among the k closest that was never
// contacted.
func (q *query) next(k int) *candidate {
	for _, c := range q.closest(k) {
		if c.state == notContacted {
			return c
		}
	}
	return nil
}

// succeededPeers returns up to k peers that answered, closest first.
func (q *query) succeededPeers(k int) []*peers.Peer {
	var res []*peers.Peer
	for _, c := range q.closest(len(q.candidates)) {
		if len(res) == k {
			break
		}
		if c.state == succeeded {
			res = append(res, c.peer)
		}
	}
	return res
}

func peerIDs(ps []*peers.Peer) []peers.ID {
	ids := make([]peers.ID, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids
}
