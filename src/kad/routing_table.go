package kad

import (
	"sort"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/peers"
)

const numBuckets = KeyLen * 8

// RoutingUpdate is the outcome of adding an address to the routing table.
type RoutingUpdate uint8

const (
	// RoutingUpdateSuccess means the peer is in the table.
	RoutingUpdateSuccess RoutingUpdate = iota
	// RoutingUpdatePending means the peer's bucket is full and the peer was
	// not inserted.
	RoutingUpdatePending
	// RoutingUpdateFailed means the peer can never be inserted, for example
	// because it is the local peer.
	RoutingUpdateFailed
)

func (u RoutingUpdate) String() string {
	switch u {
	case RoutingUpdateSuccess:
		return "Success"
	case RoutingUpdatePending:
		return "Pending"
	case RoutingUpdateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// RoutingTable holds the peers known to the local peer, in k-buckets indexed
// by the length of the prefix they share with the local key.
//
// RoutingTable is not safe for concurrent use.
type RoutingTable struct {
	local    peers.ID
	localKey Key
	k        int
	buckets  [numBuckets]*bucket
}

// NewRoutingTable creates an empty table whose buckets hold at most k peers.
func NewRoutingTable(local peers.ID, k int) *RoutingTable {
	rt := &RoutingTable{
		local:    local,
		localKey: KeyFromPeer(local),
		k:        k,
	}
	for i := 0; i < numBuckets; i++ {
		rt.buckets[i] = newBucket()
	}
	return rt
}

func (rt *RoutingTable) bucketIndex(key Key) int {
	cpl := rt.localKey.CommonPrefixLen(key)
	if cpl >= numBuckets {
		cpl = numBuckets - 1
	}
	return cpl
}

// AddAddress inserts id in the table or refreshes it. addr may be nil, in
// which case an unknown peer is inserted without addresses. The second result
// is true when the peer was not in the table before.
func (rt *RoutingTable) AddAddress(id peers.ID, addr ma.Multiaddr) (RoutingUpdate, bool) {
	if id == rt.local || id.Validate() != nil {
		return RoutingUpdateFailed, false
	}

	key := KeyFromPeer(id)
	b := rt.buckets[rt.bucketIndex(key)]

	if b.update(id, addr) {
		return RoutingUpdateSuccess, false
	}

	if b.len() >= rt.k {
		return RoutingUpdatePending, false
	}

	p := peers.NewPeer(id)
	if addr != nil {
		p.Addrs = append(p.Addrs, addr)
	}
	b.pushFront(&entry{peer: p, key: key})

	return RoutingUpdateSuccess, true
}

// Remove deletes id from the table and reports whether it was present.
func (rt *RoutingTable) Remove(id peers.ID) bool {
	return rt.buckets[rt.bucketIndex(KeyFromPeer(id))].remove(id)
}

// Peer returns a copy of the entry for id.
func (rt *RoutingTable) Peer(id peers.ID) (*peers.Peer, bool) {
	e := rt.buckets[rt.bucketIndex(KeyFromPeer(id))].find(id)
	if e == nil {
		return nil, false
	}
	return copyPeer(e.Value.(*entry).peer), true
}

// NearestPeers returns copies of the count peers closest to key, closest
// first. The local peer is never returned.
//
// The bucket sharing the key's prefix holds the closest peers, followed by
// every deeper bucket together, then the shallower buckets one by one.
func (rt *RoutingTable) NearestPeers(key Key, count int) []*peers.Peer {
	if count <= 0 {
		return nil
	}

	index := rt.bucketIndex(key)
	candidates := rt.buckets[index].entries()

	if len(candidates) < count {
		for i := index + 1; i < numBuckets; i++ {
			candidates = append(candidates, rt.buckets[i].entries()...)
		}
	}

	for i := index - 1; i >= 0 && len(candidates) < count; i-- {
		candidates = append(candidates, rt.buckets[i].entries()...)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].key.Distance(key).Less(candidates[j].key.Distance(key))
	})

	if count > len(candidates) {
		count = len(candidates)
	}

	res := make([]*peers.Peer, 0, count)
	for _, c := range candidates[:count] {
		res = append(res, copyPeer(c.peer))
	}
	return res
}

// Len returns the number of peers in the table.
func (rt *RoutingTable) Len() int {
	n := 0
	for _, b := range rt.buckets {
		n += b.len()
	}
	return n
}

// Peers returns copies of every peer in the table.
func (rt *RoutingTable) Peers() []*peers.Peer {
	var res []*peers.Peer
	for _, b := range rt.buckets {
		for _, e := range b.entries() {
			res = append(res, copyPeer(e.peer))
		}
	}
	return res
}

func copyPeer(p *peers.Peer) *peers.Peer {
	addrs := make([]ma.Multiaddr, len(p.Addrs))
	copy(addrs, p.Addrs)
	return peers.NewPeer(p.ID, addrs...)
}
