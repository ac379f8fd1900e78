package kad

import (
	"container/list"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/peers"
)

// entry is a peer held in a k-bucket.
type entry struct {
	peer *peers.Peer
	key  Key
}

// bucket is a k-bucket. The most recently seen peer is at the front.
type bucket struct {
	list *list.List
}

func newBucket() *bucket {
	return &bucket{list: list.New()}
}

func (b *bucket) find(id peers.ID) *list.Element {
	for e := b.list.Front(); e != nil; e = e.Next() {
		if e.Value.(*entry).peer.ID == id {
			return e
		}
	}
	return nil
}

// update moves an existing peer to the front and merges addr into its
// addresses. It reports whether the peer was present.
func (b *bucket) update(id peers.ID, addr ma.Multiaddr) bool {
	e := b.find(id)
	if e == nil {
		return false
	}

	b.list.MoveToFront(e)

	if addr == nil {
		return true
	}

	ent := e.Value.(*entry)
	for _, a := range ent.peer.Addrs {
		if a.Equal(addr) {
			return true
		}
	}
	ent.peer.Addrs = append(ent.peer.Addrs, addr)

	return true
}

func (b *bucket) pushFront(ent *entry) {
	b.list.PushFront(ent)
}

func (b *bucket) remove(id peers.ID) bool {
	if e := b.find(id); e != nil {
		b.list.Remove(e)
		return true
	}
	return false
}

func (b *bucket) entries() []*entry {
	res := make([]*entry, 0, b.list.Len())
	for e := b.list.Front(); e != nil; e = e.Next() {
		res = append(res, e.Value.(*entry))
	}
	return res
}

func (b *bucket) len() int {
	return b.list.Len()
}
