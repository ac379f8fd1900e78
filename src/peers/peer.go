package peers

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	ma "github.com/multiformats/go-multiaddr"
	mh "github.com/multiformats/go-multihash"
	"github.com/safenetwork/safenode/src/crypto/keys"
)

var (
	// ErrEmptyPeerID is returned when decoding an empty peer ID.
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrNoPeerIDInAddr is returned when a multiaddr has no trailing /p2p
	// component.
	ErrNoPeerIDInAddr = errors.New("multiaddr does not end with a /p2p component")
)

// ID is the identity of a peer: the raw bytes of a multihash.
type ID string

// IDFromPublicKey derives the ID of the peer owning pub.
func IDFromPublicKey(pub *ecdsa.PublicKey) (ID, error) {
	raw := keys.CompressedPublicKey(pub)
	if raw == nil {
		return "", errors.New("invalid public key")
	}

	hash, err := mh.Sum(raw, mh.SHA2_256, -1)
	if err != nil {
		return "", err
	}

	return ID(hash), nil
}

// IDFromBytes validates b as a multihash and returns it as an ID.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) == 0 {
		return "", ErrEmptyPeerID
	}
	if _, err := mh.Cast(b); err != nil {
		return "", err
	}
	return ID(b), nil
}

// DecodeID parses the base58 text form of an ID.
func DecodeID(s string) (ID, error) {
	if s == "" {
		return "", ErrEmptyPeerID
	}

	b, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("failed to parse peer ID %q: %w", s, err)
	}

	return IDFromBytes(b)
}

// String returns the base58 text form of the ID.
func (id ID) String() string {
	return base58.Encode([]byte(id))
}

// ShortString returns an abbreviated text form, used in logs.
func (id ID) ShortString() string {
	s := id.String()
	if len(s) <= 10 {
		return s
	}
	return s[len(s)-8:]
}

// Bytes returns the raw multihash.
func (id ID) Bytes() []byte {
	return []byte(id)
}

// Validate checks that id is a well formed multihash.
func (id ID) Validate() error {
	_, err := IDFromBytes([]byte(id))
	return err
}

// Multiaddr appends a /p2p component carrying id to addr.
func (id ID) Multiaddr(addr ma.Multiaddr) (ma.Multiaddr, error) {
	c, err := ma.NewComponent("p2p", id.String())
	if err != nil {
		return nil, err
	}
	return addr.Encapsulate(c), nil
}

// SplitAddr splits a full peer address into its transport part and the peer
// ID carried by the trailing /p2p component.
func SplitAddr(addr ma.Multiaddr) (ma.Multiaddr, ID, error) {
	if addr == nil {
		return nil, "", ErrNoPeerIDInAddr
	}

	transport, last := ma.SplitLast(addr)
	if last == nil || last.Protocol().Code != ma.P_P2P {
		return nil, "", ErrNoPeerIDInAddr
	}

	id, err := IDFromBytes(last.RawValue())
	if err != nil {
		return nil, "", err
	}

	return transport, id, nil
}

// Peer is a peer ID with the addresses it can be reached on.
type Peer struct {
	ID    ID
	Addrs []ma.Multiaddr
}

// NewPeer ...
func NewPeer(id ID, addrs ...ma.Multiaddr) *Peer {
	return &Peer{
		ID:    id,
		Addrs: addrs,
	}
}

// String ...
func (p *Peer) String() string {
	return fmt.Sprintf("%s%v", p.ID.ShortString(), p.Addrs)
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, id ID) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID != id {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
