package net

import (
	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol/messages"
)

// PeerInfo is the wire form of a peers.Peer. Multiaddrs travel in their
// binary encoding.
type PeerInfo struct {
	ID    []byte
	Addrs [][]byte
}

// NewPeerInfo ...
func NewPeerInfo(p *peers.Peer) PeerInfo {
	info := PeerInfo{
		ID:    p.ID.Bytes(),
		Addrs: make([][]byte, 0, len(p.Addrs)),
	}
	for _, a := range p.Addrs {
		info.Addrs = append(info.Addrs, a.Bytes())
	}
	return info
}

// NewPeerInfos ...
func NewPeerInfos(ps []*peers.Peer) []PeerInfo {
	res := make([]PeerInfo, 0, len(ps))
	for _, p := range ps {
		res = append(res, NewPeerInfo(p))
	}
	return res
}

// Peer decodes the info back into a peers.Peer. Malformed addresses are
// skipped; a malformed ID is an error.
func (pi PeerInfo) Peer() (*peers.Peer, error) {
	id, err := peers.IDFromBytes(pi.ID)
	if err != nil {
		return nil, err
	}

	p := peers.NewPeer(id)
	for _, raw := range pi.Addrs {
		addr, err := ma.NewMultiaddrBytes(raw)
		if err != nil {
			continue
		}
		p.Addrs = append(p.Addrs, addr)
	}

	return p, nil
}

// WireRecord is a DHT record in transit.
type WireRecord struct {
	Key       []byte
	Value     []byte
	Publisher []byte
}

// IdentifyRequest is sent right after dialing a peer. It introduces the dialer
// and asks the remote end to prove which peer it is.
type IdentifyRequest struct {
	From            PeerInfo
	ProtocolVersion string
}

// IdentifyResponse carries the identity of the dialed peer.
type IdentifyResponse struct {
	Peer            PeerInfo
	ProtocolVersion string
}

// FindNodeRequest asks a peer for the peers it knows closest to Key.
type FindNodeRequest struct {
	From PeerInfo
	Key  []byte
}

// FindNodeResponse ...
type FindNodeResponse struct {
	Closer []PeerInfo
}

// GetRecordRequest asks a peer for the record stored under Key. Peers that do
// not hold the record answer with closer peers instead.
type GetRecordRequest struct {
	From PeerInfo
	Key  []byte
}

// GetRecordResponse ...
type GetRecordResponse struct {
	Record *WireRecord
	Closer []PeerInfo
}

// PutRecordRequest asks a peer to store Record.
type PutRecordRequest struct {
	From   PeerInfo
	Record WireRecord
}

// PutRecordResponse acknowledges a PutRecordRequest.
type PutRecordResponse struct {
	Stored bool
}

// AppRequest carries an application request.
type AppRequest struct {
	From    PeerInfo
	Request messages.Request
}

// AppResponse carries the application response to an AppRequest.
type AppResponse struct {
	Response messages.Response
}
