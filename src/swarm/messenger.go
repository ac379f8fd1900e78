package swarm

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/net"
	"github.com/safenetwork/safenode/src/peers"
	"go.uber.org/multierr"
)

// messenger sends the Kademlia RPCs of the swarm over its transport. Each RPC
// tries the addresses of the target in turn until one answers.
type messenger struct {
	trans net.Transport
	info  func() net.PeerInfo
}

func (m *messenger) tryAddrs(to *peers.Peer, rpc func(addr ma.Multiaddr) error) error {
	if len(to.Addrs) == 0 {
		return ErrNoAddress
	}

	var errs error
	for _, addr := range to.Addrs {
		err := rpc(addr)
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (m *messenger) FindNode(ctx context.Context, to *peers.Peer, key []byte) ([]*peers.Peer, error) {
	args := net.FindNodeRequest{From: m.info(), Key: key}

	var resp net.FindNodeResponse
	err := m.tryAddrs(to, func(addr ma.Multiaddr) error {
		return m.trans.FindNode(ctx, addr, &args, &resp)
	})
	if err != nil {
		return nil, err
	}

	return decodePeers(resp.Closer), nil
}

func (m *messenger) GetRecord(ctx context.Context, to *peers.Peer, key []byte) (*kad.Record, []*peers.Peer, error) {
	args := net.GetRecordRequest{From: m.info(), Key: key}

	var resp net.GetRecordResponse
	err := m.tryAddrs(to, func(addr ma.Multiaddr) error {
		return m.trans.GetRecord(ctx, addr, &args, &resp)
	})
	if err != nil {
		return nil, nil, err
	}

	if resp.Record != nil {
		r := fromWireRecord(*resp.Record)
		return &r, nil, nil
	}

	return nil, decodePeers(resp.Closer), nil
}

func (m *messenger) PutRecord(ctx context.Context, to *peers.Peer, r kad.Record) error {
	args := net.PutRecordRequest{From: m.info(), Record: toWireRecord(r)}

	var resp net.PutRecordResponse
	return m.tryAddrs(to, func(addr ma.Multiaddr) error {
		return m.trans.PutRecord(ctx, addr, &args, &resp)
	})
}

// decodePeers skips the entries with a malformed ID.
func decodePeers(infos []net.PeerInfo) []*peers.Peer {
	res := make([]*peers.Peer, 0, len(infos))
	for _, info := range infos {
		p, err := info.Peer()
		if err != nil {
			continue
		}
		res = append(res, p)
	}
	return res
}

func toWireRecord(r kad.Record) net.WireRecord {
	return net.WireRecord{
		Key:       r.Key,
		Value:     r.Value,
		Publisher: r.Publisher.Bytes(),
	}
}

func fromWireRecord(w net.WireRecord) kad.Record {
	return kad.Record{
		Key:       w.Key,
		Value:     w.Value,
		Publisher: peers.ID(w.Publisher),
	}
}
