package peers

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
)

const jsonPeerPath = "peers.json"

// jsonPeer is the on-disk form of a Peer.
type jsonPeer struct {
	ID    string   `json:"id"`
	Addrs []string `json:"addrs"`
}

// JSONPeers is used to provide peer persistence on disk in the form
// of a JSON file. This allows human operators to manipulate the file.
type JSONPeers struct {
	l    sync.Mutex
	path string
}

// NewJSONPeers creates a new JSONPeers store.
func NewJSONPeers(base string) *JSONPeers {
	return &JSONPeers{
		path: filepath.Join(base, jsonPeerPath),
	}
}

// Peers reads the bootstrap peers from the file.
func (j *JSONPeers) Peers() ([]*Peer, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, nil
	}

	var raw []jsonPeer
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, err
	}

	res := make([]*Peer, 0, len(raw))
	for _, jp := range raw {
		id, err := DecodeID(jp.ID)
		if err != nil {
			return nil, err
		}

		peer := NewPeer(id)
		for _, a := range jp.Addrs {
			addr, err := ma.NewMultiaddr(a)
			if err != nil {
				return nil, err
			}
			peer.Addrs = append(peer.Addrs, addr)
		}

		res = append(res, peer)
	}

	return res, nil
}

// SetPeers writes peers to the file.
func (j *JSONPeers) SetPeers(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	raw := make([]jsonPeer, 0, len(peers))
	for _, p := range peers {
		jp := jsonPeer{ID: p.ID.String()}
		for _, a := range p.Addrs {
			jp.Addrs = append(jp.Addrs, a.String())
		}
		raw = append(raw, jp)
	}

	buf, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return err
	}

	return os.WriteFile(j.path, buf, 0644)
}
