// Package node implements the reactive component of a node.
//
// A Node consumes the events of the network package. It answers the requests
// of other peers, and of itself, by reading and writing chunks in the record
// store of the network:
//
//	Ping        answered immediately
//	GetChunk    the chunk is fetched with a record lookup
//	StoreChunk  the chunk is validated and put as a record
//
// Chunks are immutable and addressed by the hash of their content, so any peer
// can check the chunk it gets against the address it asked for.
//
// Bootstrap
//
// On startup the node dials the peers of its peers.json file and looks up the
// peers closest to its own address, which fills its routing table and
// announces it to the rest of the network.
package node
