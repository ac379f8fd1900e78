// Package peers defines how safenode peers are identified and addressed.
//
// A peer is identified by its ID, the sha2-256 multihash of the compressed
// secp256k1 public key of the node. The text form of an ID is the base58
// encoding of the multihash, which is also the value of the /p2p component of
// a full peer address, for example:
//
//  /ip4/10.0.0.5/tcp/12000/p2p/QmYyQSo1c1Ym7orWxLYvCrM2EmxFTANf8wXmmE7DWjhx5N
//
// Upon starting up, a node looks for an optional peers.json file in its data
// directory. The file lists bootstrap peers, each with an ID and one or more
// multiaddrs, which the node dials before querying the network for its own
// neighbourhood.
package peers
