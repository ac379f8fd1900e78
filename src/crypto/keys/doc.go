// Package keys implements the node identity keys.
//
// Every safenode owns a secp256k1 key-pair. The compressed form of the public
// key is hashed into the node's peer ID (see the peers package), so the key
// must be kept across restarts for the node to keep its place in the XOR
// address space. The private key is stored in the data directory as a raw hex
// dump, readable by the owner only.
package keys
