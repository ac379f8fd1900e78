// Package kad implements the Kademlia distributed hash table used by safenode
// peers to find each other and to store records.
//
// Peers and records live in a 256 bit key space; the key of a peer is the
// sha256 of its ID, the key of a record the sha256 of the record key. The
// RoutingTable sorts known peers into k-buckets by the length of the prefix
// they share with the local key.
//
// The Behaviour runs iterative queries: GetClosestPeers, GetRecord and
// PutRecord. A query keeps Alpha RPCs in flight to the closest peers it knows
// of and converges on the ReplicationFactor closest peers to its key. The
// network I/O happens in background goroutines which report back through
// Notifications; every other method of the Behaviour runs on the goroutine
// that owns it. Progress is reported with QueryProgressed events, the last of
// which has Step.Last set.
package kad
