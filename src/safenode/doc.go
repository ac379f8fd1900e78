// Package safenode assembles a node from a config.Config.
//
// Init reads or creates the private key in the data directory, loads the
// bootstrap peers from peers.json, opens the record store (in memory, or
// Badger when Store is set), and wires the TCP transport, the swarm, the
// network driver and the node together. Run serves the HTTP API, bootstraps
// and handles requests until the node is shut down.
package safenode
