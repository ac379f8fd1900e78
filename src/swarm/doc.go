// Package swarm combines a transport, the Kademlia behaviour and the
// request/response protocol into the network stack of a node.
//
// A Swarm is owned by a single goroutine. Network I/O happens in background
// goroutines whose outcomes come back as Notifications; the owner hands them
// to Process and collects the resulting Events with NextEvent.
package swarm
