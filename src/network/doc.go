// Package network is the command processor of a node.
//
// Callers never touch the network stack. They submit commands through a
// Network, which queues them for the SwarmDriver:
//
//	caller --SwarmCmd--> SwarmDriver.Run --> Swarm
//	   ^                      |
//	   +----oneshot value-----+ <--swarm event--+
//
// Run processes one command at a time. A command that starts an asynchronous
// operation registers its completion handle in one of four pending tables,
// keyed by the identifier of the operation. When the swarm reports the
// outcome, the entry is removed and the handle completed, so each caller gets
// exactly one answer.
//
// A request a node sends to itself never reaches the transport. It is
// delivered to the upper layer as a RequestReceived event with a FromSelf
// responder, and the response sent through that responder goes straight
// back to the caller.
package network
