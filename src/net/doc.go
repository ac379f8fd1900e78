// Package net implements the transports safenode peers use to talk to each
// other.
//
// A Transport carries five RPCs: Identify, exchanged right after dialing a
// peer, the three Kademlia RPCs (FindNode, GetRecord, PutRecord) and Request,
// which carries application messages. Inbound RPCs are delivered on the
// Consumer channel, each with its own response channel.
//
// There are two implementations:
//
// - Inmem: in-memory transport used only for testing
//
// - TCP: a NetworkTransport over plain TCP, addressed with multiaddrs such as
// /ip4/127.0.0.1/tcp/12000
//
// A NetworkTransport can listen on several addresses at once. Every RPC is
// framed by a type byte followed by the msgpack encoded request, and answered
// by an error string followed by the msgpack encoded response.
package net
