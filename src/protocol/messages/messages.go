// Package messages defines the requests and responses nodes exchange on top
// of the Kademlia layer.
package messages

import (
	"errors"
	"fmt"

	"github.com/safenetwork/safenode/src/protocol"
)

// ErrInvalidChunk is returned when a chunk's content does not hash to its
// address.
var ErrInvalidChunk = errors.New("chunk content does not match its address")

// Chunk is an immutable piece of content addressed by the hash of its value.
type Chunk struct {
	Address protocol.XorName
	Value   []byte
}

// NewChunk creates a Chunk and computes its address.
func NewChunk(value []byte) Chunk {
	return Chunk{
		Address: protocol.XorNameFromContent(value),
		Value:   value,
	}
}

// Validate checks that the address matches the content.
func (c Chunk) Validate() error {
	if protocol.XorNameFromContent(c.Value) != c.Address {
		return ErrInvalidChunk
	}
	return nil
}

// RequestKind enumerates the application requests.
type RequestKind uint8

const (
	// Ping checks that a peer is alive.
	Ping RequestKind = iota
	// GetChunk fetches a chunk by address.
	GetChunk
	// StoreChunk asks a peer to store a chunk.
	StoreChunk
)

func (k RequestKind) String() string {
	switch k {
	case Ping:
		return "Ping"
	case GetChunk:
		return "GetChunk"
	case StoreChunk:
		return "StoreChunk"
	default:
		return fmt.Sprintf("RequestKind(%d)", k)
	}
}

// Request is sent by a node to a peer (or to itself) and answered by exactly
// one Response.
type Request struct {
	Kind    RequestKind
	Address protocol.XorName
	Chunk   *Chunk
}

// NewPingRequest ...
func NewPingRequest() Request {
	return Request{Kind: Ping}
}

// NewGetChunkRequest ...
func NewGetChunkRequest(addr protocol.XorName) Request {
	return Request{Kind: GetChunk, Address: addr}
}

// NewStoreChunkRequest ...
func NewStoreChunkRequest(chunk Chunk) Request {
	return Request{Kind: StoreChunk, Address: chunk.Address, Chunk: &chunk}
}

func (r Request) String() string {
	if r.Kind == Ping {
		return r.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", r.Kind, r.Address)
}

// Response answers a Request of the same Kind. Error is a string so it
// survives the wire encoding.
type Response struct {
	Kind  RequestKind
	Chunk *Chunk
	Error string
}

// NewErrorResponse ...
func NewErrorResponse(kind RequestKind, err error) Response {
	return Response{Kind: kind, Error: err.Error()}
}

// Err returns the error carried by the response, if any.
func (r Response) Err() error {
	if r.Error == "" {
		return nil
	}
	return errors.New(r.Error)
}

// QueryResponse is the outcome of a record lookup. Exactly one of Value and Err
// is set.
type QueryResponse struct {
	Key   []byte
	Value []byte
	Err   error
}
