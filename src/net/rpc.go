package net

import "errors"

var (
	// ErrRPCAbandoned is returned by Respond when the requester stopped waiting
	// for the response.
	ErrRPCAbandoned = errors.New("rpc abandoned by requester")

	// ErrRPCAlreadyAnswered is returned by Respond when the RPC was already
	// answered.
	ErrRPCAlreadyAnswered = errors.New("rpc already answered")
)

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response interface{}
	Error    error
}

// RPC encapsulates an RPC request and provides a response mechanism.
type RPC struct {
	Command  interface{}
	RespChan chan<- RPCResponse

	done <-chan struct{}
}

// NewRPC creates an RPC whose response channel can hold exactly one response.
// The RPC is considered abandoned once done is closed.
func NewRPC(command interface{}, done <-chan struct{}) (RPC, <-chan RPCResponse) {
	respCh := make(chan RPCResponse, 1)
	return RPC{
		Command:  command,
		RespChan: respCh,
		done:     done,
	}, respCh
}

// Done returns a channel that is closed when the transport stops waiting for
// the response.
func (r *RPC) Done() <-chan struct{} {
	return r.done
}

// Respond is used to respond with a response, error or both. It never blocks.
func (r *RPC) Respond(resp interface{}, err error) error {
	select {
	case <-r.done:
		return ErrRPCAbandoned
	default:
	}

	select {
	case r.RespChan <- RPCResponse{resp, err}:
		return nil
	default:
		return ErrRPCAlreadyAnswered
	}
}
