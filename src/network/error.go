package network

import (
	"errors"
	"fmt"

	"github.com/safenetwork/safenode/src/protocol/messages"
)

var (
	// ErrInternalMsgChannelDropped is returned when a value owed to a local
	// caller could not be delivered because the caller stopped waiting. It
	// means the same-process contract was broken and is fatal.
	ErrInternalMsgChannelDropped = errors.New("internal message channel dropped")

	// ErrDuplicateOperation is returned when an operation is registered twice
	// in a pending table.
	ErrDuplicateOperation = errors.New("operation already pending")

	// ErrRecordNotFound is carried by a QueryResponse when no peer holds the
	// record.
	ErrRecordNotFound = errors.New("record not found")

	// ErrNetworkShutdown is returned to callers once the driver has stopped.
	ErrNetworkShutdown = errors.New("network is shut down")
)

// OutgoingResponseDroppedError is returned when a response could not be
// handed to the transport for a remote peer.
type OutgoingResponseDroppedError struct {
	Response messages.Response
	Err      error
}

func (e *OutgoingResponseDroppedError) Error() string {
	return fmt.Sprintf("outgoing %s response dropped: %v", e.Response.Kind, e.Err)
}

func (e *OutgoingResponseDroppedError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err, returned by the command processor, denotes a
// coordination defect rather than a network condition.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInternalMsgChannelDropped)
}
