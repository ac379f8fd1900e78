// Package oneshot implements single-use completion channels.
//
// A Sender delivers exactly one value to its Receiver. Send never blocks,
// whether or not the Receiver is already waiting. A Sender that is closed
// without a value signals to the Receiver that the operation was abandoned,
// and a Receiver that stops waiting makes any later Send fail with
// ErrReceiverDropped.
package oneshot

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrAlreadySent is returned when Send is called more than once.
	ErrAlreadySent = errors.New("oneshot: value already sent")

	// ErrReceiverDropped is returned by Send when the Receiver has stopped
	// waiting.
	ErrReceiverDropped = errors.New("oneshot: receiver dropped")

	// ErrClosed is returned by Recv when the Sender was closed without a
	// value.
	ErrClosed = errors.New("oneshot: sender dropped without a value")
)

// Sender is the write side of a oneshot channel.
type Sender[T any] struct {
	mu      sync.Mutex
	done    bool
	ch      chan T
	dropped <-chan struct{}
}

// Receiver is the read side of a oneshot channel.
type Receiver[T any] struct {
	ch      <-chan T
	dropped chan struct{}
	once    sync.Once
}

// New returns a connected Sender and Receiver.
func New[T any]() (*Sender[T], *Receiver[T]) {
	ch := make(chan T, 1)
	dropped := make(chan struct{})

	return &Sender[T]{ch: ch, dropped: dropped},
		&Receiver[T]{ch: ch, dropped: dropped}
}

// Send delivers v. It fails if a value was already sent, if the Sender was
// closed, or if the Receiver was dropped.
func (s *Sender[T]) Send(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return ErrAlreadySent
	}
	s.done = true

	select {
	case <-s.dropped:
		close(s.ch)
		return ErrReceiverDropped
	default:
	}

	s.ch <- v
	close(s.ch)

	return nil
}

// Close abandons the Sender without a value. It is a no-op after Send.
func (s *Sender[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.done = true
	close(s.ch)
}

// IsDropped reports whether the Receiver has stopped waiting.
func (s *Sender[T]) IsDropped() bool {
	select {
	case <-s.dropped:
		return true
	default:
		return false
	}
}

// Recv waits for the value. If ctx is done first, the Receiver is dropped and
// ctx.Err() is returned.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T

	select {
	case v, ok := <-r.ch:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	case <-ctx.Done():
		r.Close()
		return zero, ctx.Err()
	}
}

// TryRecv returns the value if it has already been sent.
func (r *Receiver[T]) TryRecv() (T, bool) {
	var zero T

	select {
	case v, ok := <-r.ch:
		if !ok {
			return zero, false
		}
		return v, true
	default:
		return zero, false
	}
}

// Close drops the Receiver. Subsequent Sends fail with ErrReceiverDropped.
func (r *Receiver[T]) Close() {
	r.once.Do(func() {
		close(r.dropped)
	})
}
