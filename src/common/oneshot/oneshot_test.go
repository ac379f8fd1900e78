package oneshot

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSendBeforeRecv(t *testing.T) {
	s, r := New[int]()

	if err := s.Send(42); err != nil {
		t.Fatalf("err: %v", err)
	}

	v, err := r.Recv(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if v != 42 {
		t.Fatalf("value should be 42, not %d", v)
	}
}

func TestSendTwice(t *testing.T) {
	s, r := New[string]()

	if err := s.Send("a"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := s.Send("b"); !errors.Is(err, ErrAlreadySent) {
		t.Fatalf("second Send should return ErrAlreadySent, not %v", err)
	}

	v, _ := r.Recv(context.Background())
	if v != "a" {
		t.Fatalf("value should be a, not %s", v)
	}
}

func TestCloseSignalsAbandoned(t *testing.T) {
	s, r := New[error]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Close()
	}()

	if _, err := r.Recv(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Recv should return ErrClosed, not %v", err)
	}

	if err := s.Send(nil); !errors.Is(err, ErrAlreadySent) {
		t.Fatalf("Send after Close should fail, got %v", err)
	}
}

func TestReceiverDropped(t *testing.T) {
	s, r := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := r.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Recv should time out, got %v", err)
	}

	if !s.IsDropped() {
		t.Fatalf("sender should see the receiver as dropped")
	}

	if err := s.Send(1); !errors.Is(err, ErrReceiverDropped) {
		t.Fatalf("Send should return ErrReceiverDropped, not %v", err)
	}
}

func TestTryRecv(t *testing.T) {
	s, r := New[int]()

	if _, ok := r.TryRecv(); ok {
		t.Fatalf("TryRecv should not return a value before Send")
	}

	s.Send(7)

	v, ok := r.TryRecv()
	if !ok || v != 7 {
		t.Fatalf("TryRecv should return 7, got %d %v", v, ok)
	}
}
