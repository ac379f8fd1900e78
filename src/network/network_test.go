package network

import (
	"context"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/common"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/net"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol"
	"github.com/safenetwork/safenode/src/protocol/messages"
	"github.com/safenetwork/safenode/src/swarm"
)

type testNetwork struct {
	*Network
	addr  ma.Multiaddr
	trans *net.InmemTransport
}

// newTestNetwork runs a driver over a real swarm and answers every Ping it
// receives.
func newTestNetwork(t *testing.T) *testNetwork {
	id := newTestID(t)
	addr, trans := net.NewInmemTransport(nil)
	logger := common.NewTestEntry(t, common.TestLogLevel)

	conf := swarm.DefaultConfig()
	conf.Kad.QueryTimeout = 2 * time.Second

	s := swarm.New(id, trans, kad.NewInmemRecordStore(100), conf, logger)
	n, events, d := NewSwarmDriver(DefaultConfig(), s, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		d.Run(ctx)
		close(done)
	}()

	go func() {
		for {
			select {
			case ev := <-events:
				if rr, ok := ev.(RequestReceived); ok {
					n.SendResponse(ctx, messages.Response{Kind: rr.Request.Kind}, rr.Channel)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	if err := n.StartListening(context.Background(), addr); err != nil {
		t.Fatalf("err: %v", err)
	}

	return &testNetwork{Network: n, addr: addr, trans: trans}
}

func TestNetwork(t *testing.T) {
	a, b := newTestNetwork(t), newTestNetwork(t)
	a.trans.Connect(b.addr, b.trans)
	b.trans.Connect(a.addr, a.trans)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Dial(ctx, b.PeerID(), b.addr); err != nil {
		t.Fatalf("err: %v", err)
	}

	state, err := a.GetSwarmLocalState(ctx)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !peers.NewIDSet(state.ConnectedPeers...).Contains(b.PeerID()) {
		t.Fatalf("a should be connected to b, got %v", state.ConnectedPeers)
	}

	if len(state.Listeners) != 1 || !state.Listeners[0].Equal(a.addr) {
		t.Fatalf("a should listen on %s, got %v", a.addr, state.Listeners)
	}

	// remote round trip
	resp, err := a.SendRequest(ctx, messages.NewPingRequest(), b.PeerID())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Kind != messages.Ping {
		t.Fatalf("response should be a Ping, got %s", resp.Kind)
	}

	// loopback round trip
	resp, err = a.SendRequest(ctx, messages.NewGetChunkRequest(protocol.RandomXorName()), a.PeerID())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if resp.Kind != messages.GetChunk {
		t.Fatalf("response should be a GetChunk, got %s", resp.Kind)
	}

	closest, err := a.GetClosestPeers(ctx, protocol.RandomXorName())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !closest.Contains(b.PeerID()) {
		t.Fatalf("closest peers should contain b, got %v", closest.Slice())
	}

	local, err := b.GetClosestLocalPeers(ctx, protocol.RandomXorName())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !local.Contains(a.PeerID()) {
		t.Fatalf("b's routing table should contain a, got %v", local.Slice())
	}

	record := kad.NewRecord([]byte("key"), []byte("value"))
	if err := a.PutRecord(ctx, record); err != nil {
		t.Fatalf("err: %v", err)
	}

	// PutRecord does not report when replication is done
	var qr messages.QueryResponse
	for i := 0; i < 50; i++ {
		if qr, err = b.GetRecord(ctx, record.Key); err != nil {
			t.Fatalf("err: %v", err)
		}
		if qr.Err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if qr.Err != nil || string(qr.Value) != "value" {
		t.Fatalf("b should find the record, got %v", qr)
	}

	qr, err = a.GetRecord(ctx, []byte("missing"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if qr.Err != ErrRecordNotFound {
		t.Fatalf("missing record should not be found, got %v", qr.Err)
	}
}
