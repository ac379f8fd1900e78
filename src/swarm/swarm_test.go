package swarm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/safenetwork/safenode/src/common"
	"github.com/safenetwork/safenode/src/crypto/keys"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/net"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol/messages"
	"github.com/safenetwork/safenode/src/version"

	ma "github.com/multiformats/go-multiaddr"
)

// testNode drives a Swarm on its own goroutine, the way the network driver
// does.
type testNode struct {
	id     peers.ID
	addr   ma.Multiaddr
	swarm  *Swarm
	trans  *net.InmemTransport
	calls  chan func(*Swarm)
	events chan Event
	done   chan struct{}
}

func newTestNode(t *testing.T) *testNode {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	id, err := peers.IDFromPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	addr, trans := net.NewInmemTransport(nil)

	conf := DefaultConfig()
	conf.Kad.QueryTimeout = 2 * time.Second
	conf.DialTimeout = time.Second
	conf.RequestTimeout = time.Second

	n := &testNode{
		id:     id,
		addr:   addr,
		swarm:  New(id, trans, kad.NewInmemRecordStore(100), conf, common.NewTestEntry(t, common.TestLogLevel)),
		trans:  trans,
		calls:  make(chan func(*Swarm)),
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}

	if _, err := n.swarm.ListenOn(addr); err != nil {
		t.Fatalf("err: %v", err)
	}

	go n.run()

	t.Cleanup(n.close)

	return n
}

func (n *testNode) run() {
	for {
		for {
			ev, ok := n.swarm.NextEvent()
			if !ok {
				break
			}
			n.events <- ev
		}

		select {
		case notif := <-n.swarm.Notifications():
			n.swarm.Process(notif)
		case f := <-n.calls:
			f(n.swarm)
		case <-n.done:
			return
		}
	}
}

func (n *testNode) close() {
	close(n.done)
	n.swarm.Close()
}

// do runs f on the goroutine driving the swarm.
func (n *testNode) do(f func(s *Swarm)) {
	finished := make(chan struct{})
	n.calls <- func(s *Swarm) {
		f(s)
		close(finished)
	}
	<-finished
}

func (n *testNode) fullAddr(t *testing.T) ma.Multiaddr {
	full, err := n.id.Multiaddr(n.addr)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return full
}

// waitEvent returns the first event accepted by match, discarding the others.
func (n *testNode) waitEvent(t *testing.T, match func(Event) bool) Event {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-n.events:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatalf("timeout waiting for event")
			return nil
		}
	}
}

func (n *testNode) waitQuery(t *testing.T, id kad.QueryID) kad.QueryProgressed {
	ev := n.waitEvent(t, func(ev Event) bool {
		qp, ok := ev.(kad.QueryProgressed)
		return ok && qp.ID == id && qp.Step.Last
	})
	return ev.(kad.QueryProgressed)
}

// connectAll makes every in-memory transport reachable from every other.
func connectAll(nodes ...*testNode) {
	for _, a := range nodes {
		for _, b := range nodes {
			if a != b {
				a.trans.Connect(b.addr, b.trans)
			}
		}
	}
}

func TestDialAndIdentify(t *testing.T) {
	a, b := newTestNode(t), newTestNode(t)
	connectAll(a, b)

	var err error
	a.do(func(s *Swarm) {
		s.AddAddress(b.id, b.addr)
		err = s.Dial(b.fullAddr(t))
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	ev := a.waitEvent(t, func(ev Event) bool {
		_, ok := ev.(ConnectionEstablished)
		return ok
	}).(ConnectionEstablished)

	if ev.Peer != b.id {
		t.Fatalf("connection should be established with b, not %s", ev.Peer)
	}

	// b learns about a through the identify handshake
	inbound := b.waitEvent(t, func(ev Event) bool {
		_, ok := ev.(ConnectionEstablished)
		return ok
	}).(ConnectionEstablished)

	if inbound.Peer != a.id {
		t.Fatalf("b should see a connection from a, not %s", inbound.Peer)
	}

	var connected []peers.ID
	var tableSize int
	b.do(func(s *Swarm) {
		connected = s.ConnectedPeers()
		tableSize = s.RoutingTableSize()
	})

	if len(connected) != 1 || connected[0] != a.id {
		t.Fatalf("b should be connected to a only, got %v", connected)
	}

	if tableSize != 1 {
		t.Fatalf("b's routing table should hold a, size is %d", tableSize)
	}
}

func TestDialErrors(t *testing.T) {
	a, b, c := newTestNode(t), newTestNode(t), newTestNode(t)
	connectAll(a, b)

	var errSelf, errNoID error
	a.do(func(s *Swarm) {
		errSelf = s.Dial(a.fullAddr(t))
		errNoID = s.Dial(b.addr)
	})

	if errSelf != ErrDialSelf {
		t.Fatalf("dialing self should return ErrDialSelf, got %v", errSelf)
	}

	if errNoID != peers.ErrNoPeerIDInAddr {
		t.Fatalf("dialing without peer ID should return ErrNoPeerIDInAddr, got %v", errNoID)
	}

	// b's address with c's identity
	wrong, _ := c.id.Multiaddr(b.addr)
	a.do(func(s *Swarm) {
		if err := s.Dial(wrong); err != nil {
			t.Errorf("err: %v", err)
		}
	})

	ev := a.waitEvent(t, func(ev Event) bool {
		_, ok := ev.(OutgoingConnectionError)
		return ok
	}).(OutgoingConnectionError)

	var wpe *WrongPeerError
	if ev.Peer != c.id || !errors.As(ev.Err, &wpe) || wpe.Got != b.id {
		t.Fatalf("dial should fail with WrongPeerError, got %#v", ev)
	}
}

func TestIdentifyProtocolVersion(t *testing.T) {
	a := newTestNode(t)

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	id, err := peers.IDFromPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	addr, trans := net.NewInmemTransport(nil)
	defer trans.Close()
	trans.Connect(a.addr, a.trans)

	from := net.NewPeerInfo(peers.NewPeer(id, addr))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp net.IdentifyResponse
	err = trans.Identify(ctx, a.addr, &net.IdentifyRequest{From: from, ProtocolVersion: "safe/0"}, &resp)
	if err == nil || !strings.Contains(err.Error(), "protocol mismatch") {
		t.Fatalf("identify with another protocol version should fail, got %v", err)
	}

	err = trans.Identify(ctx, a.addr, &net.IdentifyRequest{From: from, ProtocolVersion: version.ProtocolVersion}, &resp)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if resp.ProtocolVersion != version.ProtocolVersion {
		t.Fatalf("response should carry protocol %s, got %s", version.ProtocolVersion, resp.ProtocolVersion)
	}
}

func TestRequestResponse(t *testing.T) {
	a, b := newTestNode(t), newTestNode(t)
	connectAll(a, b)

	var reqID RequestID
	a.do(func(s *Swarm) {
		s.AddAddress(b.id, b.addr)
		reqID = s.SendRequest(b.id, messages.NewPingRequest())
	})

	rr := b.waitEvent(t, func(ev Event) bool {
		_, ok := ev.(RequestReceived)
		return ok
	}).(RequestReceived)

	if rr.Peer != a.id || rr.Request.Kind != messages.Ping {
		t.Fatalf("b should receive a Ping from a, got %#v", rr)
	}

	var first, second error
	b.do(func(s *Swarm) {
		first = s.SendResponse(rr.Channel, messages.Response{Kind: messages.Ping})
		second = s.SendResponse(rr.Channel, messages.Response{Kind: messages.Ping})
	})

	if first != nil {
		t.Fatalf("err: %v", first)
	}

	if second != ErrResponseAlreadySent {
		t.Fatalf("second response should return ErrResponseAlreadySent, got %v", second)
	}

	resp := a.waitEvent(t, func(ev Event) bool {
		_, ok := ev.(ResponseReceived)
		return ok
	}).(ResponseReceived)

	if resp.RequestID != reqID || resp.Peer != b.id || resp.Response.Kind != messages.Ping {
		t.Fatalf("a should receive the Ping response to request %d, got %#v", reqID, resp)
	}
}

func TestRequestUnknownPeer(t *testing.T) {
	a, b := newTestNode(t), newTestNode(t)

	var reqID RequestID
	a.do(func(s *Swarm) {
		reqID = s.SendRequest(b.id, messages.NewPingRequest())
	})

	ev := a.waitEvent(t, func(ev Event) bool {
		_, ok := ev.(OutboundFailure)
		return ok
	}).(OutboundFailure)

	if ev.RequestID != reqID || ev.Err != ErrNoAddress {
		t.Fatalf("request should fail with ErrNoAddress, got %#v", ev)
	}
}

func TestRequestTimeout(t *testing.T) {
	a, b := newTestNode(t), newTestNode(t)
	connectAll(a, b)
	a.trans.SetTimeout(100 * time.Millisecond)

	var reqID RequestID
	a.do(func(s *Swarm) {
		s.AddAddress(b.id, b.addr)
		reqID = s.SendRequest(b.id, messages.NewPingRequest())
	})

	// b never answers
	rr := b.waitEvent(t, func(ev Event) bool {
		_, ok := ev.(RequestReceived)
		return ok
	}).(RequestReceived)

	ev := a.waitEvent(t, func(ev Event) bool {
		_, ok := ev.(OutboundFailure)
		return ok
	}).(OutboundFailure)

	if ev.RequestID != reqID {
		t.Fatalf("failure should be for request %d, got %d", reqID, ev.RequestID)
	}

	var err error
	b.do(func(s *Swarm) {
		err = s.SendResponse(rr.Channel, messages.Response{Kind: messages.Ping})
	})

	if err != ErrResponseChannelClosed {
		t.Fatalf("late response should return ErrResponseChannelClosed, got %v", err)
	}
}

func TestPeerGoesAway(t *testing.T) {
	a, b := newTestNode(t), newTestNode(t)
	connectAll(a, b)

	a.do(func(s *Swarm) {
		if err := s.Dial(b.fullAddr(t)); err != nil {
			t.Errorf("err: %v", err)
		}
	})

	a.waitEvent(t, func(ev Event) bool {
		ce, ok := ev.(ConnectionEstablished)
		return ok && ce.Peer == b.id
	})

	b.trans.Close()

	var reqID RequestID
	a.do(func(s *Swarm) {
		reqID = s.SendRequest(b.id, messages.NewPingRequest())
	})

	ev := a.waitEvent(t, func(ev Event) bool {
		_, ok := ev.(OutboundFailure)
		return ok
	}).(OutboundFailure)

	if ev.RequestID != reqID || ev.Peer != b.id {
		t.Fatalf("request %d to b should fail, got %#v", reqID, ev)
	}

	removed := a.waitEvent(t, func(ev Event) bool {
		_, ok := ev.(kad.RoutingPeerRemoved)
		return ok
	}).(kad.RoutingPeerRemoved)

	if removed.Peer != b.id {
		t.Fatalf("b should leave the routing table, got %s", removed.Peer)
	}

	var connected []peers.ID
	var tableSize int
	a.do(func(s *Swarm) {
		connected = s.ConnectedPeers()
		tableSize = s.RoutingTableSize()
	})

	if len(connected) != 0 {
		t.Fatalf("a should not be connected to anyone, got %v", connected)
	}

	if tableSize != 0 {
		t.Fatalf("a's routing table should be empty, size is %d", tableSize)
	}

	// b is gone, a new dial fails and leaves it disconnected
	a.do(func(s *Swarm) {
		if err := s.Dial(b.fullAddr(t)); err != nil {
			t.Errorf("err: %v", err)
		}
	})

	a.waitEvent(t, func(ev Event) bool {
		oe, ok := ev.(OutgoingConnectionError)
		return ok && oe.Peer == b.id
	})

	a.do(func(s *Swarm) {
		connected = s.ConnectedPeers()
	})

	if len(connected) != 0 {
		t.Fatalf("a failed dial should not connect b, got %v", connected)
	}
}

func TestClosestPeersAndRecords(t *testing.T) {
	nodes := []*testNode{newTestNode(t), newTestNode(t), newTestNode(t), newTestNode(t)}
	connectAll(nodes...)

	// everybody bootstraps from node 0
	for _, n := range nodes[1:] {
		n.do(func(s *Swarm) {
			s.AddAddress(nodes[0].id, nodes[0].addr)
			if err := s.Dial(nodes[0].fullAddr(t)); err != nil {
				t.Errorf("err: %v", err)
			}
		})
		n.waitEvent(t, func(ev Event) bool {
			_, ok := ev.(ConnectionEstablished)
			return ok
		})
	}

	var qid kad.QueryID
	nodes[3].do(func(s *Swarm) {
		qid = s.GetClosestPeers([]byte("some key"))
	})

	res := nodes[3].waitQuery(t, qid).Result.(kad.GetClosestPeersResult)
	found := peers.NewIDSet(res.Peers...)

	for _, n := range nodes[:3] {
		if !found.Contains(n.id) {
			t.Fatalf("closest peers should contain %s, got %v", n.id, res.Peers)
		}
	}

	record := kad.NewRecord([]byte("record key"), []byte("record value"))

	var putErr error
	nodes[1].do(func(s *Swarm) {
		qid, putErr = s.PutRecord(record, kad.QuorumAll)
	})
	if putErr != nil {
		t.Fatalf("err: %v", putErr)
	}

	put := nodes[1].waitQuery(t, qid).Result.(kad.PutRecordResult)
	if put.Err != nil || put.Success != 3 {
		t.Fatalf("record should be replicated on 3 peers, got %#v", put)
	}

	var count int
	nodes[2].do(func(s *Swarm) {
		count = s.RecordCount()
		qid = s.GetRecord([]byte("record key"))
	})

	if count != 1 {
		t.Fatalf("node 2 should hold the record")
	}

	got := nodes[2].waitQuery(t, qid).Result.(kad.GetRecordResult)
	if got.Err != nil || string(got.Record.Value) != "record value" {
		t.Fatalf("record should be found, got %#v", got)
	}

	if got.Record.Publisher != nodes[1].id {
		t.Fatalf("publisher should be node 1")
	}
}
