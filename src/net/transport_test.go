package net

import (
	"context"
	"reflect"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	mh "github.com/multiformats/go-multihash"
	"github.com/safenetwork/safenode/src/common"
	"github.com/safenetwork/safenode/src/protocol/messages"
)

const (
	INMEM = iota
	TCP
	numTestTransports // NOTE: must be last
)

var tcpAny = ma.StringCast("/ip4/127.0.0.1/tcp/0")

func NewTestTransport(ttype int, t *testing.T) (Transport, ma.Multiaddr) {
	switch ttype {
	case INMEM:
		_, it := NewInmemTransport(nil)
		addr, err := it.Listen(nil)
		if err != nil {
			t.Fatal(err)
		}
		return it, addr
	case TCP:
		tt := NewTCPTransport(2, time.Second, common.NewTestEntry(t, common.TestLogLevel))
		addr, err := tt.Listen(tcpAny)
		if err != nil {
			t.Fatal(err)
		}
		return tt, addr
	default:
		panic("Unknown transport type")
	}
}

// connectPair makes in-memory transports reachable from each other. It is a
// no-op for network transports.
func connectPair(t1 Transport, a1 ma.Multiaddr, t2 Transport, a2 ma.Multiaddr) {
	it1, ok1 := t1.(*InmemTransport)
	it2, ok2 := t2.(*InmemTransport)
	if ok1 && ok2 {
		it1.Connect(a2, it2)
		it2.Connect(a1, it1)
	}
}

// serveOne answers the next RPC received by trans with resp, after checking
// that the command equals expected.
func serveOne(t *testing.T, trans Transport, expected interface{}, resp interface{}) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		select {
		case rpc := <-trans.Consumer():
			if !reflect.DeepEqual(rpc.Command, expected) {
				t.Errorf("command mismatch: %#v %#v", rpc.Command, expected)
			}
			errCh <- rpc.Respond(resp, nil)
		case <-time.After(2 * time.Second):
			t.Errorf("timeout")
			errCh <- nil
		}
	}()
	return errCh
}

func testPeerInfo(seed byte) PeerInfo {
	id, _ := mh.Sum([]byte{seed}, mh.SHA2_256, -1)
	return PeerInfo{
		ID:    []byte(id),
		Addrs: [][]byte{ma.StringCast("/ip4/10.0.0.1/tcp/1200").Bytes()},
	}
}

func TestTransport_StartStop(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans, _ := NewTestTransport(ttype, t)
		if len(trans.Listeners()) != 1 {
			t.Fatalf("transport %d should have 1 listener, not %d", ttype, len(trans.Listeners()))
		}
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestTransport_FindNode(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1, addr1 := NewTestTransport(ttype, t)
		defer trans1.Close()

		trans2, addr2 := NewTestTransport(ttype, t)
		defer trans2.Close()

		connectPair(trans1, addr1, trans2, addr2)

		args := FindNodeRequest{
			From: testPeerInfo(2),
			Key:  []byte("some key"),
		}
		resp := FindNodeResponse{
			Closer: []PeerInfo{testPeerInfo(3), testPeerInfo(4)},
		}

		errCh := serveOne(t, trans1, &args, &resp)

		var out FindNodeResponse
		if err := trans2.FindNode(context.Background(), addr1, &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		if err := <-errCh; err != nil {
			t.Fatalf("respond err: %v", err)
		}

		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}
	}
}

func TestTransport_GetPutRecord(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1, addr1 := NewTestTransport(ttype, t)
		defer trans1.Close()

		trans2, addr2 := NewTestTransport(ttype, t)
		defer trans2.Close()

		connectPair(trans1, addr1, trans2, addr2)

		record := WireRecord{
			Key:       []byte("key"),
			Value:     []byte("value"),
			Publisher: testPeerInfo(1).ID,
		}

		putArgs := PutRecordRequest{From: testPeerInfo(2), Record: record}
		putResp := PutRecordResponse{Stored: true}
		errCh := serveOne(t, trans1, &putArgs, &putResp)

		var putOut PutRecordResponse
		if err := trans2.PutRecord(context.Background(), addr1, &putArgs, &putOut); err != nil {
			t.Fatalf("err: %v", err)
		}
		<-errCh

		if !putOut.Stored {
			t.Fatalf("record should be stored")
		}

		getArgs := GetRecordRequest{From: testPeerInfo(2), Key: []byte("key")}
		getResp := GetRecordResponse{Record: &record}
		errCh = serveOne(t, trans1, &getArgs, &getResp)

		var getOut GetRecordResponse
		if err := trans2.GetRecord(context.Background(), addr1, &getArgs, &getOut); err != nil {
			t.Fatalf("err: %v", err)
		}
		<-errCh

		if getOut.Record == nil || !reflect.DeepEqual(*getOut.Record, record) {
			t.Fatalf("record mismatch: %#v %#v", getOut.Record, record)
		}
	}
}

func TestTransport_Request(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1, addr1 := NewTestTransport(ttype, t)
		defer trans1.Close()

		trans2, addr2 := NewTestTransport(ttype, t)
		defer trans2.Close()

		connectPair(trans1, addr1, trans2, addr2)

		chunk := messages.NewChunk([]byte("chunk data"))

		args := AppRequest{
			From:    testPeerInfo(2),
			Request: messages.NewStoreChunkRequest(chunk),
		}
		resp := AppResponse{
			Response: messages.Response{Kind: messages.StoreChunk},
		}

		errCh := serveOne(t, trans1, &args, &resp)

		var out AppResponse
		if err := trans2.Request(context.Background(), addr1, &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}
		<-errCh

		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}
	}
}

func TestTransport_ErrorResponse(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1, addr1 := NewTestTransport(ttype, t)
		defer trans1.Close()

		trans2, addr2 := NewTestTransport(ttype, t)
		defer trans2.Close()

		connectPair(trans1, addr1, trans2, addr2)

		go func() {
			rpc := <-trans1.Consumer()
			rpc.Respond(nil, errFake)
		}()

		var out IdentifyResponse
		err := trans2.Identify(context.Background(), addr1, &IdentifyRequest{From: testPeerInfo(2)}, &out)
		if err == nil || err.Error() != errFake.Error() {
			t.Fatalf("err should be %v, got %v", errFake, err)
		}
	}
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

var errFake = fakeErr("fake failure")

func TestInmemTransport_Unreachable(t *testing.T) {
	trans, _ := NewTestTransport(INMEM, t)
	defer trans.Close()

	var out IdentifyResponse
	err := trans.Identify(context.Background(), NewInmemAddr(), &IdentifyRequest{}, &out)
	if err == nil {
		t.Fatalf("identify to an unknown address should fail")
	}
}

func TestRPC_Respond(t *testing.T) {
	done := make(chan struct{})
	rpc, respCh := NewRPC(&IdentifyRequest{}, done)

	if err := rpc.Respond(&IdentifyResponse{}, nil); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := rpc.Respond(&IdentifyResponse{}, nil); err != ErrRPCAlreadyAnswered {
		t.Fatalf("second Respond should return ErrRPCAlreadyAnswered, got %v", err)
	}

	<-respCh

	close(done)
	if err := rpc.Respond(&IdentifyResponse{}, nil); err != ErrRPCAbandoned {
		t.Fatalf("Respond after done should return ErrRPCAbandoned, got %v", err)
	}
}

func TestPeerInfo_SkipsBadAddrs(t *testing.T) {
	info := testPeerInfo(7)
	info.Addrs = append(info.Addrs, []byte{0xff, 0xff})

	p, err := info.Peer()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(p.Addrs) != 1 {
		t.Fatalf("peer should have 1 address, not %d", len(p.Addrs))
	}
}
