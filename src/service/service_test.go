package service

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/safenetwork/safenode/src/common"
	"github.com/safenetwork/safenode/src/crypto/keys"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/net"
	"github.com/safenetwork/safenode/src/network"
	"github.com/safenetwork/safenode/src/node"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol"
	"github.com/safenetwork/safenode/src/swarm"
)

type testNode struct {
	*node.Node
	addr  ma.Multiaddr
	trans *net.InmemTransport
	reg   *prometheus.Registry
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
	logger := common.NewTestEntry(t, common.TestLogLevel)
	reg := prometheus.NewRegistry()

	conf := swarm.DefaultConfig()
	conf.Kad.QueryTimeout = 2 * time.Second

	s := swarm.New(id, trans, kad.NewInmemRecordStore(100), conf, logger)
	n, events, driver := network.NewSwarmDriver(network.DefaultConfig(), s, logger, reg)

	nd := node.NewNode(node.TestConfig(t), n, events, driver)
	t.Cleanup(nd.Shutdown)

	if err := nd.Init(addr); err != nil {
		t.Fatalf("err: %v", err)
	}
	nd.RunAsync()

	return &testNode{Node: nd, addr: addr, trans: trans, reg: reg}
}

func newTestService(t *testing.T) (*httptest.Server, *testNode, *testNode) {
	a, b := newTestNode(t), newTestNode(t)
	a.trans.Connect(b.addr, b.trans)
	b.trans.Connect(a.addr, a.trans)

	if err := a.Bootstrap([]*peers.Peer{peers.NewPeer(b.ID(), b.addr)}); err != nil {
		t.Fatalf("err: %v", err)
	}

	s := NewService("", a.Node, a.reg, common.NewTestEntry(t, common.TestLogLevel))

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return ts, a, b
}

func get(t *testing.T, url string, expStatus int) []byte {
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if resp.StatusCode != expStatus {
		t.Fatalf("%s should return %d, got %d: %s", url, expStatus, resp.StatusCode, body)
	}

	if resp.Header.Get("Access-Control-Allow-Origin") != "*" && !strings.HasSuffix(url, "/metrics") {
		t.Fatalf("%s should enable CORS", url)
	}

	return body
}

func TestService(t *testing.T) {
	ts, a, b := newTestService(t)

	var stats map[string]string
	if err := json.Unmarshal(get(t, ts.URL+"/stats", http.StatusOK), &stats); err != nil {
		t.Fatalf("err: %v", err)
	}
	if stats["id"] != a.ID().String() {
		t.Fatalf("stats id should be %s, got %s", a.ID(), stats["id"])
	}

	var info PeersInfo
	if err := json.Unmarshal(get(t, ts.URL+"/peers", http.StatusOK), &info); err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(info.ConnectedPeers) != 1 || info.ConnectedPeers[0] != b.ID().String() {
		t.Fatalf("a should be connected to b, got %v", info.ConnectedPeers)
	}
	if len(info.Listeners) != 1 || info.Listeners[0] != a.addr.String() {
		t.Fatalf("a should listen on %s, got %v", a.addr, info.Listeners)
	}

	var closest []string
	target := protocol.RandomXorName()
	if err := json.Unmarshal(get(t, ts.URL+"/closest/"+target.String(), http.StatusOK), &closest); err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(closest) == 0 || closest[0] != b.ID().String() {
		t.Fatalf("closest peers should contain b, got %v", closest)
	}

	get(t, ts.URL+"/closest/nothex", http.StatusBadRequest)

	metrics := string(get(t, ts.URL+"/metrics", http.StatusOK))
	if !strings.Contains(metrics, "safenode_network_commands_total") {
		t.Fatalf("metrics should expose the driver counters, got %s", metrics)
	}
}
