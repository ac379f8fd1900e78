package safenode

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/safenetwork/safenode/src/common"
	"github.com/safenetwork/safenode/src/config"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/peers"
)

func newTestConfig(t *testing.T) *config.Config {
	dir, err := ioutil.TempDir("", "safenode")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(dir)
	conf.ListenAddr = "/ip4/127.0.0.1/tcp/0"
	conf.NoService = true
	conf.QueryTimeout = 2 * time.Second
	conf.BootstrapTimeout = 5 * time.Second

	return conf
}

func newTestEngine(t *testing.T, conf *config.Config) *SafeNode {
	engine := NewSafeNode(conf)

	if err := engine.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(engine.Node.Shutdown)

	return engine
}

func TestInitKey(t *testing.T) {
	conf := newTestConfig(t)

	engine := NewSafeNode(conf)
	if err := engine.initKey(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := os.Stat(conf.Keyfile()); err != nil {
		t.Fatalf("key should be written to %s: %v", conf.Keyfile(), err)
	}

	key := conf.Key
	conf.Key = nil

	engine2 := NewSafeNode(conf)
	if err := engine2.initKey(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if conf.Key.D.Cmp(key.D) != 0 {
		t.Fatalf("second engine should read the same key")
	}
}

func TestInitStore(t *testing.T) {
	conf := newTestConfig(t)
	conf.Store = true

	engine := NewSafeNode(conf)
	if err := engine.initStore(); err != nil {
		t.Fatalf("err: %v", err)
	}
	defer engine.Store.Close()

	if _, err := os.Stat(conf.DatabaseDir); err != nil {
		t.Fatalf("database should be created in %s: %v", conf.DatabaseDir, err)
	}

	if conf.DatabaseDir != filepath.Join(conf.DataDir, config.DefaultBadgerFile) {
		t.Fatalf("database should live in the data dir, got %s", conf.DatabaseDir)
	}

	bs, ok := engine.Store.(*kad.BadgerRecordStore)
	if !ok {
		t.Fatalf("store should be a BadgerRecordStore, got %T", engine.Store)
	}
	if bs.StorePath() != conf.DatabaseDir {
		t.Fatalf("store path should be %s, got %s", conf.DatabaseDir, bs.StorePath())
	}
}

func TestInitPeers(t *testing.T) {
	conf := newTestConfig(t)

	engine := NewSafeNode(conf)
	if err := engine.initPeers(); err != nil {
		t.Fatalf("a missing peers.json should not be an error, got %v", err)
	}

	if err := ioutil.WriteFile(filepath.Join(conf.DataDir, "peers.json"), []byte("not json"), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := engine.initPeers(); err == nil {
		t.Fatalf("a malformed peers.json should be an error")
	}
}

func TestBootstrapFromPeersJSON(t *testing.T) {
	first := newTestEngine(t, newTestConfig(t))
	go first.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := first.Node.GetSwarmState(ctx)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	conf := newTestConfig(t)
	err = peers.NewJSONPeers(conf.DataDir).SetPeers([]*peers.Peer{
		peers.NewPeer(first.Node.ID(), st.Listeners...),
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	second := newTestEngine(t, conf)
	if len(second.Peers) != 1 {
		t.Fatalf("second engine should load 1 bootstrap peer, got %d", len(second.Peers))
	}
	go second.Run()

	for i := 0; i < 50; i++ {
		st, err = first.Node.GetSwarmState(ctx)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if peers.NewIDSet(st.ConnectedPeers...).Contains(second.Node.ID()) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("first node should see the second one, got %v", st.ConnectedPeers)
}
