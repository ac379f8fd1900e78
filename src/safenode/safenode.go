package safenode

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/safenetwork/safenode/src/config"
	"github.com/safenetwork/safenode/src/crypto/keys"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/net"
	"github.com/safenetwork/safenode/src/network"
	"github.com/safenetwork/safenode/src/node"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/service"
	"github.com/safenetwork/safenode/src/swarm"
	"github.com/sirupsen/logrus"
)

// SafeNode is the engine that builds the components of a node from a Config
// and runs them.
type SafeNode struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     kad.RecordStore
	Peers     []*peers.Peer
	Registry  *prometheus.Registry
	Service   *service.Service
	logger    *logrus.Entry
}

// NewSafeNode ...
func NewSafeNode(c *config.Config) *SafeNode {
	engine := &SafeNode{
		Config:   c,
		Registry: prometheus.NewRegistry(),
		logger:   c.Logger(),
	}

	engine.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return engine
}

// Init reads the key and the bootstrap peers, then builds the record store,
// the transport, the swarm, the node and the service. The node is listening
// when Init returns.
func (s *SafeNode) Init() error {
	if err := s.initKey(); err != nil {
		return err
	}

	if err := s.initPeers(); err != nil {
		return err
	}

	if err := s.initStore(); err != nil {
		return err
	}

	s.initTransport()

	if err := s.initNode(); err != nil {
		return err
	}

	s.initService()

	return nil
}

// Run starts the service, bootstraps the node and handles requests until the
// node shuts down.
func (s *SafeNode) Run() {
	if s.Service != nil {
		go s.Service.Serve()
	}

	if err := s.Node.Bootstrap(s.Peers); err != nil {
		s.logger.WithError(err).Error("Bootstrap failed, waiting for peers to dial in")
	}

	s.Node.Run()
}

func (s *SafeNode) initKey() error {
	if s.Config.Key != nil {
		return nil
	}

	key, created, err := keys.NewSimpleKeyfile(s.Config.Keyfile()).ReadOrCreateKey()
	if err != nil {
		s.logger.WithError(err).Error("Cannot read or create the private key")
		return err
	}

	if created {
		s.logger.WithField("keyfile", s.Config.Keyfile()).Info("Created a new key")
	}

	s.Config.Key = key

	return nil
}

func (s *SafeNode) initPeers() error {
	ps, err := peers.NewJSONPeers(s.Config.DataDir).Peers()
	if os.IsNotExist(err) {
		s.logger.Debug("No peers.json, starting without bootstrap peers")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading peers.json: %w", err)
	}

	s.Peers = ps

	return nil
}

func (s *SafeNode) initStore() error {
	if !s.Config.Store {
		s.Store = kad.NewInmemRecordStore(s.Config.MaxRecords)

		s.logger.Debug("created new in-mem record store")

		return nil
	}

	s.logger.WithField("path", s.Config.DatabaseDir).Debug("Attempting to load or create database")

	store, err := kad.NewBadgerRecordStore(
		s.Config.DatabaseDir,
		s.Config.CacheSize,
		s.Config.MaxRecords,
		s.logger.WithField("prefix", "badger"),
	)
	if err != nil {
		return fmt.Errorf("opening record database: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"path":    store.StorePath(),
		"records": store.Len(),
	}).Info("Opened record database")

	s.Store = store

	return nil
}

func (s *SafeNode) initTransport() {
	s.Transport = net.NewTCPTransport(
		s.Config.MaxPool,
		s.Config.TCPTimeout,
		s.logger,
	)
}

func (s *SafeNode) initNode() error {
	listen, err := s.Config.Listen()
	if err != nil {
		return fmt.Errorf("parsing listen address: %w", err)
	}

	id, err := peers.IDFromPublicKey(&s.Config.Key.PublicKey)
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"id":        id,
		"bootstrap": len(s.Peers),
	}).Debug("PEER ID")

	sw := swarm.New(id, s.Transport, s.Store, s.Config.SwarmConfig(), s.logger)

	n, events, driver := network.NewSwarmDriver(network.DefaultConfig(), sw, s.logger, s.Registry)

	s.Node = node.NewNode(s.Config.NodeConfig(), n, events, driver)

	if err := s.Node.Init(listen); err != nil {
		s.Node.Shutdown()
		return fmt.Errorf("failed to initialize node: %w", err)
	}

	return nil
}

func (s *SafeNode) initService() {
	if s.Config.NoService {
		return
	}

	s.Service = service.NewService(s.Config.ServiceAddr, s.Node, s.Registry, s.logger)
}
