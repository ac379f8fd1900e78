package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/safenetwork/safenode/src/common/oneshot"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/network"
	"github.com/safenetwork/safenode/src/node/state"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol"
	"github.com/safenetwork/safenode/src/protocol/messages"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnknownRequest is returned for a request kind the node does not
	// serve.
	ErrUnknownRequest = errors.New("unknown request")

	// ErrNoChunk is returned for a StoreChunk request that carries no chunk.
	ErrNoChunk = errors.New("no chunk in request")

	// ErrBusy is returned when too many requests are being handled.
	ErrBusy = errors.New("node busy")

	// ErrNoBootstrapPeer is returned by Bootstrap when none of the bootstrap
	// peers could be dialed.
	ErrNoBootstrapPeer = errors.New("no bootstrap peer reachable")
)

// Node defines a safenode node
type Node struct {
	state.Manager

	conf   *Config
	logger *logrus.Entry

	net    *network.Network
	events <-chan network.NetworkEvent
	driver *network.SwarmDriver

	// ctx is cancelled by Shutdown once the handlers returned. It stops the
	// driver.
	ctx           context.Context
	cancel        context.CancelFunc
	driverStarted atomic.Bool
	driverDone    chan struct{}

	sigintCh     chan os.Signal
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	start           time.Time
	requestsHandled int64
	requestErrors   int64
	peersAdded      int64
}

// NewNode is a factory method that returns a Node instance. The node takes
// ownership of the driver, which it starts in Init and stops in Shutdown.
func NewNode(conf *Config,
	net *network.Network,
	events <-chan network.NetworkEvent,
	driver *network.SwarmDriver,
) *Node {
	// Prepare sigintCh to relay SIGINT system calls
	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGINT)

	ctx, cancel := context.WithCancel(context.Background())

	node := Node{
		conf:       conf,
		logger:     conf.Logger.WithField("this_id", net.PeerID().ShortString()),
		net:        net,
		events:     events,
		driver:     driver,
		ctx:        ctx,
		cancel:     cancel,
		driverDone: make(chan struct{}),
		sigintCh:   sigintCh,
		shutdownCh: make(chan struct{}),
		start:      time.Now(),
	}

	return &node
}

// Init starts the network driver and listens on addr.
func (n *Node) Init(addr ma.Multiaddr) error {
	n.SetState(state.Starting)

	n.driverStarted.Store(true)
	go func() {
		n.driver.Run(n.ctx)
		close(n.driverDone)
	}()

	if err := n.net.StartListening(n.ctx, addr); err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	return nil
}

// Bootstrap dials the bootstrap peers concurrently, then looks up the peers
// closest to the local peer. It fails only if no bootstrap peer could be
// dialed. The local peer is skipped, so a node can be started with the
// peers.json file of the whole network.
func (n *Node) Bootstrap(bootstrap []*peers.Peer) error {
	_, others := peers.ExcludePeer(bootstrap, n.net.PeerID())
	if len(others) == 0 {
		n.logger.Debug("No bootstrap peer")
		return nil
	}

	ctx, cancel := context.WithTimeout(n.ctx, n.conf.BootstrapTimeout)
	defer cancel()

	var (
		g         errgroup.Group
		mu        sync.Mutex
		dialErr   error
		connected int32
	)

	for _, p := range others {
		p := p
		g.Go(func() error {
			for _, addr := range p.Addrs {
				err := n.net.Dial(ctx, p.ID, addr)
				if err == nil || errors.Is(err, oneshot.ErrClosed) {
					atomic.AddInt32(&connected, 1)
					return nil
				}

				n.logger.WithFields(logrus.Fields{
					"peer": p.ID.ShortString(),
					"addr": addr,
				}).WithError(err).Debug("Bootstrap dial failed")

				mu.Lock()
				dialErr = multierr.Append(dialErr, err)
				mu.Unlock()
			}
			return nil
		})
	}

	g.Wait()

	if connected == 0 {
		return fmt.Errorf("%w: %v", ErrNoBootstrapPeer, dialErr)
	}

	closest, err := n.net.GetClosestPeers(ctx, n.Address())
	if err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"connected": connected,
		"closest":   len(closest),
	}).Info("Bootstrapped")

	return nil
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	go n.Run()
}

// Run handles the network events until Shutdown.
func (n *Node) Run() {
	if !n.CompareAndSetState(state.Starting, state.Running) {
		n.logger.WithField("state", n.GetState()).Debug("Not running")
		return
	}

	n.logger.Debug("RUNNING")

	for {
		select {
		case ev := <-n.events:
			n.processEvent(ev)
		case <-n.shutdownCh:
			return
		case <-n.sigintCh:
			n.logger.Debug("Reacting to SIGINT")
			n.Shutdown()
			return
		}
	}
}

func (n *Node) processEvent(ev network.NetworkEvent) {
	switch ev := ev.(type) {
	case network.RequestReceived:
		launched := n.GoFunc(func() {
			n.processRequest(ev.Request, ev.Channel)
		})

		if !launched {
			n.logger.WithField("request", ev.Request).Warn("Too many requests, rejecting")
			n.respond(ev.Channel, messages.NewErrorResponse(ev.Request.Kind, ErrBusy))
		}
	case network.PeerAdded:
		atomic.AddInt64(&n.peersAdded, 1)
		n.logger.WithField("peer", ev.Peer.ShortString()).Debug("Peer added")
	}
}

func (n *Node) processRequest(req messages.Request, ch network.MsgResponder) {
	ctx, cancel := context.WithTimeout(n.ctx, n.conf.RequestTimeout)
	defer cancel()

	var (
		resp = messages.Response{Kind: req.Kind}
		err  error
	)

	switch req.Kind {
	case messages.Ping:
	case messages.GetChunk:
		var chunk messages.Chunk
		if chunk, err = n.GetChunk(ctx, req.Address); err == nil {
			resp.Chunk = &chunk
		}
	case messages.StoreChunk:
		if req.Chunk == nil {
			err = ErrNoChunk
		} else {
			err = n.StoreChunk(ctx, *req.Chunk)
		}
	default:
		err = ErrUnknownRequest
	}

	atomic.AddInt64(&n.requestsHandled, 1)

	if err != nil {
		atomic.AddInt64(&n.requestErrors, 1)
		n.logger.WithField("request", req).WithError(err).Debug("Request failed")
		resp = messages.NewErrorResponse(req.Kind, err)
	}

	n.respond(ch, resp)
}

func (n *Node) respond(ch network.MsgResponder, resp messages.Response) {
	if err := n.net.SendResponse(n.ctx, resp, ch); err != nil {
		n.logger.WithError(err).Error("Sending response")
	}
}

// StoreChunk stores chunk on the network. It returns once the store is
// submitted.
func (n *Node) StoreChunk(ctx context.Context, chunk messages.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return err
	}

	return n.net.PutRecord(ctx, kad.NewRecord(chunk.Address.Bytes(), chunk.Value))
}

// GetChunk fetches the chunk stored at addr and checks its content.
func (n *Node) GetChunk(ctx context.Context, addr protocol.XorName) (messages.Chunk, error) {
	qr, err := n.net.GetRecord(ctx, addr.Bytes())
	if err != nil {
		return messages.Chunk{}, err
	}

	if qr.Err != nil {
		return messages.Chunk{}, qr.Err
	}

	chunk := messages.Chunk{Address: addr, Value: qr.Value}
	if err := chunk.Validate(); err != nil {
		return messages.Chunk{}, err
	}

	return chunk, nil
}

// Request sends req to peer and returns the response. An error carried by the
// response is returned as an error.
func (n *Node) Request(ctx context.Context, peer peers.ID, req messages.Request) (messages.Response, error) {
	resp, err := n.net.SendRequest(ctx, req, peer)
	if err != nil {
		return resp, err
	}

	return resp, resp.Err()
}

// Ping returns the round trip time of a Ping request to peer.
func (n *Node) Ping(ctx context.Context, peer peers.ID) (time.Duration, error) {
	start := time.Now()

	if _, err := n.Request(ctx, peer, messages.NewPingRequest()); err != nil {
		return 0, err
	}

	return time.Since(start), nil
}

// Shutdown stops the node. It waits for the requests being handled, then
// stops the network driver.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		n.SetState(state.Shutdown)

		signal.Stop(n.sigintCh)

		// Stop and wait for concurrent operations
		close(n.shutdownCh)
		n.WaitRoutines()

		n.cancel()
		if n.driverStarted.Load() {
			<-n.driverDone
		}
	})
}

// ID returns the ID of the local peer.
func (n *Node) ID() peers.ID {
	return n.net.PeerID()
}

// Address returns the XorName of the local peer in the address space of the
// chunks.
func (n *Node) Address() protocol.XorName {
	return protocol.XorNameFromContent(n.ID().Bytes())
}

// GetSwarmState returns a snapshot of the network state.
func (n *Node) GetSwarmState(ctx context.Context) (network.SwarmLocalState, error) {
	return n.net.GetSwarmLocalState(ctx)
}

// GetClosestPeers looks up the peers closest to target.
func (n *Node) GetClosestPeers(ctx context.Context, target protocol.XorName) ([]peers.ID, error) {
	closest, err := n.net.GetClosestPeers(ctx, target)
	if err != nil {
		return nil, err
	}
	return closest.Slice(), nil
}

// GetStats returns information about the node.
func (n *Node) GetStats() map[string]string {
	ctx, cancel := context.WithTimeout(n.ctx, time.Second)
	defer cancel()

	connected, listeners := "nil", "nil"
	if st, err := n.net.GetSwarmLocalState(ctx); err == nil {
		connected = strconv.Itoa(len(st.ConnectedPeers))
		listeners = fmt.Sprint(st.Listeners)
	}

	s := map[string]string{
		"id":               n.ID().String(),
		"moniker":          n.conf.Moniker,
		"state":            n.GetState().String(),
		"connected_peers":  connected,
		"listeners":        listeners,
		"peers_added":      strconv.FormatInt(atomic.LoadInt64(&n.peersAdded), 10),
		"requests_handled": strconv.FormatInt(atomic.LoadInt64(&n.requestsHandled), 10),
		"request_errors":   strconv.FormatInt(atomic.LoadInt64(&n.requestErrors), 10),
		"active_requests":  strconv.Itoa(n.Running()),
		"uptime":           time.Since(n.start).Truncate(time.Second).String(),
	}
	return s
}
