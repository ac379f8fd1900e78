package network

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/safenetwork/safenode/src/common/oneshot"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol/messages"
	"github.com/safenetwork/safenode/src/swarm"
	"github.com/sirupsen/logrus"
)

// Swarm is the network stack driven by a SwarmDriver. It is implemented by
// *swarm.Swarm. Apart from Notifications, its methods are only called from
// Run.
type Swarm interface {
	LocalPeerID() peers.ID
	Notifications() <-chan swarm.Notification
	Process(n swarm.Notification)
	NextEvent() (swarm.Event, bool)

	ListenOn(addr ma.Multiaddr) (ma.Multiaddr, error)
	Listeners() []ma.Multiaddr
	ConnectedPeers() []peers.ID
	AddAddress(id peers.ID, addr ma.Multiaddr) kad.RoutingUpdate
	Dial(addr ma.Multiaddr) error

	GetClosestPeers(key []byte) kad.QueryID
	GetClosestLocalPeers(key []byte) []peers.ID
	PutRecord(r kad.Record, quorum kad.Quorum) (kad.QueryID, error)
	GetRecord(key []byte) kad.QueryID

	SendRequest(peer peers.ID, req messages.Request) swarm.RequestID
	SendResponse(ch *swarm.ResponseChannel, resp messages.Response) error

	Close() error
}

// Config ...
type Config struct {
	// CmdBufferSize is the capacity of the command queue.
	CmdBufferSize int

	// EventBufferSize is the capacity of the channel of NetworkEvents.
	EventBufferSize int
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		CmdBufferSize:   100,
		EventBufferSize: 100,
	}
}

// SwarmDriver owns a Swarm and the operations pending on it. Commands are
// processed one at a time by Run, which also routes the events of the swarm
// back to the callers waiting for them.
type SwarmDriver struct {
	swarm Swarm
	local peers.ID

	cmdCh      chan SwarmCmd
	eventCh    chan NetworkEvent
	shutdownCh chan struct{}

	pendingDial            *pendingTable[peers.ID, *oneshot.Sender[error]]
	pendingGetClosestPeers *pendingTable[kad.QueryID, *closestPeersQuery]
	pendingQuery           *pendingTable[kad.QueryID, *oneshot.Sender[messages.QueryResponse]]
	pendingRequests        *pendingTable[swarm.RequestID, *oneshot.Sender[ResponseResult]]

	metrics *metrics
	logger  *logrus.Entry
}

// NewSwarmDriver creates a driver for s. It returns the Network handle callers
// submit commands through, the channel of events for the upper layer, and the
// driver itself, which must be started with Run. The metrics of the driver
// are registered with reg unless it is nil.
func NewSwarmDriver(
	conf Config,
	s Swarm,
	logger *logrus.Entry,
	reg prometheus.Registerer,
) (*Network, <-chan NetworkEvent, *SwarmDriver) {
	d := &SwarmDriver{
		swarm:      s,
		local:      s.LocalPeerID(),
		cmdCh:      make(chan SwarmCmd, conf.CmdBufferSize),
		eventCh:    make(chan NetworkEvent, conf.EventBufferSize),
		shutdownCh: make(chan struct{}),

		pendingDial:            newPendingTable[peers.ID, *oneshot.Sender[error]]("dial"),
		pendingGetClosestPeers: newPendingTable[kad.QueryID, *closestPeersQuery]("get_closest_peers"),
		pendingQuery:           newPendingTable[kad.QueryID, *oneshot.Sender[messages.QueryResponse]]("query"),
		pendingRequests:        newPendingTable[swarm.RequestID, *oneshot.Sender[ResponseResult]]("requests"),

		metrics: newMetrics(reg),
		logger:  logger.WithField("component", "network"),
	}

	n := &Network{
		local:      d.local,
		cmdCh:      d.cmdCh,
		shutdownCh: d.shutdownCh,
	}

	return n, d.eventCh, d
}

// Run processes commands and swarm activity until ctx is done. It then
// abandons every pending operation, so that their callers stop waiting, and
// closes the swarm.
func (d *SwarmDriver) Run(ctx context.Context) {
	d.logger.WithField("peer", d.local.ShortString()).Info("Swarm driver started")

	defer d.shutdown()

	for {
		if err := d.pollSwarm(ctx); err != nil {
			d.logger.WithError(err).Debug("Stop polling swarm events")
		}

		select {
		case n := <-d.swarm.Notifications():
			d.swarm.Process(n)
		case cmd := <-d.cmdCh:
			d.processCmd(ctx, cmd)
		case <-ctx.Done():
			return
		}
	}
}

// pollSwarm routes every event the swarm has ready.
func (d *SwarmDriver) pollSwarm(ctx context.Context) error {
	for {
		ev, ok := d.swarm.NextEvent()
		if !ok {
			return nil
		}

		d.metrics.observeEvent(ev)

		err := d.handleSwarmEvent(ctx, ev)
		d.metrics.observePending(d)
		if err != nil {
			return err
		}
	}
}

func (d *SwarmDriver) processCmd(ctx context.Context, cmd SwarmCmd) {
	err := d.handleCmd(ctx, cmd)

	d.metrics.observeCmd(cmd, err)
	d.metrics.observePending(d)

	if err == nil {
		return
	}

	logger := d.logger.WithField("cmd", typeName(cmd)).WithError(err)
	if IsFatal(err) {
		logger.Error("Fatal error processing command")
	} else {
		logger.Warn("Error processing command")
	}
}

func (d *SwarmDriver) shutdown() {
	close(d.shutdownCh)

	// Commands submitted before the shutdown are abandoned too.
	for len(d.cmdCh) > 0 {
		(<-d.cmdCh).abandon()
	}

	for _, s := range d.pendingDial.drain() {
		s.Close()
	}
	for _, q := range d.pendingGetClosestPeers.drain() {
		q.sender.Close()
	}
	for _, s := range d.pendingQuery.drain() {
		s.Close()
	}
	for _, s := range d.pendingRequests.drain() {
		s.Close()
	}

	if err := d.swarm.Close(); err != nil {
		d.logger.WithError(err).Error("Closing swarm")
	}

	d.logger.Info("Swarm driver stopped")
}
