package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safenetwork/safenode/src/node"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/safenetwork/safenode/src/protocol"
	"github.com/sirupsen/logrus"
)

const queryTimeout = 30 * time.Second

// PeersInfo is the body of the /peers endpoint.
type PeersInfo struct {
	ID             string   `json:"id"`
	Listeners      []string `json:"listeners"`
	ConnectedPeers []string `json:"connected_peers"`
}

// Service exposes the state of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, gatherer prometheus.Gatherer, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers(gatherer)

	return &service
}

func (s *Service) registerHandlers(gatherer prometheus.Gatherer) {
	s.logger.Debug("Registering API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.HandleFunc("/closest/", s.makeHandler(s.GetClosest))

	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetPeers returns the listeners and the connected peers of the node.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	state, err := s.node.GetSwarmState(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Retrieving swarm state")

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	info := PeersInfo{
		ID:             s.node.ID().String(),
		Listeners:      make([]string, 0, len(state.Listeners)),
		ConnectedPeers: idStrings(state.ConnectedPeers),
	}

	for _, l := range state.Listeners {
		info.Listeners = append(info.Listeners, l.String())
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(info)
}

// GetClosest looks up the peers closest to the XorName given in hex in the
// path.
func (s *Service) GetClosest(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/closest/"):]

	target, err := protocol.ParseXorName(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing xorname parameter %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	closest, err := s.node.GetClosestPeers(ctx, target)
	if err != nil {
		s.logger.WithError(err).Errorf("Looking up peers closest to %s", target)

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(idStrings(closest))
}

func idStrings(ids []peers.ID) []string {
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		res = append(res, id.String())
	}
	return res
}
