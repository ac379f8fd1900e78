package network

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "safenode"

// metrics of the command processor. They are only updated from Run.
type metrics struct {
	commands *prometheus.CounterVec
	events   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	pending  *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "network",
			Name:      "commands_total",
			Help:      "Commands processed by the swarm driver.",
		}, []string{"cmd"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "network",
			Name:      "swarm_events_total",
			Help:      "Swarm events routed by the swarm driver.",
		}, []string{"event"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "network",
			Name:      "command_errors_total",
			Help:      "Commands that returned an error, by severity.",
		}, []string{"severity"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "network",
			Name:      "pending_operations",
			Help:      "Operations waiting for a swarm event, by table.",
		}, []string{"table"}),
	}

	if reg != nil {
		reg.MustRegister(m.commands, m.events, m.errors, m.pending)
	}

	return m
}

func (m *metrics) observeCmd(cmd SwarmCmd, err error) {
	m.commands.WithLabelValues(typeName(cmd)).Inc()

	switch {
	case err == nil:
	case IsFatal(err):
		m.errors.WithLabelValues("fatal").Inc()
	default:
		m.errors.WithLabelValues("non_fatal").Inc()
	}
}

func (m *metrics) observeEvent(ev interface{}) {
	m.events.WithLabelValues(typeName(ev)).Inc()
}

func (m *metrics) observePending(d *SwarmDriver) {
	m.pending.WithLabelValues("dial").Set(float64(d.pendingDial.len()))
	m.pending.WithLabelValues("get_closest_peers").Set(float64(d.pendingGetClosestPeers.len()))
	m.pending.WithLabelValues("query").Set(float64(d.pendingQuery.len()))
	m.pending.WithLabelValues("requests").Set(float64(d.pendingRequests.len()))
}

// typeName returns the bare type name of v, without package or pointer.
func typeName(v interface{}) string {
	s := fmt.Sprintf("%T", v)
	return s[strings.LastIndex(s, ".")+1:]
}
