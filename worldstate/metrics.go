package worldstate

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts world state activity. A nil *Metrics records nothing.
type Metrics struct {
	Commits   prometheus.Counter
	Conflicts prometheus.Counter
	Rollbacks prometheus.Counter
	Reads     prometheus.Counter
	Writes    prometheus.Counter
	Height    prometheus.Gauge
}

// NewMetrics creates the world state metrics and registers them with reg,
// unless reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "worldstate",
			Name:      "commits_total",
			Help:      "Total number of committed transactions",
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "worldstate",
			Name:      "conflicts_total",
			Help:      "Total number of transactions rejected by MVCC validation",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "worldstate",
			Name:      "rollbacks_total",
			Help:      "Total number of transactions rolled back",
		}),
		Reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "worldstate",
			Name:      "reads_total",
			Help:      "Total number of committed state reads",
		}),
		Writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "worldstate",
			Name:      "writes_total",
			Help:      "Total number of keys written by committed transactions",
		}),
		Height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Subsystem: "worldstate",
			Name:      "height",
			Help:      "Number of committed transactions with writes",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Commits, m.Conflicts, m.Rollbacks, m.Reads, m.Writes, m.Height)
	}
	return m
}

func (m *Metrics) read() {
	if m != nil {
		m.Reads.Inc()
	}
}

func (m *Metrics) committed(writes int, height uint64) {
	if m != nil {
		m.Commits.Inc()
		m.Writes.Add(float64(writes))
		m.Height.Set(float64(height))
	}
}

func (m *Metrics) conflict() {
	if m != nil {
		m.Conflicts.Inc()
	}
}

func (m *Metrics) rolledBack() {
	if m != nil {
		m.Rollbacks.Inc()
	}
}
