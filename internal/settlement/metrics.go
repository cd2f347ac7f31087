package settlement

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ammSettle/internal/model"
)

// Metrics holds the coordinator's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	Applied      *prometheus.CounterVec
	ApplyLatency *prometheus.HistogramVec
	StaleQuotes  prometheus.Counter
	Requotes     prometheus.Counter
	HaltedPools  prometheus.Gauge
	JournalFails *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Applied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settle",
				Subsystem: "coordinator",
				Name:      "instructions_total",
				Help:      "Instructions submitted for apply, by kind and result",
			},
			[]string{"kind", "result"},
		),
		ApplyLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "settle",
				Subsystem: "coordinator",
				Name:      "apply_duration_seconds",
				Help:      "Time spent applying an instruction, lock wait included",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"kind"},
		),
		StaleQuotes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "settle",
			Subsystem: "coordinator",
			Name:      "stale_quotes_total",
			Help:      "Instructions whose snapshot no longer matched the pool",
		}),
		Requotes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "settle",
			Subsystem: "coordinator",
			Name:      "requotes_total",
			Help:      "Stale instructions applied after re-validation in relaxed mode",
		}),
		HaltedPools: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "settle",
			Subsystem: "coordinator",
			Name:      "halted_pools",
			Help:      "Pools halted by an invariant violation",
		}),
		JournalFails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settle",
				Subsystem: "journal",
				Name:      "failures_total",
				Help:      "Receipts a journal failed to record",
			},
			[]string{"journal"},
		),
	}
}

func (m *Metrics) observe(kind model.OpKind, err error, started time.Time) {
	if m == nil {
		return
	}
	m.Applied.WithLabelValues(string(kind), model.Kind(err)).Inc()
	m.ApplyLatency.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) stale() {
	if m != nil {
		m.StaleQuotes.Inc()
	}
}

func (m *Metrics) requoted() {
	if m != nil {
		m.Requotes.Inc()
	}
}

func (m *Metrics) halted() {
	if m != nil {
		m.HaltedPools.Inc()
	}
}

func (m *Metrics) journalFailed(name string) {
	if m != nil {
		m.JournalFails.WithLabelValues(name).Inc()
	}
}
