package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PollerMetrics records status-poll sweep activity.
type PollerMetrics struct {
	cycleDuration prometheus.Histogram
	scanned       prometheus.Counter
	transitions   *prometheus.CounterVec
	exhausted     prometheus.Counter
	errors        prometheus.Counter
}

// NewPollerMetrics registers the poller metrics on the provided registerer.
func NewPollerMetrics(reg prometheus.Registerer) *PollerMetrics {
	if reg == nil {
		return &PollerMetrics{}
	}
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "poller_cycle_duration_seconds",
		Help:    "Duration of poll sweeps in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	scanned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poller_orders_scanned_total",
		Help: "Orders examined by the status poller.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poller_transitions_total",
		Help: "Order status transitions applied by the poller.",
	}, []string{"status"})
	exhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poller_budget_exhausted_total",
		Help: "Orders dropped from polling after exceeding the tracking budget.",
	})
	errors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poller_errors_total",
		Help: "Vendor lookups that failed during a sweep.",
	})
	reg.MustRegister(cycleDuration, scanned, transitions, exhausted, errors)
	return &PollerMetrics{
		cycleDuration: cycleDuration,
		scanned:       scanned,
		transitions:   transitions,
		exhausted:     exhausted,
		errors:        errors,
	}
}

// ObserveCycle records the duration of one sweep.
func (p *PollerMetrics) ObserveCycle(duration time.Duration) {
	if p == nil || p.cycleDuration == nil {
		return
	}
	p.cycleDuration.Observe(duration.Seconds())
}

// AddScanned counts orders examined in a sweep.
func (p *PollerMetrics) AddScanned(n int) {
	if p == nil || p.scanned == nil {
		return
	}
	p.scanned.Add(float64(n))
}

// IncTransition counts one applied status transition.
func (p *PollerMetrics) IncTransition(status string) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncExhausted counts one order dropped for exceeding the budget.
func (p *PollerMetrics) IncExhausted() {
	if p == nil || p.exhausted == nil {
		return
	}
	p.exhausted.Inc()
}

// IncError counts one failed vendor lookup.
func (p *PollerMetrics) IncError() {
	if p == nil || p.errors == nil {
		return
	}
	p.errors.Inc()
}
