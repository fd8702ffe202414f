package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records dispatch attempts by routing branch.
type DispatchMetrics struct {
	duration  *prometheus.HistogramVec
	attempts  *prometheus.CounterVec
	fallbacks prometheus.Counter
	chainHops prometheus.Histogram
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_duration_seconds",
		Help:    "Duration of dispatch attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"branch"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_attempts_total",
		Help: "Dispatch attempts by branch and result.",
	}, []string{"branch", "result"})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_auto_fallbacks_total",
		Help: "Orders re-routed to the fallback provider.",
	})
	chainHops := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_chain_hops",
		Help:    "Hop count of forwarded order chains.",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
	})
	reg.MustRegister(duration, attempts, fallbacks, chainHops)
	return &DispatchMetrics{
		duration:  duration,
		attempts:  attempts,
		fallbacks: fallbacks,
		chainHops: chainHops,
	}
}

// ObserveDuration records the duration of an attempt on the named branch.
func (d *DispatchMetrics) ObserveDuration(branch string, duration time.Duration) {
	if d == nil || d.duration == nil {
		return
	}
	d.duration.WithLabelValues(normalizeLabel(branch)).Observe(duration.Seconds())
}

// IncAttempt increments the attempt counter for the branch/result pair.
func (d *DispatchMetrics) IncAttempt(branch, result string) {
	if d == nil || d.attempts == nil {
		return
	}
	d.attempts.WithLabelValues(normalizeLabel(branch), normalizeLabel(result)).Inc()
}

// IncFallback counts one fallback re-route.
func (d *DispatchMetrics) IncFallback() {
	if d == nil || d.fallbacks == nil {
		return
	}
	d.fallbacks.Inc()
}

// ObserveChainHops records the hop count of a completed forward.
func (d *DispatchMetrics) ObserveChainHops(hops int) {
	if d == nil || d.chainHops == nil {
		return
	}
	d.chainHops.Observe(float64(hops))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
