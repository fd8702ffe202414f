package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestDispatchMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewDispatchMetrics(reg)
	metrics.ObserveDuration("external", 250*time.Millisecond)
	metrics.IncAttempt("external", "ok")
	metrics.IncAttempt("external", "failed")
	metrics.IncFallback()
	metrics.ObserveChainHops(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "dispatch_attempts_total", "result", "ok"); err != nil {
		t.Fatalf("fetch attempts: %v", err)
	} else if got != 1 {
		t.Fatalf("expected ok attempts=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "dispatch_duration_seconds", "branch", "external"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestDispatchMetricsNilRegistererIsNoop(t *testing.T) {
	metrics := NewDispatchMetrics(nil)
	metrics.ObserveDuration("external", time.Second)
	metrics.IncAttempt("external", "ok")
	metrics.IncFallback()
	metrics.ObserveChainHops(1)
}

func TestPollerMetricsExports(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPollerMetrics(reg)
	metrics.ObserveCycle(time.Second)
	metrics.AddScanned(12)
	metrics.IncTransition("completed")
	metrics.IncExhausted()
	metrics.IncError()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "poller_transitions_total", "status", "completed"); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected transitions=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "poller_orders_scanned_total")
	if mf == nil {
		t.Fatal("scanned counter not exported")
	}
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 12 {
		t.Fatalf("expected scanned=12, got %f", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
