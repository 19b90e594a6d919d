package authcore

import (
	"sync"
	"testing"
)

func TestMetricsIncAndGet(t *testing.T) {
	m := NewMetrics(true)
	if !m.Enabled() {
		t.Fatal("metrics should report enabled")
	}

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricRefreshSuccess)

	if got := m.Get(MetricLoginSuccess); got != 2 {
		t.Fatalf("login success = %d, want 2", got)
	}
	if got := m.Get(MetricRefreshSuccess); got != 1 {
		t.Fatalf("refresh success = %d, want 1", got)
	}
	if got := m.Get(MetricLogout); got != 0 {
		t.Fatalf("untouched counter = %d, want 0", got)
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(false)
	m.Inc(MetricLoginSuccess)
	if got := m.Get(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled counter moved: %d", got)
	}
	if m.Enabled() {
		t.Fatal("disabled metrics report enabled")
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	if got := m.Get(MetricLoginSuccess); got != 0 {
		t.Fatalf("nil receiver returned %d", got)
	}
	if m.Enabled() {
		t.Fatal("nil receiver reports enabled")
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("nil snapshot has %d counters", len(snap.Counters))
	}
}

func TestMetricsIgnoresUnknownID(t *testing.T) {
	m := NewMetrics(true)
	m.Inc(metricIDCount)
	m.Inc(metricIDCount + 5)
	if got := m.Get(metricIDCount); got != 0 {
		t.Fatalf("out-of-range get returned %d", got)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics(true)
	m.Inc(MetricMFAVerifySuccess)
	m.Inc(MetricMFAVerifySuccess)
	m.Inc(MetricMFAVerifyFailure)

	snap := m.Snapshot()
	if len(snap.Counters) != int(metricIDCount) {
		t.Fatalf("snapshot has %d counters, want %d", len(snap.Counters), metricIDCount)
	}
	if snap.Counters[MetricMFAVerifySuccess] != 2 || snap.Counters[MetricMFAVerifyFailure] != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap.Counters)
	}

	// A snapshot is a copy, not a view.
	m.Inc(MetricMFAVerifySuccess)
	if snap.Counters[MetricMFAVerifySuccess] != 2 {
		t.Fatal("snapshot tracked later increments")
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(true)
	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricLoginSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Get(MetricLoginSuccess); got != workers*perWorker {
		t.Fatalf("concurrent count = %d, want %d", got, workers*perWorker)
	}
}
