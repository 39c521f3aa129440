package agentAuth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricFlowBegin)

	if got := m.Value(MetricFlowBegin); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricFlowBegin)
	m.Inc(MetricFlowBegin)
	m.Inc(MetricFlowBegin)

	if got := m.Value(MetricFlowBegin); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricTokenHit)
	m.Observe(MetricOpenFlowLatency, time.Millisecond)
	if m.Value(MetricTokenHit) != 0 || m.Enabled() || m.LatencyEnabled() {
		t.Fatal("expected nil metrics to record nothing")
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricFlowConflict)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricFlowConflict); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricOpenFlowLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricOpenFlowLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounterIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Observe(MetricTokenHit, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricTokenHit]; ok {
		t.Fatal("expected no histogram for a counter id")
	}
	if snap.Counters[MetricTokenHit] != 0 {
		t.Fatalf("expected counter untouched, got %d", snap.Counters[MetricTokenHit])
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricFlowBegin)
	m.Inc(MetricFlowContinueFailure)
	m.Inc(MetricFlowContinueFailure)
	m.Observe(MetricOpenFlowLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricFlowBegin] != 1 {
		t.Fatalf("expected MetricFlowBegin=1 got %d", snap.Counters[MetricFlowBegin])
	}
	if snap.Counters[MetricFlowContinueFailure] != 2 {
		t.Fatalf("expected MetricFlowContinueFailure=2 got %d", snap.Counters[MetricFlowContinueFailure])
	}
	if _, ok := snap.Counters[MetricOpenFlowLatency]; ok {
		t.Fatal("expected latency id to be excluded from counters")
	}
	if len(snap.Histograms[MetricOpenFlowLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricOpenFlowLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricOpenFlowLatency][0])
	}
}

func TestMetricsCountFlowLifecycle(t *testing.T) {
	env := newFlowTestEnv(t, func(c *Config) {
		c.Metrics.Enabled = true
		c.Metrics.EnableLatencyHistograms = true
	})
	ctx := context.Background()

	env.driver.continueTokens = []*TokenResponse{nil, {Token: "tok-1"}}
	if _, err := env.auth.Begin(ctx, env.turn("hello"), "graph"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := env.auth.Begin(ctx, env.turn("again"), "graph"); err != ErrFlowAlreadyActive {
		t.Fatalf("expected ErrFlowAlreadyActive, got %v", err)
	}
	if _, err := env.auth.ContinueFlow(ctx, env.turn("000000"), ""); err != nil {
		t.Fatalf("continue failed: %v", err)
	}
	if _, err := env.auth.ContinueFlow(ctx, env.turn("123456"), ""); err != nil {
		t.Fatalf("continue failed: %v", err)
	}
	env.driver.userToken = &TokenResponse{Token: "tok-1"}
	if _, err := env.auth.GetToken(ctx, env.turn("hi"), "graph"); err != nil {
		t.Fatalf("get token failed: %v", err)
	}

	snap := env.auth.MetricsSnapshot()
	want := map[MetricID]uint64{
		MetricFlowBegin:           1,
		MetricFlowAlreadyActive:   1,
		MetricFlowContinueFailure: 1,
		MetricFlowContinueSuccess: 1,
		MetricTokenHit:            1,
	}
	for id, v := range want {
		if snap.Counters[id] != v {
			t.Fatalf("metric %d: expected %d, got %d", id, v, snap.Counters[id])
		}
	}
	var observed uint64
	for _, v := range snap.Histograms[MetricOpenFlowLatency] {
		observed += v
	}
	if observed != 5 {
		t.Fatalf("expected 5 flow transactions observed, got %d", observed)
	}
}
