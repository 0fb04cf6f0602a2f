package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/jwtauth"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot jwtauth.MetricsSnapshot
	dropped  map[jwtauth.AuditKind]uint64
}

func (f *fakeSource) MetricsSnapshot() jwtauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := jwtauth.MetricsSnapshot{
		Counters:   make(map[jwtauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[jwtauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDroppedByKind() map[jwtauth.AuditKind]uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[jwtauth.AuditKind]uint64, len(f.dropped))
	for k, v := range f.dropped {
		out[k] = v
	}
	return out
}

func collect(t *testing.T, src *fakeSource) map[string]metricdata.Aggregation {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exp, err := NewOTelExporterFromSource(provider.Meter("jwtauth-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

// pointByAttr returns the value of the data point whose key attribute is val.
func pointByAttr(t *testing.T, points []metricdata.DataPoint[int64], key, val string) int64 {
	t.Helper()
	for _, p := range points {
		if v, ok := p.Attributes.Value(attribute.Key(key)); ok && v.AsString() == val {
			return p.Value
		}
	}
	t.Fatalf("no point with %s=%s", key, val)
	return 0
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("jwtauth-test")

	src := &fakeSource{
		snapshot: jwtauth.MetricsSnapshot{
			Counters: map[jwtauth.MetricID]uint64{
				jwtauth.MetricAuthenticateSuccess: 3,
			},
			Histograms: map[jwtauth.MetricID][]uint64{
				jwtauth.MetricAuthenticateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: map[jwtauth.AuditKind]uint64{jwtauth.AuditTokenIssued: 1},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("jwtauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("jwtauth-test")

	src := &fakeSource{
		snapshot: jwtauth.MetricsSnapshot{
			Counters: map[jwtauth.MetricID]uint64{
				jwtauth.MetricAuthenticateSuccess: 1,
			},
			Histograms: map[jwtauth.MetricID][]uint64{
				jwtauth.MetricAuthenticateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[jwtauth.MetricAuthenticateSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestExporterReportsOutcomes(t *testing.T) {
	data := collect(t, &fakeSource{
		snapshot: jwtauth.MetricsSnapshot{
			Counters: map[jwtauth.MetricID]uint64{
				jwtauth.MetricRefreshRedeemed: 5,
				jwtauth.MetricFloodBlocked:    2,
				jwtauth.MetricIssueNoKey:      1,
			},
			Histograms: map[jwtauth.MetricID][]uint64{},
		},
	})

	refresh, ok := data["jwtauth.refresh"].(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected refresh data %T", data["jwtauth.refresh"])
	}
	if len(refresh.DataPoints) != 6 {
		t.Fatalf("expected one point per refresh outcome, got %d", len(refresh.DataPoints))
	}
	if got := pointByAttr(t, refresh.DataPoints, "outcome", "redeemed"); got != 5 {
		t.Fatalf("expected 5 redeemed, got %d", got)
	}
	if got := pointByAttr(t, refresh.DataPoints, "outcome", "flood_blocked"); got != 2 {
		t.Fatalf("expected 2 flood blocked, got %d", got)
	}

	issue := data["jwtauth.issue"].(metricdata.Sum[int64])
	if got := pointByAttr(t, issue.DataPoints, "outcome", "no_key"); got != 1 {
		t.Fatalf("expected 1 no key, got %d", got)
	}
}

func TestExporterReportsLatencyBuckets(t *testing.T) {
	data := collect(t, &fakeSource{
		snapshot: jwtauth.MetricsSnapshot{
			Counters:   map[jwtauth.MetricID]uint64{},
			Histograms: map[jwtauth.MetricID][]uint64{
				jwtauth.MetricAuthenticateLatency: {1, 2, 0, 0, 0, 0, 0, 3},
			},
		},
	})

	buckets := data["jwtauth.authenticate.latency.bucket"].(metricdata.Gauge[int64])
	if got := pointByAttr(t, buckets.DataPoints, "le", "0.01"); got != 3 {
		t.Fatalf("expected cumulative 3 at le=0.01, got %d", got)
	}
	if got := pointByAttr(t, buckets.DataPoints, "le", "+Inf"); got != 6 {
		t.Fatalf("expected 6 at +Inf, got %d", got)
	}
	count := data["jwtauth.authenticate.latency.count"].(metricdata.Gauge[int64])
	if len(count.DataPoints) != 1 || count.DataPoints[0].Value != 6 {
		t.Fatalf("unexpected count %+v", count.DataPoints)
	}
}

func TestExporterReportsAuditDropsByKind(t *testing.T) {
	data := collect(t, &fakeSource{
		snapshot: jwtauth.MetricsSnapshot{},
		dropped:  map[jwtauth.AuditKind]uint64{
			jwtauth.AuditFloodBlocked:  4,
			jwtauth.AuditRefreshFailed: 1,
		},
	})

	dropped := data["jwtauth.audit.dropped"].(metricdata.Sum[int64])
	if len(dropped.DataPoints) != 2 {
		t.Fatalf("expected two kinds, got %d", len(dropped.DataPoints))
	}
	if got := pointByAttr(t, dropped.DataPoints, "kind", "flood_blocked"); got != 4 {
		t.Fatalf("expected 4 flood_blocked drops, got %d", got)
	}
}
