package otel

import (
	"context"
	"sync"
	"testing"

	goToken "github.com/MrEthical07/goToken"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goToken.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goToken.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goToken.MetricsSnapshot{
		Counters:   make(map[goToken.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goToken.MetricID][]uint64, len(f.snapshot.Histograms)),
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

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newMeter() (metric.Meter, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return provider.Meter("gotoken-test"), reader
}

// point returns the value of the named instrument's data point whose attribute
// key equals val. An empty key matches a point without attributes.
func point(rm metricdata.ResourceMetrics, name, key, val string) (int64, bool) {
	match := func(set attribute.Set) bool {
		if key == "" {
			return set.Len() == 0
		}
		v, ok := set.Value(attribute.Key(key))
		return ok && v.AsString() == val
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			}
			for _, dp := range points {
				if match(dp.Attributes) {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	meter, reader := newMeter()
	src := &fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{
				goToken.MetricIssueSuccess:    3,
				goToken.MetricAutoRevoke:      1,
				goToken.MetricValidateExpired: 4,
				goToken.MetricStoreError:      2,
			},
			Histograms: map[goToken.MetricID][]uint64{
				goToken.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := New(meter, src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	cases := []struct {
		name, key, val string
		want           int64
	}{
		{"gotoken_issue_total", "result", "success", 3},
		{"gotoken_issue_total", "result", "failure", 0},
		{"gotoken_revocations_total", "trigger", "expired", 1},
		{"gotoken_validations_total", "outcome", "expired", 4},
		{"gotoken_validations_total", "outcome", "accepted", 0},
		{"gotoken_store_errors_total", "", "", 2},
		{"gotoken_validate_latency_seconds_bucket", "le", "0.005", 1},
		{"gotoken_validate_latency_seconds_bucket", "le", "+Inf", 8},
		{"gotoken_validate_latency_seconds_count", "", "", 8},
		{"gotoken_audit_dropped_total", "", "", 1},
	}
	for _, tc := range cases {
		v, ok := point(rm, tc.name, tc.key, tc.val)
		require.True(t, ok, "%s{%s=%q}", tc.name, tc.key, tc.val)
		assert.Equal(t, tc.want, v, "%s{%s=%q}", tc.name, tc.key, tc.val)
	}
}

func TestExporterSkipsLatencyWhenDisabled(t *testing.T) {
	meter, reader := newMeter()
	exp, err := New(meter, &fakeSource{snapshot: goToken.MetricsSnapshot{
		Counters:   map[goToken.MetricID]uint64{goToken.MetricValidateSuccess: 1},
		Histograms: map[goToken.MetricID][]uint64{},
	}})
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	_, ok := point(rm, "gotoken_validate_latency_seconds_count", "", "")
	assert.False(t, ok)
	v, ok := point(rm, "gotoken_validations_total", "outcome", "accepted")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
}

func TestExporterRejectsNilArguments(t *testing.T) {
	meter, _ := newMeter()

	_, err := New(meter, nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = New(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestCloseNilExporter(t *testing.T) {
	var exp *Exporter
	assert.NoError(t, exp.Close())
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	meter, reader := newMeter()
	src := &fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{
				goToken.MetricValidateSuccess: 1,
			},
			Histograms: map[goToken.MetricID][]uint64{
				goToken.MetricValidateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := New(meter, src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goToken.MetricValidateSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
