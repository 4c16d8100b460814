package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goToken "github.com/MrEthical07/goToken"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot goToken.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goToken.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func counters(c map[goToken.MetricID]uint64) goToken.MetricsSnapshot {
	return goToken.MetricsSnapshot{Counters: c, Histograms: map[goToken.MetricID][]uint64{}}
}

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := New(fakeSource{snapshot: counters(map[goToken.MetricID]uint64{})})
	assert.Empty(t, exp.Render())
}

func TestRenderNilExporter(t *testing.T) {
	var exp *Exporter
	assert.Empty(t, exp.Render())
}

func TestRenderGroupsCountersIntoLabeledFamilies(t *testing.T) {
	exp := New(fakeSource{
		snapshot: counters(map[goToken.MetricID]uint64{
			goToken.MetricIssueSuccess:    7,
			goToken.MetricAutoRevoke:      2,
			goToken.MetricValidateRevoked: 5,
			goToken.MetricStoreError:      1,
		}),
		dropped: 2,
	})

	out := exp.Render()
	assert.Contains(t, out, "# TYPE gotoken_issue_total counter\n")
	assert.Contains(t, out, `gotoken_issue_total{result="success"} 7`+"\n")
	assert.Contains(t, out, `gotoken_issue_total{result="failure"} 0`+"\n")
	assert.Contains(t, out, `gotoken_revocations_total{trigger="expired"} 2`+"\n")
	assert.Contains(t, out, `gotoken_validations_total{outcome="revoked"} 5`+"\n")
	assert.Contains(t, out, `gotoken_validations_total{outcome="expired"} 0`+"\n")
	assert.Contains(t, out, "gotoken_store_errors_total 1\n")
	assert.Contains(t, out, "gotoken_audit_dropped_total 2\n")
	assert.Equal(t, 1, strings.Count(out, "# TYPE gotoken_validations_total counter"))
	assert.NotContains(t, out, "gotoken_validate_latency_seconds", "no histogram when latency is disabled")
}

func TestRenderLatencyHistogram(t *testing.T) {
	snap := counters(map[goToken.MetricID]uint64{})
	snap.Histograms[goToken.MetricValidateLatency] = []uint64{1, 2, 3, 4, 5, 6, 7, 8}
	out := New(fakeSource{snapshot: snap}).Render()

	assert.Contains(t, out, "# TYPE gotoken_validate_latency_seconds histogram\n")
	assert.Contains(t, out, `gotoken_validate_latency_seconds_bucket{le="0.005"} 1`+"\n")
	assert.Contains(t, out, `gotoken_validate_latency_seconds_bucket{le="0.01"} 3`+"\n")
	assert.Contains(t, out, `gotoken_validate_latency_seconds_bucket{le="+Inf"} 36`+"\n")
	assert.Contains(t, out, "gotoken_validate_latency_seconds_count 36\n")
	assert.Contains(t, out, "gotoken_validate_latency_seconds_sum 0\n")
}

func TestRenderIsDeterministic(t *testing.T) {
	exp := New(fakeSource{snapshot: counters(map[goToken.MetricID]uint64{
		goToken.MetricRefreshSuccess:  3,
		goToken.MetricValidateRevoked: 1,
	})})

	first := exp.Render()
	for i := 0; i < 5; i++ {
		require.Equal(t, first, exp.Render())
	}
	assert.Less(t, strings.Index(first, "gotoken_refresh_total"), strings.Index(first, "gotoken_validations_total"))
	assert.Less(t, strings.Index(first, `outcome="accepted"`), strings.Index(first, `outcome="violation"`))
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	exp := New(fakeSource{snapshot: counters(map[goToken.MetricID]uint64{goToken.MetricRevokeGroup: 1})})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), `gotoken_revocations_total{trigger="group"} 1`)
}

func TestEscapeHelp(t *testing.T) {
	assert.Equal(t, `a\\b\nc`, escapeHelp("a\\b\nc"))
}

func BenchmarkRender(b *testing.B) {
	snap := counters(map[goToken.MetricID]uint64{
		goToken.MetricIssueSuccess:        1000,
		goToken.MetricRefreshSuccess:      800,
		goToken.MetricRefreshFailure:      10,
		goToken.MetricValidateSuccess:     90000,
		goToken.MetricValidateExpired:     40,
		goToken.MetricAutoRevoke:          40,
		goToken.MetricAuthenticateFailure: 3,
	})
	snap.Histograms[goToken.MetricValidateLatency] = []uint64{10, 20, 30, 40, 50, 60, 70, 80}
	exp := New(fakeSource{snapshot: snap})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
