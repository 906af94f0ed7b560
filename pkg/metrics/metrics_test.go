package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

func scrape(t *testing.T, m *Manager) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}

func TestManager_RetrievalMetricsExposed(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.QueryCompleted(retrieval.StatusNormal, retrieval.LabelIdentifier, retrieval.ProfileLexicalFirst, 12*time.Millisecond, 5)
	m.QueryCompleted(retrieval.StatusDegraded, retrieval.LabelAbstract, retrieval.ProfileVectorFirst, 40*time.Millisecond, 2)
	m.SourceFailed(retrieval.EngineGraph)
	m.SourceSkipped(retrieval.EngineGraph)
	m.MissDetected(retrieval.LabelFactual)
	m.TopScore(0.048)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.RetuneCompleted(map[string]float64{retrieval.EngineVector: 0.82})
	m.CacheError("get")
	m.RecordPublish("success")
	m.RecordRetry()
	m.SetDegradedMode(true)

	body := scrape(t, m)
	for _, want := range []string{
		`fusemem_queries_total{label="identifier",status="normal"} 1`,
		`fusemem_queries_total{label="abstract",status="degraded"} 1`,
		`fusemem_source_failures_total{engine="graph"} 1`,
		`fusemem_source_skips_total{engine="graph"} 1`,
		`fusemem_retrieval_misses_total{label="factual"} 1`,
		`fusemem_cache_lookups_total{result="hit"} 1`,
		`fusemem_cache_lookups_total{result="miss"} 1`,
		`fusemem_retunes_total 1`,
		`fusemem_tuned_weight{engine="vector"} 0.82`,
		`fusemem_cache_errors_total{op="get"} 1`,
		`fusemem_bus_publishes_total{status="success"} 1`,
		`fusemem_bus_retries_total 1`,
		`fusemem_bus_degraded 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestManager_HTTPMetrics(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordHTTPRequest("POST", "/api/v1/search", "200", 8*time.Millisecond)
	m.IncActiveConnections()

	body := scrape(t, m)
	if !strings.Contains(body, `fusemem_http_requests_total{method="POST",path="/api/v1/search",status="200"} 1`) {
		t.Error("http request counter missing")
	}
	if !strings.Contains(body, `fusemem_http_active_connections 1`) {
		t.Error("active connection gauge missing")
	}
}

func TestManager_DisabledIsInert(t *testing.T) {
	m := NoOpManager()
	if m.Enabled() {
		t.Fatal("NoOpManager reports enabled")
	}

	// None of these may panic on a disabled manager.
	m.QueryCompleted(retrieval.StatusNormal, retrieval.LabelFactual, "", time.Millisecond, 0)
	m.SourceFailed(retrieval.EngineVector)
	m.SourceSkipped(retrieval.EngineGraph)
	m.MissDetected(retrieval.LabelAbstract)
	m.TopScore(0.5)
	m.CacheLookup(true)
	m.RetuneCompleted(nil)
	m.CacheError("set")
	m.RecordPublish("failed")
	m.RecordRetry()
	m.SetDegradedMode(false)
	m.RecordHTTPRequest("GET", "/", "200", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("disabled handler status = %d, want 404", rec.Code)
	}
}
