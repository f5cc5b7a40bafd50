package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/orgdesk/orgdesk/internal/telemetry"
)

// collectCounter reads the current value from a CounterVec for the given
// label values. Returns -1 when no matching series exists yet.
func collectCounter(cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	ch := make(chan prometheus.Metric, 32)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		match := true
		for k, want := range labels {
			found := false
			for _, lp := range dm.GetLabel() {
				if lp.GetName() == k && lp.GetValue() == want {
					found = true
					break
				}
			}
			if !found {
				match = false
				break
			}
		}
		if match {
			return dm.GetCounter().GetValue()
		}
	}
	return -1
}

func newMetricsRouter() *gin.Engine {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/v1/organizations/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

// ---------------------------------------------------------------------------
// Metrics tests
// ---------------------------------------------------------------------------

func TestMetrics_RecordsRouteTemplate(t *testing.T) {
	r := newMetricsRouter()

	labels := prometheus.Labels{
		"method": "GET",
		"path":   "/api/v1/organizations/:id",
		"status": "200",
	}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	after := collectCounter(telemetry.HTTPRequestsTotal, labels)
	if before == -1 {
		before = 0
	}
	if after != before+1 {
		t.Errorf("counter = %v, want %v; the path label should be the route template", after, before+1)
	}
}

func TestMetrics_NoRouteUsesPlaceholder(t *testing.T) {
	r := newMetricsRouter()

	labels := prometheus.Labels{
		"method": "GET",
		"path":   "<no-route>",
		"status": "404",
	}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	after := collectCounter(telemetry.HTTPRequestsTotal, labels)
	if before == -1 {
		before = 0
	}
	if after != before+1 {
		t.Errorf("counter = %v, want %v for unmatched routes", after, before+1)
	}
}
