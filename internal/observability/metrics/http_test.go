package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGinMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := newHTTPMetrics(reg, Config{ServiceName: "cabletrack"})
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	router := gin.New()
	router.Use(GinMiddleware(m))
	router.GET("/api/tickets/:id", func(c *gin.Context) { c.Status(http.StatusGone) })

	for i := 0; i < 2; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tickets/7", nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("/api/tickets/:id", http.MethodGet, "410"))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newHTTPMetrics(reg, Config{ServiceName: "cabletrack"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := newHTTPMetrics(reg, Config{ServiceName: "cabletrack"}); err != nil {
		t.Fatalf("second register: %v", err)
	}
}
