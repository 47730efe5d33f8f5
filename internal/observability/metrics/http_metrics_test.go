package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetrics_GinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry, Config{})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/v1/things/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/things/1", nil))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/things/:id", "204")); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unknown", "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}

func TestHTTPMetrics_NilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.Observe("GET", "/", http.StatusOK, time.Millisecond)
}
