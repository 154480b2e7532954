package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGinMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewHTTPMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/api/invoices/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/api/invoices/1", "/api/invoices/2", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requests.WithLabelValues("/api/invoices/:id", "GET", "204")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("unknown", "GET", "404")))
}

func TestNilHTTPMetricsAreSafe(t *testing.T) {
	var m *HTTPMetrics
	assert.NotPanics(t, func() { m.observe("/health", "GET", 200, 0) })
}
