package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolated(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordBridgeMessage("alert", "delivered")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.BridgeMessages.WithLabelValues("alert", "delivered")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BridgeMessages.WithLabelValues("alert", "delivered")))
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("GET", "/health", "200", 10*time.Millisecond, 0, 10)
	m.RecordHTTPRequest("GET", "/x", "404", 30*time.Millisecond, 0, 10)
	m.IncBundlesLoaded()
	m.IncContexts()
	m.IncContexts()
	m.DecContexts()

	s := m.Snapshot()
	assert.EqualValues(t, 2, s.TotalRequests)
	assert.EqualValues(t, 1, s.TotalErrors)
	assert.EqualValues(t, 1, s.BundlesLoaded)
	assert.EqualValues(t, 1, s.ActiveContexts)
	assert.InDelta(t, 0.02, s.AverageLatency(), 0.0001)
}

func TestTimerStopErr(t *testing.T) {
	m := NewMetrics()
	NewTimer(m, "storage", "save").StopErr(nil, "")
	NewTimer(m, "storage", "save").StopErr(errors.New("disk"), "io")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServiceCalls.WithLabelValues("storage", "save", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServiceErrors.WithLabelValues("storage", "save", "io")))

	// nil collector is tolerated
	NewTimer(nil, "storage", "save").StopErr(errors.New("x"), "io")
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `gamehost_http_requests_total{method="GET",path="/ping",status="200"} 1`)
	assert.Contains(t, w.Body.String(), "gamehost_uptime_seconds")
}
