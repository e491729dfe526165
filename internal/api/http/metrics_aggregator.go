package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/gamehost/internal/sandbox"
)

// MetricsAggregator serves a JSON view of the host's metrics
type MetricsAggregator struct {
	metrics  *monitoring.Metrics
	breakers []BreakerSource
	pool     PoolStater
}

// NewMetricsAggregator creates a metrics aggregator
func NewMetricsAggregator(metrics *monitoring.Metrics, pool PoolStater, breakers ...BreakerSource) *MetricsAggregator {
	return &MetricsAggregator{
		metrics:  metrics,
		breakers: breakers,
		pool:     pool,
	}
}

// MetricsSnapshot represents a snapshot of all host metrics
type MetricsSnapshot struct {
	Timestamp time.Time             `json:"timestamp"`
	Summary   MetricsSummary        `json:"summary"`
	Services  []resilience.Snapshot `json:"services"`
	Sandbox   *sandbox.PoolStats    `json:"sandbox,omitempty"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests     int64   `json:"totalRequests"`
	AverageLatencyMs  float64 `json:"averageLatencyMs"`
	ErrorRate         float64 `json:"errorRate"`
	BundlesLoaded     int64   `json:"bundlesLoaded"`
	ActiveContexts    int64   `json:"activeContexts"`
	ActiveConnections int64   `json:"activeConnections"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
}

// GetAggregatedMetrics returns the JSON snapshot
func (ma *MetricsAggregator) GetAggregatedMetrics(c *gin.Context) {
	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Summary:   ma.calculateSummary(),
		Services:  make([]resilience.Snapshot, 0, len(ma.breakers)),
	}
	for _, b := range ma.breakers {
		snapshot.Services = append(snapshot.Services, b.Snapshot())
	}
	if ma.pool != nil {
		stats := ma.pool.Stats()
		snapshot.Sandbox = &stats
	}

	c.JSON(http.StatusOK, snapshot)
}

func (ma *MetricsAggregator) calculateSummary() MetricsSummary {
	if ma.metrics == nil {
		return MetricsSummary{}
	}
	s := ma.metrics.Snapshot()

	var errorRate float64
	if s.TotalRequests > 0 {
		errorRate = float64(s.TotalErrors) / float64(s.TotalRequests)
	}
	return MetricsSummary{
		TotalRequests:     s.TotalRequests,
		AverageLatencyMs:  s.AverageLatency() * 1000,
		ErrorRate:         errorRate,
		BundlesLoaded:     s.BundlesLoaded,
		ActiveContexts:    s.ActiveContexts,
		ActiveConnections: s.ActiveConnections,
		UptimeSeconds:     s.UptimeSeconds,
	}
}
