package http

import (
	"net/http"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/monitoring"
)

// HandlerMetrics wraps handlers with metrics tracking
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper. A nil collector records
// nothing.
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// TrackStorageOperation tracks storage operations
func (hm *HandlerMetrics) TrackStorageOperation(operation string) func(error) {
	return hm.track("storage", operation)
}

// TrackAnalysisOperation tracks analysis and injection
func (hm *HandlerMetrics) TrackAnalysisOperation(operation string) func(error) {
	return hm.track("analysis", operation)
}

// TrackGenerationOperation tracks generation requests
func (hm *HandlerMetrics) TrackGenerationOperation(operation string) func(error) {
	return hm.track("generation_api", operation)
}

func (hm *HandlerMetrics) track(service, operation string) func(error) {
	timer := monitoring.NewTimer(hm.metrics, service, operation)
	return func(err error) {
		timer.StopErr(err, errorType(err))
	}
}

func errorType(err error) string {
	if err == nil {
		return ""
	}
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusGatewayTimeout:
		return "timeout"
	default:
		return "internal"
	}
}
