package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phuhao00/conflux-demo/pkg/metrics"
)

// HealthStatus represents the state of one dependency
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// HealthCheck is the result of probing one dependency
type HealthCheck struct {
	Status    HealthStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	LatencyMS int64        `json:"latency_ms"`
}

// HealthHandler probes the gateway's dependencies on demand
type HealthHandler struct {
	checks    map[string]CheckFunc
	collector *metrics.Collector
}

// NewHealthHandler creates a health handler. checks maps dependency names
// (mongodb, redis, chain_rpc) to their probes.
func NewHealthHandler(checks map[string]CheckFunc, collector *metrics.Collector) *HealthHandler {
	return &HealthHandler{checks: checks, collector: collector}
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    HealthStatus            `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Services  map[string]*HealthCheck `json:"services"`
	Uptime    string                  `json:"uptime"`
}

func (h *HealthHandler) runChecks(ctx context.Context) (map[string]*HealthCheck, HealthStatus) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	results := make(map[string]*HealthCheck, len(h.checks))
	overall := HealthStatusHealthy
	for name, check := range h.checks {
		start := time.Now()
		err := check(ctx)

		result := &HealthCheck{
			Status:    HealthStatusHealthy,
			LatencyMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			result.Status = HealthStatusUnhealthy
			result.Error = err.Error()
			overall = HealthStatusUnhealthy
		}
		results[name] = result
	}
	return results, overall
}

// GetHealth returns the overall health status
func (h *HealthHandler) GetHealth(c *gin.Context) {
	services, overall := h.runChecks(c.Request.Context())

	statusCode := http.StatusOK
	if overall == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Services:  services,
		Uptime:    h.collector.GetUptime().String(),
	})
}

// GetLiveness returns a simple liveness check
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}

// GetReadiness reports whether all dependencies answer their probes
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	_, overall := h.runChecks(c.Request.Context())
	if overall == HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
	})
}

// GetMetrics exposes the gateway's counters for operators
func (h *HealthHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":      h.collector.GetMetrics(),
		"uptime":       h.collector.GetUptime().String(),
		"success_rate": h.collector.GetSuccessRate(),
		"timestamp":    time.Now().UTC(),
	})
}
