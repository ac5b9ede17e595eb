package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storeit/dashboard/internal/database"
	"github.com/storeit/dashboard/internal/middleware"
)

const (
	// APIVersion is the current version of the API
	APIVersion = "0.2.0"
	// HealthCheckTimeout bounds each dependency ping in the readiness check.
	HealthCheckTimeout = 2 * time.Second
)

// Pinger is a dependency the readiness check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolReporter exposes database pool statistics for the info endpoint.
type PoolReporter interface {
	Stats() database.PoolStats
}

// HealthHandler handles health check and readiness endpoints.
type HealthHandler struct {
	deps      map[string]Pinger
	startTime time.Time
	env       string
	source    string
	pool      PoolReporter
}

// NewHealthHandler creates a new HealthHandler. deps maps a dependency name
// ("source", "cache") to its probe; source names the configured table source.
func NewHealthHandler(deps map[string]Pinger, source, env string) *HealthHandler {
	if deps == nil {
		deps = map[string]Pinger{}
	}
	return &HealthHandler{
		deps:      deps,
		startTime: time.Now(),
		env:       env,
		source:    source,
	}
}

// SetPool makes Info report pool statistics.
func (h *HealthHandler) SetPool(pool PoolReporter) {
	h.pool = pool
}

// HealthResponse represents the basic health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Dependencies map[string]string `json:"dependencies"`
	Status       string            `json:"status"`
}

// InfoResponse represents the API information response.
type InfoResponse struct {
	Version     string              `json:"version"`
	Environment string              `json:"environment"`
	Source      string              `json:"source"`
	Uptime      string              `json:"uptime"`
	Pool        *database.PoolStats `json:"pool,omitempty"`
}

// Health handles GET /health. It never checks dependencies.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
	})
}

// Ready handles GET /health/ready.
// Returns 200 when every dependency answers, 503 otherwise.
func (h *HealthHandler) Ready(c *gin.Context) {
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	response := ReadyResponse{
		Status:       "ready",
		Dependencies: make(map[string]string, len(names)),
	}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), HealthCheckTimeout)
		err := h.deps[name].Ping(ctx)
		cancel()

		if err != nil {
			if log := middleware.GetLogger(c); log != nil {
				log.Error("Dependency health check failed", err, map[string]interface{}{
					"dependency": name,
					"timeout":    HealthCheckTimeout.String(),
				})
			}
			response.Status = "not_ready"
			response.Dependencies[name] = "disconnected"
			continue
		}
		response.Dependencies[name] = "connected"
	}

	status := http.StatusOK
	if response.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

// Info handles GET /api/v1/info.
func (h *HealthHandler) Info(c *gin.Context) {
	response := InfoResponse{
		Version:     APIVersion,
		Environment: h.env,
		Source:      h.source,
		Uptime:      formatUptime(time.Since(h.startTime)),
	}
	if h.pool != nil {
		stats := h.pool.Stats()
		response.Pool = &stats
	}
	c.JSON(http.StatusOK, response)
}

// formatUptime formats a duration into a human-readable string.
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
