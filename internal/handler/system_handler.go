package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizcheck-backend/internal/response"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// QueueDepth reports the number of pending jobs in a worker queue.
type QueueDepth func(ctx context.Context) (int64, error)

// SystemHandler reports service health.
type SystemHandler struct {
	checks    []HealthCheck
	queue     QueueDepth
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. queue may be nil.
func NewSystemHandler(checks []HealthCheck, queue QueueDepth, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		queue:     queue,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status       string            `json:"status"`
	Uptime       string            `json:"uptime"`
	Goroutines   int               `json:"goroutines"`
	Dependencies map[string]string `json:"dependencies"`
	QueueResults *int64            `json:"queue_results,omitempty"`
}

// Health godoc
// GET /health
// Pings every dependency. Responds 503 when any of them is down.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:       "ok",
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Goroutines:   runtime.NumGoroutine(),
		Dependencies: make(map[string]string, len(h.checks)),
	}
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", hc.Name).Msg("Health check failed")
			report.Dependencies[hc.Name] = "down"
			report.Status = "degraded"
			continue
		}
		report.Dependencies[hc.Name] = "up"
	}

	if h.queue != nil {
		if n, err := h.queue(ctx); err == nil {
			report.QueueResults = &n
		}
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}
