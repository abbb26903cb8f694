package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omnihub/backend/internal/infrastructure/persistence"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	BaseHandler
	db      *persistence.Database
	started time.Time
	version string
}

// NewHealthHandler creates a HealthHandler. db may be nil in tests.
func NewHealthHandler(db *persistence.Database, version string) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now(), version: version}
}

// Health reports process liveness.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	h.Success(c, gin.H{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// Ready reports readiness, failing when the database is unreachable.
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  "database unreachable",
			})
			return
		}
	}
	h.Success(c, gin.H{"status": "ready"})
}
