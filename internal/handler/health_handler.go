package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/peerit/auth-service/internal/service"
)

const dependencyPingTimeout = 2 * time.Second

// HealthHandler reports liveness and dependency readiness.
type HealthHandler struct {
	db       *sqlx.DB
	sessions service.SessionStore
}

// NewHealthHandler creates a new handler. db may be nil in tests.
func NewHealthHandler(db *sqlx.DB, sessions service.SessionStore) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions}
}

// Health godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready godoc
// @Summary Readiness probe
// @Description Checks database and session storage connectivity
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dependencyPingTimeout)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			checks["database"] = "unreachable"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if h.sessions != nil {
		if err := h.sessions.Ping(ctx); err != nil {
			checks["sessions"] = "unreachable"
			healthy = false
		} else {
			checks["sessions"] = "ok"
		}
	}

	status := http.StatusOK
	checks["status"] = "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		checks["status"] = "degraded"
	}
	c.JSON(status, checks)
}
