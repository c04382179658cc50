package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/infrastructure/logger"
	"github.com/hera/autojournal/internal/interfaces/http/dto"
	"github.com/hera/autojournal/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the unauthenticated liveness endpoint
type HealthHandler struct {
	db        Pinger
	rulebooks posting.RulebookProvider
	version   string
	timeout   time.Duration
}

// NewHealthHandler creates a HealthHandler
func NewHealthHandler(db Pinger, rulebooks posting.RulebookProvider, version string) *HealthHandler {
	return &HealthHandler{db: db, rulebooks: rulebooks, version: version, timeout: 2 * time.Second}
}

// Health reports database reachability and the active rulebook version
func (h *HealthHandler) Health(c *gin.Context) {
	result := dto.HealthResult{
		Status:  "healthy",
		Version: h.version,
		Checks:  map[string]string{"database": "ok"},
	}
	if h.rulebooks != nil {
		if book := h.rulebooks.Current(); book != nil {
			result.RulebookVersion = book.Version
		}
	}

	status := http.StatusOK
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		result.Status = "unhealthy"
		result.Checks["database"] = "error"
		status = http.StatusServiceUnavailable
	}

	resp := dto.NewSuccessResponse(result, middleware.Metadata(c, ""))
	resp.Success = status == http.StatusOK
	c.JSON(status, resp)
}
