package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appposting "github.com/hera/autojournal/internal/application/posting"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/infrastructure/logger"
	"github.com/hera/autojournal/internal/interfaces/http/dto"
	"github.com/hera/autojournal/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// PostingService is the application surface the posting handler needs
type PostingService interface {
	Ingest(ctx context.Context, req *appposting.PostTransactionRequest, auth appposting.AuthContext) (*appposting.IngestResult, error)
	GetJournal(ctx context.Context, orgID, id uuid.UUID) (*appposting.JournalDTO, error)
	ListAudit(ctx context.Context, orgID uuid.UUID, filter posting.AuditFilter) ([]appposting.AuditRecordDTO, error)
	FlushStaleBatches(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// PostingHandler serves the auto-posting endpoints
type PostingHandler struct {
	BaseHandler
	service         PostingService
	defaultStaleAge time.Duration
}

// NewPostingHandler creates a PostingHandler. defaultStaleAge is used by the
// stale batch sweep when the caller gives no older_than.
func NewPostingHandler(service PostingService, defaultStaleAge time.Duration) *PostingHandler {
	if defaultStaleAge <= 0 {
		defaultStaleAge = 24 * time.Hour
	}
	return &PostingHandler{service: service, defaultStaleAge: defaultStaleAge}
}

// RegisterRoutes mounts the posting endpoints on an authenticated group
func (h *PostingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/transactions/post", h.PostTransaction)
	rg.GET("/journals/:id", h.GetJournal)
	rg.GET("/audit", h.ListAudit)
	rg.POST("/batches/flush-stale", h.FlushStale)
}

// PostTransaction ingests one finance event. It responds 201 when the event
// caused a journal to be written, including a batch flush, and 200 otherwise.
func (h *PostingHandler) PostTransaction(c *gin.Context) {
	auth, ok := middleware.AuthContext(c)
	if !ok {
		h.Error(c, dto.ErrCodeMissingAuthorization, "Authentication required", "")
		return
	}

	var req appposting.PostTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, dto.ErrCodeRequestTooLarge, "Request body too large", "")
			return
		}
		logger.GetGinLogger(c).Debug("Rejected request body", zap.Error(err))
		h.Error(c, dto.ErrCodeInvalidJSON, "Request body is not valid JSON", "")
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), &req, auth)
	if err != nil {
		h.HandleError(c, err, req.SmartCode)
		return
	}

	if result.JournalEntryID != nil {
		h.Created(c, result, req.SmartCode)
		return
	}
	h.Success(c, result, req.SmartCode)
}

// GetJournal returns one journal of the caller's organization
func (h *PostingHandler) GetJournal(c *gin.Context) {
	auth, ok := middleware.AuthContext(c)
	if !ok {
		h.Error(c, dto.ErrCodeMissingAuthorization, "Authentication required", "")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid journal ID format")
		return
	}

	journal, err := h.service.GetJournal(c.Request.Context(), auth.OrganizationID, id)
	if err != nil {
		h.HandleError(c, err, "")
		return
	}
	h.Success(c, journal, journal.SmartCode)
}

// ListAudit returns the caller's audit trail, newest first
func (h *PostingHandler) ListAudit(c *gin.Context) {
	auth, ok := middleware.AuthContext(c)
	if !ok {
		h.Error(c, dto.ErrCodeMissingAuthorization, "Authentication required", "")
		return
	}

	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := posting.AuditFilter{Limit: query.Limit, SortBy: query.SortBy, SortOrder: query.SortOrder}
	if query.SourceTransactionID != "" {
		id, err := uuid.Parse(query.SourceTransactionID)
		if err != nil {
			h.BadRequest(c, "Invalid source_transaction_id")
			return
		}
		filter.SourceTransactionID = &id
	}
	if query.Result != "" {
		result := posting.ProcessingResult(query.Result)
		filter.Result = &result
	}

	records, err := h.service.ListAudit(c.Request.Context(), auth.OrganizationID, filter)
	if err != nil {
		h.HandleError(c, err, "")
		return
	}
	h.Success(c, records, "")
}

// FlushStale flushes OPEN batch groups older than older_than across all
// organizations. Journal content is unaffected; only the posting time moves.
func (h *PostingHandler) FlushStale(c *gin.Context) {
	var query dto.FlushStaleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	olderThan := h.defaultStaleAge
	if query.OlderThan != "" {
		d, err := time.ParseDuration(query.OlderThan)
		if err != nil || d < 0 {
			h.BadRequest(c, "older_than must be a non-negative duration such as 6h")
			return
		}
		olderThan = d
	}

	n, err := h.service.FlushStaleBatches(c.Request.Context(), olderThan, query.Limit)
	if err != nil {
		h.HandleError(c, err, "")
		return
	}
	h.Success(c, dto.FlushStaleResult{Flushed: n, OlderThan: olderThan.String()}, "")
}
