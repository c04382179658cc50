// Package handler holds the gin handlers of the HTTP API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	appposting "github.com/hera/autojournal/internal/application/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/hera/autojournal/internal/infrastructure/logger"
	"github.com/hera/autojournal/internal/interfaces/http/dto"
	"github.com/hera/autojournal/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any, smartCode string) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data, middleware.Metadata(c, smartCode)))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any, smartCode string) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data, middleware.Metadata(c, smartCode)))
}

// Error sends an error response, deriving the status from the code
func (h *BaseHandler) Error(c *gin.Context, code, message string, smartCode string) {
	h.ErrorInfo(c, dto.ErrorInfo{Code: code, Message: message}, smartCode)
}

// ErrorInfo sends a fully populated error response
func (h *BaseHandler) ErrorInfo(c *gin.Context, info dto.ErrorInfo, smartCode string) {
	c.JSON(dto.GetHTTPStatus(info.Code), dto.NewErrorResponse(info, middleware.Metadata(c, smartCode)))
}

// BadRequest sends a 400 INVALID_INPUT response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeInvalidInput, message, "")
}

// HandleError converts pipeline and domain errors to HTTP responses.
// Errors without a machine code never leak their text to the caller.
func (h *BaseHandler) HandleError(c *gin.Context, err error, smartCode string) {
	if err == nil {
		return
	}

	var validationErr *appposting.ValidationError
	if errors.As(err, &validationErr) {
		h.ErrorInfo(c, dto.ErrorInfo{
			Code:             dto.ErrCodeValidationFailed,
			Message:          "Request validation failed",
			ValidationErrors: validationErr.Errors,
		}, smartCode)
		return
	}

	var postingErr *appposting.PostingError
	if errors.As(err, &postingErr) {
		h.handlePostingError(c, postingErr, smartCode)
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := domainErr.Code
		if _, known := dto.ErrorCodeHTTPStatus[code]; !known {
			h.ErrorInfo(c, dto.ErrorInfo{
				Code:          dto.ErrCodeProcessingFailed,
				Message:       domainErr.Message,
				PostingErrors: []dto.PostingErrorInfo{{Code: code, Message: domainErr.Message}},
			}, smartCode)
			return
		}
		h.Error(c, code, domainErr.Message, smartCode)
		return
	}

	logger.GetGinLogger(c).Error("Unhandled request error", zap.Error(err))
	h.Error(c, dto.ErrCodeInternal, "An unexpected error occurred", smartCode)
}

func (h *BaseHandler) handlePostingError(c *gin.Context, err *appposting.PostingError, smartCode string) {
	if err.Transient() {
		h.Error(c, err.Code, err.Message, smartCode)
		return
	}
	info := dto.ErrorInfo{
		Code:          dto.ErrCodeProcessingFailed,
		Message:       err.Message,
		PostingErrors: []dto.PostingErrorInfo{{Code: err.Code, Message: err.Message}},
	}
	if lines := err.AttemptedLines(); len(lines) > 0 {
		info.Details = map[string]any{"attempted_lines": appposting.ToGLLines(lines)}
	}
	h.ErrorInfo(c, info, smartCode)
}
