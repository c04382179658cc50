// Package dto holds the JSON envelopes of the HTTP API.
package dto

import (
	"time"

	appposting "github.com/hera/autojournal/internal/application/posting"
)

// Response is the envelope of every API response. Metadata is always set.
type Response struct {
	Success  bool       `json:"success"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

// ErrorInfo describes a failed request. Details is only populated with
// diagnostics meant for the caller, such as the attempted ledger lines of
// an unbalanced journal.
type ErrorInfo struct {
	Code             string                  `json:"code"`
	Message          string                  `json:"message"`
	ValidationErrors []appposting.FieldError `json:"validation_errors,omitempty"`
	PostingErrors    []PostingErrorInfo      `json:"posting_errors,omitempty"`
	Details          any                     `json:"details,omitempty"`
}

// PostingErrorInfo is one reason a journal could not be written
type PostingErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata accompanies every response
type Metadata struct {
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	SmartCode        string    `json:"smart_code,omitempty"`
	OrganizationID   string    `json:"organization_id,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// NewMetadata stamps processing time relative to start
func NewMetadata(start time.Time, requestID, organizationID, smartCode string) Metadata {
	now := time.Now().UTC()
	var elapsed int64
	if !start.IsZero() {
		elapsed = now.Sub(start).Milliseconds()
	}
	return Metadata{
		ProcessingTimeMS: elapsed,
		SmartCode:        smartCode,
		OrganizationID:   organizationID,
		RequestID:        requestID,
		ProcessedAt:      now,
	}
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any, meta Metadata) Response {
	return Response{Success: true, Data: data, Metadata: meta}
}

// NewErrorResponse creates an error response
func NewErrorResponse(info ErrorInfo, meta Metadata) Response {
	return Response{Success: false, Error: &info, Metadata: meta}
}

// AuditQuery are the filters of the audit listing
type AuditQuery struct {
	SourceTransactionID string `form:"source_transaction_id" binding:"omitempty,uuid"`
	Result              string `form:"result" binding:"omitempty,max=64"`
	Limit               int    `form:"limit" binding:"omitempty,min=1,max=500"`
	SortBy              string `form:"sort_by" binding:"omitempty,oneof=recorded_at processing_result confidence"`
	SortOrder           string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// FlushStaleQuery are the parameters of a manual stale batch sweep
type FlushStaleQuery struct {
	OlderThan string `form:"older_than"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// FlushStaleResult reports how many groups a manual sweep flushed
type FlushStaleResult struct {
	Flushed   int    `json:"flushed"`
	OlderThan string `json:"older_than"`
}

// HealthResult is the body of the health endpoint
type HealthResult struct {
	Status          string            `json:"status"`
	Version         string            `json:"version"`
	RulebookVersion string            `json:"rulebook_version"`
	Checks          map[string]string `json:"checks"`
}
