package posting

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/shared"
)

// ProcessingResult is the outcome recorded for one processing attempt
type ProcessingResult string

const (
	ResultPosted                ProcessingResult = "posted"
	ResultBatched               ProcessingResult = "batched"
	ResultBatchFlushed          ProcessingResult = "batch_flushed"
	ResultNotRelevant           ProcessingResult = "not_relevant"
	ResultRejectedLowConfidence ProcessingResult = "rejected_low_confidence"
	ResultEscalationFailed      ProcessingResult = "escalation_failed"
	ResultNotBuildable          ProcessingResult = "not_buildable"
	ResultValidationFailed      ProcessingResult = "validation_failed"
	ResultAccessDenied          ProcessingResult = "access_denied"
	ResultUnbalanced            ProcessingResult = "unbalanced"
	ResultPostingFailed         ProcessingResult = "posting_failed"
	ResultDuplicate             ProcessingResult = "duplicate"
)

// IsFailure reports whether the result is an error outcome
func (r ProcessingResult) IsFailure() bool {
	switch r {
	case ResultValidationFailed, ResultAccessDenied, ResultUnbalanced, ResultPostingFailed, ResultDuplicate:
		return true
	}
	return false
}

// AuditRecord is an append-only trace of one processing attempt. It is
// stored with the reserved AUDIT_LOG transaction type and never changed.
type AuditRecord struct {
	shared.BaseEntity
	OrganizationID      uuid.UUID
	SourceTransactionID *uuid.UUID
	SourceSmartCode     SmartCode
	TransactionType     TransactionType
	ProcessingResult    ProcessingResult
	Method              Method
	Confidence          float64
	Reason              string
	JournalEntryID      *uuid.UUID
	BatchGroupID        *uuid.UUID
	ErrorCode           string
	Details             json.RawMessage
	RecordedAt          time.Time
}

// NewAuditRecord creates an audit record stamped with the current time
func NewAuditRecord(orgID uuid.UUID, sourceSmartCode SmartCode, result ProcessingResult) *AuditRecord {
	base := shared.NewBaseEntity()
	return &AuditRecord{
		BaseEntity:       base,
		OrganizationID:   orgID,
		SourceSmartCode:  sourceSmartCode,
		TransactionType:  TypeAuditLog,
		ProcessingResult: result,
		RecordedAt:       base.CreatedAt,
	}
}

// WithDetails attaches a JSON diagnostic payload. Marshal failures are
// recorded as a message instead of dropping the record.
func (a *AuditRecord) WithDetails(v any) *AuditRecord {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"details_error": err.Error()})
	}
	a.Details = data
	return a
}
