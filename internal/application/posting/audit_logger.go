package posting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"go.uber.org/zap"
)

// AuditEntry is what the pipeline knows about one processing attempt
type AuditEntry struct {
	OrganizationID      uuid.UUID
	SourceTransactionID *uuid.UUID
	TransactionType     string
	Result              posting.ProcessingResult
	Method              posting.Method
	Confidence          float64
	Reason              string
	JournalEntryID      *uuid.UUID
	BatchGroupID        *uuid.UUID
	ErrorCode           string
	Details             any
}

// AuditLogger appends one audit record per processing attempt. It never
// returns an error: failures go to the application log instead.
type AuditLogger struct {
	repo    posting.AuditRepository
	metrics Metrics
	timeout time.Duration
	logger  *zap.Logger
}

// NewAuditLogger creates an audit logger
func NewAuditLogger(repo posting.AuditRepository, metrics Metrics, timeout time.Duration, logger *zap.Logger) *AuditLogger {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &AuditLogger{repo: repo, metrics: metrics, timeout: timeout, logger: logger}
}

// Record stores the outcome. The write is detached from the request's
// cancellation so an aborted request still leaves its trace.
func (l *AuditLogger) Record(ctx context.Context, sourceSmartCode posting.SmartCode, entry AuditEntry) {
	l.metrics.RecordOutcome(ctx, entry.Result, entry.Method)

	rec := posting.NewAuditRecord(entry.OrganizationID, sourceSmartCode, entry.Result)
	rec.SourceTransactionID = entry.SourceTransactionID
	rec.Method = entry.Method
	rec.Confidence = entry.Confidence
	rec.Reason = entry.Reason
	rec.JournalEntryID = entry.JournalEntryID
	rec.BatchGroupID = entry.BatchGroupID
	rec.ErrorCode = entry.ErrorCode
	details := map[string]any{}
	if entry.TransactionType != "" {
		details["transaction_type"] = entry.TransactionType
	}
	if entry.Details != nil {
		details["diagnostics"] = entry.Details
	}
	if len(details) > 0 {
		rec.WithDetails(details)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("audit logger panicked",
				zap.Any("panic", r),
				zap.String("processing_result", string(entry.Result)),
			)
		}
	}()

	if err := l.repo.Append(writeCtx, rec); err != nil {
		l.logger.Error("failed to write audit record",
			zap.String("organization_id", entry.OrganizationID.String()),
			zap.String("source_smart_code", sourceSmartCode.String()),
			zap.String("processing_result", string(entry.Result)),
			zap.Error(err),
		)
		return
	}

	level := zap.InfoLevel
	if entry.Result.IsFailure() {
		level = zap.WarnLevel
	}
	l.logger.Check(level, "processing attempt recorded").Write(
		zap.String("audit_id", rec.ID.String()),
		zap.String("organization_id", entry.OrganizationID.String()),
		zap.String("processing_result", string(entry.Result)),
		zap.String("method", string(entry.Method)),
		zap.Float64("confidence", entry.Confidence),
	)
}
