package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"go.uber.org/zap"
)

// IngestService runs the whole auto-posting pipeline for one event:
// validation, tenant check, classification, journal building, posting or
// batching, and audit. It returns only after every step completed.
type IngestService struct {
	validator   *EventValidator
	classifier  *Classifier
	builder     *JournalBuilder
	escalator   *Escalator
	aggregator  *BatchAggregator
	audit       *AuditLogger
	journals    posting.JournalRepository
	auditRepo   posting.AuditRepository
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	metrics     Metrics
	logger      *zap.Logger
}

// IngestServiceDeps groups the collaborators of IngestService
type IngestServiceDeps struct {
	Validator   *EventValidator
	Classifier  *Classifier
	Builder     *JournalBuilder
	Escalator   *Escalator
	Aggregator  *BatchAggregator
	Audit       *AuditLogger
	Journals    posting.JournalRepository
	AuditRepo   posting.AuditRepository
	Idempotency shared.IdempotencyStore
	IdemConfig  shared.IdempotencyConfig
	Metrics     Metrics
	Logger      *zap.Logger
}

// NewIngestService creates the pipeline
func NewIngestService(deps IngestServiceDeps) *IngestService {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NoopMetrics()
	}
	validator := deps.Validator
	if validator == nil {
		validator = NewEventValidator()
	}
	return &IngestService{
		validator:   validator,
		classifier:  deps.Classifier,
		builder:     deps.Builder,
		escalator:   deps.Escalator,
		aggregator:  deps.Aggregator,
		audit:       deps.Audit,
		journals:    deps.Journals,
		auditRepo:   deps.AuditRepo,
		idempotency: deps.Idempotency,
		idemConfig:  deps.IdemConfig,
		metrics:     metrics,
		logger:      deps.Logger,
	}
}

// Ingest processes one event on behalf of the authenticated caller
func (s *IngestService) Ingest(ctx context.Context, req *PostTransactionRequest, auth AuthContext) (result *IngestResult, err error) {
	start := time.Now()
	outcome := posting.ResultPostingFailed
	defer func() {
		s.metrics.RecordIngestDuration(ctx, time.Since(start), outcome)
	}()

	rawCode := posting.SmartCode(req.SmartCode)
	// A foreign organization is rejected before any field is validated
	if requested, parseErr := uuid.Parse(req.OrganizationID); parseErr == nil && requested != auth.OrganizationID {
		outcome = posting.ResultAccessDenied
		s.deny(ctx, rawCode, req.TransactionType, requested, auth)
		return nil, ErrAccessDenied
	}

	event, fieldErrs := s.validator.Validate(req)
	if len(fieldErrs) > 0 {
		outcome = posting.ResultValidationFailed
		s.audit.Record(ctx, rawCode, AuditEntry{
			OrganizationID:  auth.OrganizationID,
			TransactionType: req.TransactionType,
			Result:          outcome,
			ErrorCode:       CodeValidationFailed,
			Details:         fieldErrs,
		})
		return nil, &ValidationError{Errors: fieldErrs}
	}
	if event.OrganizationID != auth.OrganizationID {
		outcome = posting.ResultAccessDenied
		s.deny(ctx, event.SmartCode, string(event.TransactionType), event.OrganizationID, auth)
		return nil, ErrAccessDenied
	}

	txID := event.TransactionID
	base := AuditEntry{
		OrganizationID:      event.OrganizationID,
		SourceTransactionID: &txID,
		TransactionType:     string(event.TransactionType),
	}

	release, err := s.claim(ctx, event, req.TransactionID != "")
	if err != nil {
		if !errors.Is(err, ErrDuplicateRequest) {
			return nil, err
		}
		outcome = posting.ResultDuplicate
		entry := base
		entry.Result = outcome
		entry.ErrorCode = CodeDuplicateRequest
		s.audit.Record(ctx, event.SmartCode, entry)
		return nil, err
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	result, outcome, err = s.process(ctx, event, base)
	return result, err
}

// deny records a request for another organization's books
func (s *IngestService) deny(ctx context.Context, smartCode posting.SmartCode, txType string, requested uuid.UUID, auth AuthContext) {
	s.logger.Warn("organization mismatch, rejecting event",
		zap.String("caller_organization_id", auth.OrganizationID.String()),
		zap.String("event_organization_id", requested.String()),
		zap.String("user_id", auth.UserID.String()),
	)
	s.audit.Record(ctx, smartCode, AuditEntry{
		OrganizationID:  auth.OrganizationID,
		TransactionType: txType,
		Result:          posting.ResultAccessDenied,
		ErrorCode:       CodeAccessDenied,
		Details:         map[string]string{"requested_organization_id": requested.String()},
	})
}

// process runs classification onwards for a validated, authorized event
func (s *IngestService) process(ctx context.Context, event *posting.FinanceEvent, base AuditEntry) (*IngestResult, posting.ProcessingResult, error) {
	classification := s.classifier.Classify(ctx, event)
	s.metrics.RecordClassification(ctx, classification)

	result := &IngestResult{
		TransactionID:  event.TransactionID,
		GLLines:        []GLLineDTO{},
		Classification: ToClassificationDTO(classification),
	}

	if !classification.IsRelevant {
		return s.skip(ctx, event, base, result, classification, nil)
	}

	journal, classification, err := s.buildJournal(ctx, event, classification)
	result.Classification = ToClassificationDTO(classification)
	if err != nil || journal == nil {
		return s.skip(ctx, event, base, result, classification, err)
	}

	offer, err := s.aggregator.Offer(ctx, event, journal)
	if errors.Is(err, ErrDuplicateRequest) {
		entry := base
		entry.Result = posting.ResultDuplicate
		entry.ErrorCode = CodeDuplicateRequest
		s.audit.Record(ctx, event.SmartCode, entry)
		return nil, entry.Result, err
	}
	if err != nil {
		return s.fail(ctx, event, base, classification, err)
	}

	entry := base
	entry.Method = classification.Method
	entry.Confidence = classification.Confidence
	entry.Reason = classification.Reason

	var posted *PostingResult
	switch {
	case offer.PostedImmediately:
		result.PostedImmediately = true
		result.ProcessingResult = string(posting.ResultPosted)
		entry.Result = posting.ResultPosted
		entry.Details = map[string]string{"immediate_reason": offer.ImmediateReason}
		posted = offer.Posting
	case offer.Flushed != nil:
		groupID := offer.Group.ID
		result.Batched = true
		result.BatchGroupID = &groupID
		result.ProcessingResult = string(posting.ResultBatchFlushed)
		entry.Result = posting.ResultBatchFlushed
		entry.BatchGroupID = &groupID
		entry.Details = map[string]any{
			"member_count":  len(offer.Group.Members),
			"running_total": offer.Group.RunningTotal.String(),
		}
		posted = offer.Flushed
	default:
		groupID := offer.Group.ID
		result.Batched = true
		result.BatchGroupID = &groupID
		result.ProcessingResult = string(posting.ResultBatched)
		entry.Result = posting.ResultBatched
		entry.BatchGroupID = &groupID
		entry.Details = map[string]any{"running_total": offer.Group.RunningTotal.String()}
	}

	if posted != nil {
		journalID := posted.JournalEntryID
		result.JournalEntryID = &journalID
		result.PostingPeriod = posted.PostingPeriod
		result.GLLines = ToGLLines(posted.Journal.Lines)
		entry.JournalEntryID = &journalID
	}
	s.audit.Record(ctx, event.SmartCode, entry)
	return result, entry.Result, nil
}

// buildJournal uses the rulebook first. A type the rulebook cannot build
// falls through to the escalation path, and a proposal already obtained
// during classification is reused.
func (s *IngestService) buildJournal(ctx context.Context, event *posting.FinanceEvent, classification posting.ClassificationResult) (*posting.JournalEntry, posting.ClassificationResult, error) {
	if classification.Method == posting.MethodRule {
		journal, err := s.builder.Build(event)
		if err == nil {
			return journal, classification, nil
		}
		if !errors.Is(err, posting.ErrNotBuildable) {
			return nil, classification, err
		}
		classification = s.classifier.Escalate(ctx, event)
		if !classification.IsRelevant {
			return nil, classification, nil
		}
	}
	if classification.Proposal == nil || s.escalator == nil {
		return nil, classification, posting.ErrNotBuildable
	}
	journal, err := s.escalator.JournalFromProposal(event, classification.Proposal)
	return journal, classification, err
}

// skip records an event that produces no journal. The business record
// still succeeds, so no error is returned.
func (s *IngestService) skip(ctx context.Context, event *posting.FinanceEvent, base AuditEntry, result *IngestResult, classification posting.ClassificationResult, cause error) (*IngestResult, posting.ProcessingResult, error) {
	entry := base
	entry.Method = classification.Method
	entry.Confidence = classification.Confidence
	entry.Reason = classification.Reason

	var balanceErr *posting.BalanceError
	switch {
	case errors.As(cause, &balanceErr):
		entry.Result = posting.ResultUnbalanced
		entry.ErrorCode = posting.ErrUnbalancedJournal.Code
		entry.Details = map[string]any{"totals": balanceErr.Totals, "attempted_lines": ToGLLines(balanceErr.Lines)}
	case cause != nil:
		entry.Result = posting.ResultNotBuildable
		entry.Details = map[string]string{"error": cause.Error()}
	case classification.Reason == posting.ReasonRejectedLowConfidence:
		entry.Result = posting.ResultRejectedLowConfidence
	case classification.Reason == posting.ReasonEscalationFailed:
		entry.Result = posting.ResultEscalationFailed
	default:
		entry.Result = posting.ResultNotRelevant
	}

	if entry.Result != posting.ResultNotRelevant {
		s.logger.Warn("event not posted, needs review",
			zap.String("transaction_id", event.TransactionID.String()),
			zap.String("organization_id", event.OrganizationID.String()),
			zap.String("processing_result", string(entry.Result)),
			zap.String("reason", classification.Reason),
			zap.Float64("confidence", classification.Confidence),
			zap.Error(cause),
		)
	}
	result.ProcessingResult = string(entry.Result)
	s.audit.Record(ctx, event.SmartCode, entry)
	return result, entry.Result, nil
}

// fail records a posting failure and surfaces it to the caller
func (s *IngestService) fail(ctx context.Context, event *posting.FinanceEvent, base AuditEntry, classification posting.ClassificationResult, err error) (*IngestResult, posting.ProcessingResult, error) {
	entry := base
	entry.Method = classification.Method
	entry.Confidence = classification.Confidence
	entry.Reason = classification.Reason
	entry.Result = posting.ResultPostingFailed
	entry.ErrorCode = CodePostingFailed

	var postingErr *PostingError
	if errors.As(err, &postingErr) {
		entry.ErrorCode = postingErr.Code
		if postingErr.Code == posting.ErrUnbalancedJournal.Code {
			entry.Result = posting.ResultUnbalanced
		}
		entry.Details = map[string]any{"attempted_lines": ToGLLines(postingErr.AttemptedLines())}
	} else {
		entry.Details = map[string]string{"error": err.Error()}
	}
	s.audit.Record(ctx, event.SmartCode, entry)
	return nil, entry.Result, err
}

// claim reserves the idempotency key and, when the caller supplied its own
// transaction id, refuses ids that already have a journal or wait in a
// batch group. The returned function frees the key after a failed attempt.
func (s *IngestService) claim(ctx context.Context, event *posting.FinanceEvent, callerSuppliedID bool) (func(), error) {
	release := func() {}

	if callerSuppliedID && s.journals != nil {
		existing, err := s.journals.FindBySourceTransaction(ctx, event.OrganizationID, event.TransactionID)
		if err != nil {
			return release, fmt.Errorf("failed to read prior postings: %w", err)
		}
		if len(existing) > 0 {
			return release, ErrDuplicateRequest
		}
		if s.aggregator != nil {
			batched, err := s.aggregator.HasBatched(ctx, event.OrganizationID, event.TransactionID)
			if err != nil {
				return release, fmt.Errorf("failed to read batch membership: %w", err)
			}
			if batched {
				return release, ErrDuplicateRequest
			}
		}
	}

	if event.IdempotencyKey == "" || s.idempotency == nil || !s.idemConfig.Enabled {
		return release, nil
	}
	key := shared.IdempotencyKey(event.OrganizationID.String(), event.IdempotencyKey)
	claimed, err := s.idempotency.Claim(ctx, key, s.idemConfig.TTL)
	if err != nil {
		// Store outages must not block posting; the journal lookup above
		// still catches retries that reuse a transaction id
		s.logger.Warn("idempotency store unavailable, continuing without key",
			zap.String("idempotency_key", event.IdempotencyKey),
			zap.Error(err),
		)
		return release, nil
	}
	if !claimed {
		return release, ErrDuplicateRequest
	}
	return func() {
		if err := s.idempotency.Release(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// GetJournal returns one of the organization's journals
func (s *IngestService) GetJournal(ctx context.Context, orgID, id uuid.UUID) (*JournalDTO, error) {
	journal, err := s.journals.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	dto := ToJournalDTO(journal)
	return &dto, nil
}

// ListAudit returns the organization's audit records
func (s *IngestService) ListAudit(ctx context.Context, orgID uuid.UUID, filter posting.AuditFilter) ([]AuditRecordDTO, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	records, err := s.auditRepo.Find(ctx, orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	out := make([]AuditRecordDTO, len(records))
	for i := range records {
		out[i] = ToAuditRecordDTO(&records[i])
	}
	return out, nil
}

// FlushStaleBatches flushes at most limit OPEN groups that are older than
// olderThan. A non-positive limit uses the aggregator default.
func (s *IngestService) FlushStaleBatches(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	n, err := s.aggregator.FlushStale(ctx, cutoff, limit)
	if n > 0 {
		s.logger.Info("flushed stale batch groups",
			zap.Int("flushed", n),
			zap.Time("cutoff", cutoff),
		)
	}
	return n, err
}
