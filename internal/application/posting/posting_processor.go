package posting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"go.uber.org/zap"
)

// PostingResult describes a journal written to the ledger
type PostingResult struct {
	JournalEntryID uuid.UUID
	PostingPeriod  string
	Method         posting.Method
	PostedAt       time.Time
	Journal        *posting.JournalEntry
}

// PostingProcessor is the only writer of journal headers and lines
type PostingProcessor struct {
	runner    posting.TransactionRunner
	publisher shared.EventPublisher
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewPostingProcessor creates a processor. timeout bounds each write; zero
// means five seconds.
func NewPostingProcessor(
	runner posting.TransactionRunner,
	publisher shared.EventPublisher,
	timeout time.Duration,
	logger *zap.Logger,
) *PostingProcessor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostingProcessor{
		runner:    runner,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Post validates and persists a journal in its own transaction. Either the
// header and every line are stored or nothing is.
func (p *PostingProcessor) Post(ctx context.Context, journal *posting.JournalEntry) (*PostingResult, error) {
	if err := p.prepare(journal); err != nil {
		return nil, err
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.runner.RunInTx(writeCtx, func(txCtx context.Context, repos posting.TxRepositories) error {
		return repos.Journals.Create(txCtx, journal)
	})
	if err != nil {
		return nil, p.persistenceError(writeCtx, journal, err)
	}

	p.publish(ctx, journal)
	return p.result(journal), nil
}

// PostInTx validates and persists a journal through repositories already
// bound to the caller's transaction. Domain events stay on the journal for
// the caller to publish after commit.
func (p *PostingProcessor) PostInTx(ctx context.Context, journals posting.JournalRepository, journal *posting.JournalEntry) (*PostingResult, error) {
	if err := p.prepare(journal); err != nil {
		return nil, err
	}
	if err := journals.Create(ctx, journal); err != nil {
		return nil, p.persistenceError(ctx, journal, err)
	}
	return p.result(journal), nil
}

// prepare is the final balance gate. It runs for every journal whatever
// produced it.
func (p *PostingProcessor) prepare(journal *posting.JournalEntry) error {
	if err := journal.MarkPosted(p.now().UTC()); err != nil {
		code := posting.ErrInvalidJournal.Code
		message := "Journal entry is malformed"
		if errors.Is(err, posting.ErrUnbalancedJournal) {
			code = posting.ErrUnbalancedJournal.Code
			message = "Journal debits and credits do not balance"
		}
		p.logger.Error("journal rejected before persistence",
			zap.String("journal_entry_id", journal.ID.String()),
			zap.String("organization_id", journal.OrganizationID.String()),
			zap.String("method", string(journal.Method)),
			zap.Any("lines", ToGLLines(journal.Lines)),
			zap.Error(err),
		)
		return &PostingError{Code: code, Message: message, Journal: journal, Err: err}
	}
	return nil
}

func (p *PostingProcessor) persistenceError(ctx context.Context, journal *posting.JournalEntry, err error) error {
	code := CodePostingFailed
	message := "Failed to persist journal entry"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = CodePostingTimeout
		message = "Timed out persisting journal entry"
	}
	p.logger.Error("failed to persist journal entry",
		zap.String("journal_entry_id", journal.ID.String()),
		zap.String("organization_id", journal.OrganizationID.String()),
		zap.String("code", code),
		zap.Error(err),
	)
	return &PostingError{Code: code, Message: message, Journal: journal, Err: err}
}

func (p *PostingProcessor) publish(ctx context.Context, journal *posting.JournalEntry) {
	events := journal.GetDomainEvents()
	journal.ClearDomainEvents()
	if p.publisher == nil || len(events) == 0 {
		return
	}
	if err := p.publisher.Publish(ctx, events...); err != nil {
		p.logger.Warn("failed to publish journal events",
			zap.String("journal_entry_id", journal.ID.String()),
			zap.Error(err),
		)
	}
}

func (p *PostingProcessor) result(journal *posting.JournalEntry) *PostingResult {
	var postedAt time.Time
	if journal.PostedAt != nil {
		postedAt = *journal.PostedAt
	}
	return &PostingResult{
		JournalEntryID: journal.ID,
		PostingPeriod:  journal.PostingPeriod,
		Method:         journal.Method,
		PostedAt:       postedAt,
		Journal:        journal,
	}
}
