package event

import (
	"context"

	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/hera/autojournal/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// PostingLogHandler writes one structured log line per ledger change
type PostingLogHandler struct{}

// NewPostingLogHandler creates the handler
func NewPostingLogHandler() *PostingLogHandler {
	return &PostingLogHandler{}
}

// EventTypes returns the posting events
func (h *PostingLogHandler) EventTypes() []string {
	return []string{posting.EventTypeJournalPosted, posting.EventTypeBatchFlushed}
}

// Handle logs the event with the request-scoped logger
func (h *PostingLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	log := logger.L(ctx)
	switch e := event.(type) {
	case *posting.JournalPostedEvent:
		log.Info("Journal posted",
			zap.String("journal_entry_id", e.JournalEntryID.String()),
			zap.String("organization_id", e.OrganizationID().String()),
			zap.String("transaction_type", string(e.TransactionType)),
			zap.String("method", string(e.Method)),
			zap.String("posting_period", e.PostingPeriod),
			zap.String("currency", e.Currency),
			zap.String("total_debit", e.TotalDebit.String()),
			zap.Int("lines", e.LineCount),
			zap.Int("sources", e.SourceCount),
		)
	case *posting.BatchFlushedEvent:
		log.Info("Batch group flushed",
			zap.String("batch_group_id", e.BatchGroupID.String()),
			zap.String("journal_entry_id", e.JournalEntryID.String()),
			zap.String("organization_id", e.OrganizationID().String()),
			zap.String("transaction_type", string(e.TransactionType)),
			zap.Time("batch_date", e.BatchDate),
			zap.String("running_total", e.RunningTotal.String()),
			zap.Int("members", e.MemberCount),
		)
	default:
		log.Debug("Ignoring event", zap.String("event_type", event.EventType()))
	}
	return nil
}

var _ shared.EventHandler = (*PostingLogHandler)(nil)
