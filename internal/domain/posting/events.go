package posting

import (
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypeJournalPosted = "JournalPosted"
	EventTypeBatchFlushed  = "BatchFlushed"
)

// JournalPostedEvent is raised when a journal is persisted to the ledger
type JournalPostedEvent struct {
	shared.BaseDomainEvent
	JournalEntryID  uuid.UUID       `json:"journal_entry_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Method          Method          `json:"method"`
	PostingPeriod   string          `json:"posting_period"`
	Currency        string          `json:"currency"`
	TotalDebit      decimal.Decimal `json:"total_debit"`
	LineCount       int             `json:"line_count"`
	SourceCount     int             `json:"source_count"`
}

// NewJournalPostedEvent creates a new JournalPostedEvent
func NewJournalPostedEvent(j *JournalEntry) *JournalPostedEvent {
	return &JournalPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJournalPosted, "JournalEntry", j.ID, j.OrganizationID),
		JournalEntryID:  j.ID,
		TransactionType: j.TransactionType,
		Method:          j.Method,
		PostingPeriod:   j.PostingPeriod,
		Currency:        j.Currency.String(),
		TotalDebit:      j.TotalDebit(),
		LineCount:       len(j.Lines),
		SourceCount:     len(j.SourceTransactionIDs),
	}
}

// BatchFlushedEvent is raised when a batch group is consumed into a journal
type BatchFlushedEvent struct {
	shared.BaseDomainEvent
	BatchGroupID    uuid.UUID       `json:"batch_group_id"`
	JournalEntryID  uuid.UUID       `json:"journal_entry_id"`
	TransactionType TransactionType `json:"transaction_type"`
	BatchDate       time.Time       `json:"batch_date"`
	RunningTotal    decimal.Decimal `json:"running_total"`
	MemberCount     int             `json:"member_count"`
}

// NewBatchFlushedEvent creates a new BatchFlushedEvent
func NewBatchFlushedEvent(g *BatchGroup) *BatchFlushedEvent {
	var journalID uuid.UUID
	if g.JournalEntryID != nil {
		journalID = *g.JournalEntryID
	}
	return &BatchFlushedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchFlushed, "BatchGroup", g.ID, g.OrganizationID),
		BatchGroupID:    g.ID,
		JournalEntryID:  journalID,
		TransactionType: g.TransactionType,
		BatchDate:       g.BatchDate,
		RunningTotal:    g.RunningTotal,
		MemberCount:     len(g.Members),
	}
}
