package posting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JournalRepository persists journal headers and lines. There is no update
// or delete: posted lines are immutable.
type JournalRepository interface {
	// Create inserts the header and every line, or nothing
	Create(ctx context.Context, journal *JournalEntry) error

	// FindByID finds a journal for an organization
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*JournalEntry, error)

	// FindBySourceTransaction returns journals that include the source transaction
	FindBySourceTransaction(ctx context.Context, orgID, transactionID uuid.UUID) ([]JournalEntry, error)
}

// BatchGroupRepository owns the batch accumulator rows. Methods that lock
// must run inside a TransactionRunner transaction.
type BatchGroupRepository interface {
	// LockOrCreateOpen returns the OPEN group for the candidate's key, inserting
	// the candidate when none exists. The row stays locked until the
	// surrounding transaction ends.
	LockOrCreateOpen(ctx context.Context, candidate *BatchGroup) (*BatchGroup, error)

	// LockByID loads a group by id with a row lock
	LockByID(ctx context.Context, orgID, id uuid.UUID) (*BatchGroup, error)

	// AddMember inserts the member row and stores the new running total
	AddMember(ctx context.Context, group *BatchGroup, member BatchMember) error

	// MarkFlushed stores the FLUSHED status and flags every member as batched
	MarkFlushed(ctx context.Context, group *BatchGroup) error

	// FindByID finds a group with its members
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*BatchGroup, error)

	// HasMember reports whether any group of the organization, open or
	// flushed, already holds the source transaction
	HasMember(ctx context.Context, orgID, transactionID uuid.UUID) (bool, error)

	// FindStaleOpen lists OPEN groups whose batch date is before the cutoff
	FindStaleOpen(ctx context.Context, before time.Time, limit int) ([]BatchGroup, error)
}

// AuditFilter narrows audit queries
type AuditFilter struct {
	SourceTransactionID *uuid.UUID
	Result              *ProcessingResult
	Limit               int
	// SortBy and SortOrder are validated by the repository; unknown values
	// fall back to newest first
	SortBy    string
	SortOrder string
}

// AuditRepository appends audit records
type AuditRepository interface {
	// Append inserts one record
	Append(ctx context.Context, record *AuditRecord) error

	// Find lists an organization's records, newest first
	Find(ctx context.Context, orgID uuid.UUID, filter AuditFilter) ([]AuditRecord, error)
}

// TxRepositories are repositories bound to one database transaction
type TxRepositories struct {
	Journals JournalRepository
	Batches  BatchGroupRepository
}

// TransactionRunner runs fn in a single database transaction. Returning an
// error from fn rolls everything back.
type TransactionRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

// JournalProposer is the external reasoning service consulted for events
// the rulebook does not cover
type JournalProposer interface {
	ProposeJournal(ctx context.Context, event *FinanceEvent, chart []AccountRef) (*JournalProposal, error)
}
