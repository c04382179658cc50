package posting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/hera/autojournal/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// BatchStatus represents the lifecycle of a batch group
type BatchStatus string

const (
	BatchStatusOpen    BatchStatus = "OPEN"
	BatchStatusFlushed BatchStatus = "FLUSHED"
)

// ErrCurrencyMismatch is returned when an event cannot join a group in another currency
var ErrCurrencyMismatch = shared.NewDomainError("CURRENCY_MISMATCH", "Event currency differs from the batch group currency")

// BatchKey identifies the accumulator a small event joins
type BatchKey struct {
	OrganizationID  uuid.UUID
	TransactionType TransactionType
	Date            time.Time
}

// NewBatchKey builds a key for the date's calendar day as submitted
func NewBatchKey(orgID uuid.UUID, t TransactionType, date time.Time) BatchKey {
	return BatchKey{
		OrganizationID:  orgID,
		TransactionType: t,
		Date:            CalendarDay(date),
	}
}

func (k BatchKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.OrganizationID, k.TransactionType, k.Date.Format("2006-01-02"))
}

// BatchMember is one deferred event inside a group
type BatchMember struct {
	TransactionID  uuid.UUID
	Sequence       int
	Amount         decimal.Decimal
	BaseAmount     decimal.Decimal
	SmartCode      SmartCode
	Batched        bool
	JournalEntryID *uuid.UUID
	AddedAt        time.Time
}

// BatchGroup accumulates small events of one key until their running total
// reaches the batching threshold
type BatchGroup struct {
	shared.OrganizationAggregateRoot
	TransactionType TransactionType
	BatchDate       time.Time
	Currency        valueobject.Currency
	SourceSmartCode SmartCode
	RunningTotal    decimal.Decimal
	// BaseCurrency and BaseTotal carry the members' base-currency
	// equivalents; every member shares the base currency
	BaseCurrency    valueobject.Currency
	BaseTotal       decimal.Decimal
	Status          BatchStatus
	Members         []BatchMember
	JournalEntryID  *uuid.UUID
	FlushedAt       *time.Time
}

// NewBatchGroup creates an empty open group for the key
func NewBatchGroup(key BatchKey, currency valueobject.Currency, smartCode SmartCode) (*BatchGroup, error) {
	if key.OrganizationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}
	if key.TransactionType == "" {
		return nil, shared.NewDomainError("INVALID_TRANSACTION_TYPE", "Transaction type cannot be empty")
	}
	if !currency.IsValid() {
		return nil, shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Unsupported currency %q", currency))
	}
	return &BatchGroup{
		OrganizationAggregateRoot: shared.NewOrganizationAggregateRoot(key.OrganizationID),
		TransactionType:           key.TransactionType,
		BatchDate:                 key.Date,
		Currency:                  currency,
		SourceSmartCode:           smartCode,
		RunningTotal:              decimal.Zero,
		BaseTotal:                 decimal.Zero,
		Status:                    BatchStatusOpen,
	}, nil
}

// Key returns the grouping key
func (g *BatchGroup) Key() BatchKey {
	return NewBatchKey(g.OrganizationID, g.TransactionType, g.BatchDate)
}

// Append adds an event to the group in arrival order and grows the running total
func (g *BatchGroup) Append(event *FinanceEvent, at time.Time) (BatchMember, error) {
	if g.Status != BatchStatusOpen {
		return BatchMember{}, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot append to batch group in %s status", g.Status))
	}
	if event.TransactionCurrency != g.Currency {
		return BatchMember{}, ErrCurrencyMismatch
	}
	base := event.BaseCurrency
	if !base.IsValid() {
		base = event.TransactionCurrency
	}
	if g.BaseCurrency == "" && len(g.Members) == 0 {
		g.BaseCurrency = base
	}
	if base != g.BaseCurrency {
		return BatchMember{}, ErrCurrencyMismatch
	}
	if event.TotalAmount.IsNegative() {
		return BatchMember{}, shared.NewDomainError("INVALID_AMOUNT", "Batched amount cannot be negative")
	}
	member := BatchMember{
		TransactionID: event.TransactionID,
		Sequence:      len(g.Members) + 1,
		Amount:        event.TotalAmount,
		BaseAmount:    base.Round(event.TotalAmount.Mul(event.effectiveRate())),
		SmartCode:     event.SmartCode,
		AddedAt:       at,
	}
	g.Members = append(g.Members, member)
	g.RunningTotal = g.RunningTotal.Add(event.TotalAmount)
	g.BaseTotal = g.BaseTotal.Add(member.BaseAmount)
	g.IncrementVersion()
	return member, nil
}

// ExchangeRate is the group's effective rate from transaction to base
// currency, rounded to eight places. An empty group reports 1.
func (g *BatchGroup) ExchangeRate() decimal.Decimal {
	if !g.RunningTotal.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return g.BaseTotal.DivRound(g.RunningTotal, 8)
}

// MemberTransactionIDs returns member ids in arrival order
func (g *BatchGroup) MemberTransactionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.TransactionID
	}
	return ids
}

// ReachedThreshold reports whether the running total is at or above the threshold
func (g *BatchGroup) ReachedThreshold(threshold decimal.Decimal) bool {
	return g.RunningTotal.GreaterThanOrEqual(threshold)
}

// MarkFlushed consumes the group: every member is flagged batched with a
// back-reference to the summary journal
func (g *BatchGroup) MarkFlushed(journalID uuid.UUID, at time.Time) error {
	if g.Status != BatchStatusOpen {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot flush batch group in %s status", g.Status))
	}
	if len(g.Members) == 0 {
		return shared.NewDomainError("EMPTY_BATCH", "Cannot flush a batch group without members")
	}
	for i := range g.Members {
		g.Members[i].Batched = true
		g.Members[i].JournalEntryID = &journalID
	}
	g.Status = BatchStatusFlushed
	g.JournalEntryID = &journalID
	g.FlushedAt = &at
	g.IncrementVersion()
	g.AddDomainEvent(NewBatchFlushedEvent(g))
	return nil
}
