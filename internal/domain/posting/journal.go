package posting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/hera/autojournal/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PostingPeriodLayout is the YYYY-MM accounting month format
const PostingPeriodLayout = "2006-01"

// JournalStatus represents the lifecycle of a journal entry
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "DRAFT"
	JournalStatusPosted JournalStatus = "POSTED"
)

// Journal errors
var (
	ErrUnbalancedJournal = shared.NewDomainError("UNBALANCED_JOURNAL", "Journal debits and credits do not balance")
	ErrInvalidJournal    = shared.NewDomainError("INVALID_JOURNAL", "Journal entry is malformed")
	ErrNotBuildable      = shared.NewDomainError("NOT_BUILDABLE", "No account mapping for transaction type")
)

// PostingPeriodOf derives the YYYY-MM accounting month of a date. The month
// is read in the date's own location, so an event stamped
// 2024-12-01T02:00:00+04:00 belongs to 2024-12.
func PostingPeriodOf(t time.Time) string {
	return t.Format(PostingPeriodLayout)
}

// CalendarDay returns the date's calendar day, as read in its own location,
// at midnight UTC
func CalendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// JournalLine is one debit or credit line. Exactly one of DebitAmount and
// CreditAmount is positive; the other is zero.
type JournalLine struct {
	LineNumber   int
	AccountCode  string
	AccountName  string
	DebitAmount  decimal.Decimal
	CreditAmount decimal.Decimal
	Currency     valueobject.Currency
	Description  string
	SmartCode    SmartCode
}

// Side returns which side of the ledger the line posts to
func (l JournalLine) Side() Side {
	if l.DebitAmount.IsPositive() {
		return SideDebit
	}
	return SideCredit
}

// Amount returns the populated side's amount
func (l JournalLine) Amount() decimal.Decimal {
	if l.DebitAmount.IsPositive() {
		return l.DebitAmount
	}
	return l.CreditAmount
}

// Validate checks the debit XOR credit rule and the account reference
func (l JournalLine) Validate() error {
	if strings.TrimSpace(l.AccountCode) == "" {
		return shared.NewDomainError("INVALID_ACCOUNT", fmt.Sprintf("Line %d has no account code", l.LineNumber))
	}
	if l.DebitAmount.IsNegative() || l.CreditAmount.IsNegative() {
		return shared.NewDomainError("INVALID_AMOUNT", fmt.Sprintf("Line %d has a negative amount", l.LineNumber))
	}
	if l.DebitAmount.IsPositive() == l.CreditAmount.IsPositive() {
		return shared.NewDomainError("INVALID_LINE_SIDE", fmt.Sprintf("Line %d must have exactly one of debit or credit", l.LineNumber))
	}
	if !l.Currency.IsValid() {
		return shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Line %d has unsupported currency %q", l.LineNumber, l.Currency))
	}
	return nil
}

// BalanceTotals holds debit and credit sums for one currency
type BalanceTotals struct {
	Currency valueobject.Currency `json:"currency"`
	Debits   decimal.Decimal      `json:"debits"`
	Credits  decimal.Decimal      `json:"credits"`
}

// Difference returns debits minus credits
func (b BalanceTotals) Difference() decimal.Decimal {
	return b.Debits.Sub(b.Credits)
}

// Balanced reports whether the sides agree within one minor unit
func (b BalanceTotals) Balanced() bool {
	return b.Difference().Abs().LessThanOrEqual(b.Currency.Epsilon())
}

// BalanceError describes an unbalanced journal. It keeps the attempted
// lines so the rejection can be diagnosed from the audit trail.
type BalanceError struct {
	Totals []BalanceTotals
	Lines  []JournalLine
}

func (e *BalanceError) Error() string {
	parts := make([]string, 0, len(e.Totals))
	for _, t := range e.Totals {
		if t.Balanced() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s debits %s credits %s",
			t.Currency, t.Debits.StringFixed(t.Currency.MinorUnits()), t.Credits.StringFixed(t.Currency.MinorUnits())))
	}
	return "journal does not balance: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrUnbalancedJournal) match
func (e *BalanceError) Is(target error) bool {
	return target == ErrUnbalancedJournal
}

// JournalEntry is a set of balanced lines posted to the ledger for one
// event or for one batch of events
type JournalEntry struct {
	shared.OrganizationAggregateRoot
	SourceTransactionIDs []uuid.UUID
	TransactionType      TransactionType
	SmartCode            SmartCode
	SourceSmartCode      SmartCode
	TransactionDate      time.Time
	PostingPeriod        string
	Currency             valueobject.Currency
	BaseCurrency         valueobject.Currency
	ExchangeRate         decimal.Decimal
	BaseAmount           decimal.Decimal
	Method               Method
	RuleVersion          string
	Confidence           float64
	Model                string
	BatchGroupID         *uuid.UUID
	Status               JournalStatus
	PostedAt             *time.Time
	Description          string
	Lines                []JournalLine
}

// NewJournalEntry creates an empty draft journal for an organization
func NewJournalEntry(orgID uuid.UUID, txDate time.Time, currency valueobject.Currency, method Method) (*JournalEntry, error) {
	if orgID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}
	if txDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_TRANSACTION_DATE", "Transaction date is required")
	}
	if !currency.IsValid() {
		return nil, shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Unsupported currency %q", currency))
	}
	return &JournalEntry{
		OrganizationAggregateRoot: shared.NewOrganizationAggregateRoot(orgID),
		TransactionDate:           txDate,
		PostingPeriod:             PostingPeriodOf(txDate),
		Currency:                  currency,
		BaseCurrency:              currency,
		ExchangeRate:              decimal.NewFromInt(1),
		Method:                    method,
		Confidence:                1.0,
		Status:                    JournalStatusDraft,
	}, nil
}

// AddDebit appends a debit line in the journal currency
func (j *JournalEntry) AddDebit(account AccountRef, amount decimal.Decimal, description string) {
	j.addLine(account, SideDebit, amount, description)
}

// AddCredit appends a credit line in the journal currency
func (j *JournalEntry) AddCredit(account AccountRef, amount decimal.Decimal, description string) {
	j.addLine(account, SideCredit, amount, description)
}

// AddLine appends a line for the given side. Zero amounts are skipped so
// optional components never produce empty lines.
func (j *JournalEntry) AddLine(account AccountRef, side Side, amount decimal.Decimal, description string) {
	j.addLine(account, side, amount, description)
}

func (j *JournalEntry) addLine(account AccountRef, side Side, amount decimal.Decimal, description string) {
	if amount.IsZero() {
		return
	}
	line := JournalLine{
		LineNumber:  len(j.Lines) + 1,
		AccountCode: account.Code,
		AccountName: account.Name,
		Currency:    j.Currency,
		Description: description,
		SmartCode:   LineSmartCode(j.lineDomain(), side),
	}
	if side == SideDebit {
		line.DebitAmount = amount
	} else {
		line.CreditAmount = amount
	}
	j.Lines = append(j.Lines, line)
}

func (j *JournalEntry) lineDomain() string {
	if j.SourceSmartCode != "" {
		return j.SourceSmartCode.Domain()
	}
	return j.SmartCode.Domain()
}

// TotalsByCurrency sums debits and credits per line currency, sorted by code
func (j *JournalEntry) TotalsByCurrency() []BalanceTotals {
	byCurrency := make(map[valueobject.Currency]*BalanceTotals)
	for _, l := range j.Lines {
		t, ok := byCurrency[l.Currency]
		if !ok {
			t = &BalanceTotals{Currency: l.Currency, Debits: decimal.Zero, Credits: decimal.Zero}
			byCurrency[l.Currency] = t
		}
		t.Debits = t.Debits.Add(l.DebitAmount)
		t.Credits = t.Credits.Add(l.CreditAmount)
	}
	out := make([]BalanceTotals, 0, len(byCurrency))
	for _, t := range byCurrency {
		out = append(out, *t)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Currency < out[b].Currency })
	return out
}

// TotalDebit returns the debit total in the journal currency
func (j *JournalEntry) TotalDebit() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range j.Lines {
		if l.Currency == j.Currency {
			sum = sum.Add(l.DebitAmount)
		}
	}
	return sum
}

// CheckBalance verifies debits equal credits per currency within one minor
// unit. It never adjusts lines.
func (j *JournalEntry) CheckBalance() error {
	totals := j.TotalsByCurrency()
	for _, t := range totals {
		if !t.Balanced() {
			lines := make([]JournalLine, len(j.Lines))
			copy(lines, j.Lines)
			return &BalanceError{Totals: totals, Lines: lines}
		}
	}
	return nil
}

// Validate checks structure and balance before persistence
func (j *JournalEntry) Validate() error {
	if len(j.Lines) < 2 {
		return shared.NewDomainError(ErrInvalidJournal.Code, "Journal needs at least one debit and one credit line")
	}
	var hasDebit, hasCredit bool
	for _, l := range j.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
		if l.Side() == SideDebit {
			hasDebit = true
		} else {
			hasCredit = true
		}
	}
	if !hasDebit || !hasCredit {
		return shared.NewDomainError(ErrInvalidJournal.Code, "Journal needs at least one debit and one credit line")
	}
	return j.CheckBalance()
}

// MarkPosted validates the journal, fixes its posting period from the
// transaction date and moves it to POSTED
func (j *JournalEntry) MarkPosted(at time.Time) error {
	if j.Status == JournalStatusPosted {
		return shared.NewDomainError("INVALID_STATE", "Journal is already posted")
	}
	if err := j.Validate(); err != nil {
		return err
	}
	j.PostingPeriod = PostingPeriodOf(j.TransactionDate)
	j.Status = JournalStatusPosted
	j.PostedAt = &at
	j.AddDomainEvent(NewJournalPostedEvent(j))
	return nil
}
