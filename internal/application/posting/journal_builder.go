package posting

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
)

// JournalBuilder produces deterministic journals from the rulebook
type JournalBuilder struct {
	rulebooks posting.RulebookProvider
}

// NewJournalBuilder creates a builder reading the current rulebook on every call
func NewJournalBuilder(rulebooks posting.RulebookProvider) *JournalBuilder {
	return &JournalBuilder{rulebooks: rulebooks}
}

// Build maps an event onto balanced lines. It returns posting.ErrNotBuildable
// when the type has no mapping; it never guesses.
func (b *JournalBuilder) Build(event *posting.FinanceEvent) (*posting.JournalEntry, error) {
	book := b.rulebooks.Current()
	if !book.Recognizes(event.OrganizationID, event.TransactionType) {
		return nil, posting.ErrNotBuildable
	}
	if event.TransactionType == posting.TypePOSEndOfDay {
		return b.buildPOSEndOfDay(book, event)
	}

	mapping, _ := book.Lookup(event.OrganizationID, event.TransactionType)
	journal, err := newEventJournal(event, posting.MethodRule)
	if err != nil {
		return nil, err
	}
	journal.RuleVersion = book.Version
	desc := describe(mapping, event)
	journal.Description = desc
	journal.AddDebit(mapping.Debit, event.TotalAmount, desc)
	journal.AddCredit(mapping.Credit, event.TotalAmount, desc)
	return journal, nil
}

// buildPOSEndOfDay expands the end-of-day totals into one line per
// component. Debits: cash, card clearing net of fees, card fees. Credits:
// sales, VAT, tips. Totals that do not add up yield an unbalanced journal
// which the posting processor rejects.
func (b *JournalBuilder) buildPOSEndOfDay(book *posting.Rulebook, event *posting.FinanceEvent) (*posting.JournalEntry, error) {
	t := event.Totals
	if t == nil || t.IsZero() {
		return nil, shared.NewDomainError("INVALID_POS_TOTALS", "POS end-of-day event has no totals")
	}
	if t.Fees.GreaterThan(t.CardSettlement) {
		return nil, shared.NewDomainError("INVALID_POS_TOTALS", "Card fees exceed card settlement")
	}
	journal, err := newEventJournal(event, posting.MethodRule)
	if err != nil {
		return nil, err
	}
	journal.RuleVersion = book.Version
	journal.Description = "POS end of day"
	if event.BusinessContext.TerminalID != "" {
		journal.Description = fmt.Sprintf("POS end of day, terminal %s", event.BusinessContext.TerminalID)
	}
	pos := book.POS
	journal.AddDebit(pos.Cash, t.CashCollected, "Cash collected")
	journal.AddDebit(pos.CardClearing, t.CardSettlement.Sub(t.Fees), "Card settlement net of fees")
	journal.AddDebit(pos.CardFees, t.Fees, "Card processing fees")
	journal.AddCredit(pos.SalesRevenue, t.GrossSales, "Gross sales")
	journal.AddCredit(pos.VATPayable, t.VAT, "VAT collected")
	journal.AddCredit(pos.TipsPayable, t.Tips, "Tips collected")
	return journal, nil
}

// BuildBatchSummary produces the single debit/credit pair for a flushed
// group using the mapping of the group's transaction type
func (b *JournalBuilder) BuildBatchSummary(group *posting.BatchGroup) (*posting.JournalEntry, error) {
	book := b.rulebooks.Current()
	mapping, ok := book.Lookup(group.OrganizationID, group.TransactionType)
	if !ok {
		return nil, posting.ErrNotBuildable
	}
	journal, err := posting.NewJournalEntry(group.OrganizationID, group.BatchDate, group.Currency, posting.MethodBatch)
	if err != nil {
		return nil, err
	}
	groupID := group.ID
	journal.SourceTransactionIDs = group.MemberTransactionIDs()
	journal.TransactionType = group.TransactionType
	journal.SourceSmartCode = group.SourceSmartCode
	journal.SmartCode = posting.JournalSmartCode(group.SourceSmartCode.Domain(), posting.MethodBatch)
	journal.BaseAmount = group.RunningTotal
	if group.BaseCurrency.IsValid() {
		journal.BaseCurrency = group.BaseCurrency
		journal.BaseAmount = group.BaseTotal
		journal.ExchangeRate = group.ExchangeRate()
	}
	journal.RuleVersion = book.Version
	journal.BatchGroupID = &groupID
	desc := fmt.Sprintf("%s summary of %d transactions on %s", mapping.Description, len(group.Members), group.BatchDate.Format("2006-01-02"))
	journal.Description = desc
	journal.AddDebit(mapping.Debit, group.RunningTotal, desc)
	journal.AddCredit(mapping.Credit, group.RunningTotal, desc)
	return journal, nil
}

// newEventJournal creates the header shared by rule and AI journals
func newEventJournal(event *posting.FinanceEvent, method posting.Method) (*posting.JournalEntry, error) {
	journal, err := posting.NewJournalEntry(event.OrganizationID, event.TransactionDate, event.TransactionCurrency, method)
	if err != nil {
		return nil, err
	}
	journal.SourceTransactionIDs = []uuid.UUID{event.TransactionID}
	journal.TransactionType = event.TransactionType
	journal.SourceSmartCode = event.SmartCode
	journal.SmartCode = posting.JournalSmartCode(event.SmartCode.Domain(), method)
	journal.BaseCurrency = event.BaseCurrency
	journal.ExchangeRate = event.ExchangeRate
	journal.BaseAmount = event.BaseAmount()
	return journal, nil
}

func describe(mapping posting.AccountMapping, event *posting.FinanceEvent) string {
	desc := mapping.Description
	if desc == "" {
		desc = string(event.TransactionType)
	}
	if event.Metadata.OriginalRef != "" {
		desc = fmt.Sprintf("%s (%s)", desc, event.Metadata.OriginalRef)
	}
	return desc
}
