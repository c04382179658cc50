package posting

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// TransactionType is the canonical kind of a finance event
type TransactionType string

const (
	TypeSale         TransactionType = "sale"
	TypePayment      TransactionType = "payment"
	TypeReceipt      TransactionType = "receipt"
	TypeExpense      TransactionType = "expense"
	TypePurchase     TransactionType = "purchase"
	TypePOSEndOfDay  TransactionType = "pos_eod"
	TypeBankFee      TransactionType = "bank_fee"
	TypeBankTransfer TransactionType = "bank_transfer"
	TypeBankDeposit  TransactionType = "bank_deposit"
	TypeRefund       TransactionType = "refund"
	TypePayroll      TransactionType = "payroll"

	// TypeAuditLog is reserved for audit rows stored alongside journals
	TypeAuditLog TransactionType = "AUDIT_LOG"
)

// IsReserved reports whether the type is the audit marker, in any case.
// Normalized types are lower-cased, so compare without case.
func (t TransactionType) IsReserved() bool {
	return strings.EqualFold(string(t), string(TypeAuditLog))
}

var typeAliases = map[string]TransactionType{
	"eod":            TypePOSEndOfDay,
	"pos_end_of_day": TypePOSEndOfDay,
	"end_of_day":     TypePOSEndOfDay,
	"pos":            TypePOSEndOfDay,
	"fee":            TypeBankFee,
	"bank_charge":    TypeBankFee,
	"transfer":       TypeBankTransfer,
	"deposit":        TypeBankDeposit,
	"salary":         TypePayroll,
	"bill":           TypePurchase,
}

var versionSegment = func(seg string) bool {
	if len(seg) < 2 || (seg[0] != 'V' && seg[0] != 'v') {
		return false
	}
	for _, r := range seg[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeTransactionType maps free-form and dotted types onto the
// canonical kind. "TX.FINANCE.EXPENSE.V1" becomes "expense" and
// "POS_EOD" becomes "pos_eod". Unknown kinds are returned lower-cased.
func NormalizeTransactionType(raw string) TransactionType {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, ".") {
		segs := strings.Split(s, ".")
		if n := len(segs); n > 1 && versionSegment(segs[n-1]) {
			segs = segs[:n-1]
		}
		s = segs[len(segs)-1]
	}
	s = strings.ToLower(strings.ReplaceAll(s, "-", "_"))
	if alias, ok := typeAliases[s]; ok {
		return alias
	}
	return TransactionType(s)
}

// Channel through which an event entered the system
type Channel string

const (
	ChannelMCP    Channel = "MCP"
	ChannelPOS    Channel = "POS"
	ChannelBank   Channel = "BANK"
	ChannelManual Channel = "MANUAL"
	ChannelImport Channel = "IMPORT"
)

// IsValid checks if the channel is one of the known channels
func (c Channel) IsValid() bool {
	switch c {
	case ChannelMCP, ChannelPOS, ChannelBank, ChannelManual, ChannelImport:
		return true
	}
	return false
}

// BusinessContext describes where an event came from. Exactly the fields of
// the matching channel are meaningful; anything else goes to Extensions.
type BusinessContext struct {
	Channel Channel
	Note    string

	// POS
	TerminalID string
	ShiftID    string
	// BANK
	BankAccount  string
	StatementRef string
	// IMPORT
	BatchRef string
	// MCP
	ToolName string
	// MANUAL
	EnteredBy string

	Extensions map[string]string
}

// IngestSource names the producer of the event
type IngestSource string

const (
	SourceAPI         IngestSource = "api"
	SourcePOSTerminal IngestSource = "pos_terminal"
	SourceBankFeed    IngestSource = "bank_feed"
	SourceCSVImport   IngestSource = "csv_import"
	SourceMCPAgent    IngestSource = "mcp_agent"
)

// IsValid checks if the ingest source is known
func (s IngestSource) IsValid() bool {
	switch s {
	case SourceAPI, SourcePOSTerminal, SourceBankFeed, SourceCSVImport, SourceMCPAgent:
		return true
	}
	return false
}

// EventMetadata carries provenance of the event
type EventMetadata struct {
	IngestSource IngestSource
	OriginalRef  string
	Extensions   map[string]string
}

// POSTotals is the component breakdown of a point-of-sale end-of-day summary
type POSTotals struct {
	GrossSales     decimal.Decimal
	VAT            decimal.Decimal
	Tips           decimal.Decimal
	Fees           decimal.Decimal
	CashCollected  decimal.Decimal
	CardSettlement decimal.Decimal
}

// IsZero reports whether no component is set
func (t POSTotals) IsZero() bool {
	return t.GrossSales.IsZero() && t.VAT.IsZero() && t.Tips.IsZero() &&
		t.Fees.IsZero() && t.CashCollected.IsZero() && t.CardSettlement.IsZero()
}

// FinanceEvent is a validated Universal Finance Event: the canonical
// description of one business transaction with possible GL impact
type FinanceEvent struct {
	TransactionID       uuid.UUID
	OrganizationID      uuid.UUID
	TransactionType     TransactionType
	RawTransactionType  string
	SmartCode           SmartCode
	TransactionDate     time.Time
	TotalAmount         decimal.Decimal
	TransactionCurrency valueobject.Currency
	BaseCurrency        valueobject.Currency
	ExchangeRate        decimal.Decimal
	BusinessContext     BusinessContext
	Metadata            EventMetadata
	Totals              *POSTotals
	IdempotencyKey      string
}

// Amount returns the total as Money in the transaction currency
func (e *FinanceEvent) Amount() valueobject.Money {
	m, _ := valueobject.NewMoney(e.TotalAmount, e.TransactionCurrency)
	return m
}

// BaseAmount returns the total converted to the base currency
func (e *FinanceEvent) BaseAmount() decimal.Decimal {
	return e.BaseCurrency.Round(e.TotalAmount.Mul(e.effectiveRate()))
}

func (e *FinanceEvent) effectiveRate() decimal.Decimal {
	if !e.ExchangeRate.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return e.ExchangeRate
}

// BusinessDate returns the transaction's calendar day as submitted
func (e *FinanceEvent) BusinessDate() time.Time {
	return CalendarDay(e.TransactionDate)
}
