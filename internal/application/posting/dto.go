package posting

import (
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/shopspring/decimal"
)

// PostTransactionRequest is the inbound Universal Finance Event
type PostTransactionRequest struct {
	TransactionID           string                 `json:"transaction_id,omitempty" validate:"omitempty,uuid"`
	OrganizationID          string                 `json:"organization_id" validate:"required,uuid"`
	TransactionType         string                 `json:"transaction_type" validate:"required,max=100"`
	SmartCode               string                 `json:"smart_code" validate:"required,smartcode"`
	TransactionDate         string                 `json:"transaction_date" validate:"required"`
	TotalAmount             *decimal.Decimal       `json:"total_amount" validate:"required"`
	TransactionCurrencyCode string                 `json:"transaction_currency_code" validate:"required,currency"`
	BaseCurrencyCode        string                 `json:"base_currency_code,omitempty" validate:"omitempty,currency"`
	ExchangeRate            *decimal.Decimal       `json:"exchange_rate,omitempty"`
	BusinessContext         BusinessContextRequest `json:"business_context"`
	Metadata                MetadataRequest        `json:"metadata"`
	Totals                  *POSTotalsRequest      `json:"totals,omitempty"`
	Lines                   []map[string]any       `json:"lines,omitempty"`
	IdempotencyKey          string                 `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

// BusinessContextRequest is the channel-tagged business context. Unknown
// keys are kept in Extensions.
type BusinessContextRequest struct {
	Channel      string            `json:"channel" validate:"required,oneof=MCP POS BANK MANUAL IMPORT"`
	Note         string            `json:"note,omitempty" validate:"max=1000"`
	TerminalID   string            `json:"terminal_id,omitempty"`
	ShiftID      string            `json:"shift_id,omitempty"`
	BankAccount  string            `json:"bank_account,omitempty"`
	StatementRef string            `json:"statement_ref,omitempty"`
	BatchRef     string            `json:"batch_ref,omitempty"`
	ToolName     string            `json:"tool_name,omitempty"`
	EnteredBy    string            `json:"entered_by,omitempty"`
	Extensions   map[string]string `json:"extensions,omitempty"`
}

// MetadataRequest carries event provenance
type MetadataRequest struct {
	IngestSource string            `json:"ingest_source,omitempty" validate:"omitempty,oneof=api pos_terminal bank_feed csv_import mcp_agent"`
	OriginalRef  string            `json:"original_ref,omitempty" validate:"max=255"`
	Extensions   map[string]string `json:"extensions,omitempty"`
}

// POSTotalsRequest is the end-of-day component breakdown
type POSTotalsRequest struct {
	GrossSales     decimal.Decimal `json:"gross_sales"`
	VAT            decimal.Decimal `json:"vat"`
	Tips           decimal.Decimal `json:"tips"`
	Fees           decimal.Decimal `json:"fees"`
	CashCollected  decimal.Decimal `json:"cash_collected"`
	CardSettlement decimal.Decimal `json:"card_settlement"`
}

// AuthContext is the authenticated caller
type AuthContext struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Username       string
}

// GLLineDTO is one generated ledger line in responses
type GLLineDTO struct {
	LineNumber   int             `json:"line_number"`
	AccountCode  string          `json:"account_code"`
	AccountName  string          `json:"account_name"`
	DebitAmount  decimal.Decimal `json:"debit_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description,omitempty"`
	SmartCode    string          `json:"smart_code"`
}

// ClassificationDTO exposes how relevance was decided
type ClassificationDTO struct {
	IsRelevant bool    `json:"is_relevant"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Reason     string  `json:"reason"`
}

// IngestResult is the outcome of one ingest call
type IngestResult struct {
	TransactionID     uuid.UUID         `json:"transaction_id"`
	JournalEntryID    *uuid.UUID        `json:"journal_entry_id"`
	PostingPeriod     string            `json:"posting_period,omitempty"`
	GLLines           []GLLineDTO       `json:"gl_lines"`
	ProcessingResult  string            `json:"processing_result"`
	PostedImmediately bool              `json:"posted_immediately"`
	Batched           bool              `json:"batched"`
	BatchGroupID      *uuid.UUID        `json:"batch_group_id,omitempty"`
	Classification    ClassificationDTO `json:"classification"`
}

// JournalDTO is a stored journal as returned by queries
type JournalDTO struct {
	ID                   uuid.UUID   `json:"id"`
	OrganizationID       uuid.UUID   `json:"organization_id"`
	SourceTransactionIDs []uuid.UUID `json:"source_transaction_ids"`
	TransactionType      string      `json:"transaction_type"`
	SmartCode            string      `json:"smart_code"`
	SourceSmartCode      string      `json:"source_smart_code"`
	TransactionDate      time.Time   `json:"transaction_date"`
	PostingPeriod        string      `json:"posting_period"`
	Currency             string      `json:"currency"`
	Method               string      `json:"method"`
	RuleVersion          string      `json:"rule_version,omitempty"`
	Confidence           float64     `json:"confidence"`
	Status               string      `json:"status"`
	BatchGroupID         *uuid.UUID  `json:"batch_group_id,omitempty"`
	Lines                []GLLineDTO `json:"lines"`
}

// AuditRecordDTO is an audit row as returned by queries
type AuditRecordDTO struct {
	ID                  uuid.UUID  `json:"id"`
	SourceTransactionID *uuid.UUID `json:"source_transaction_id,omitempty"`
	SourceSmartCode     string     `json:"source_smart_code"`
	ProcessingResult    string     `json:"processing_result"`
	Method              string     `json:"method,omitempty"`
	Confidence          float64    `json:"confidence"`
	Reason              string     `json:"reason,omitempty"`
	JournalEntryID      *uuid.UUID `json:"journal_entry_id,omitempty"`
	BatchGroupID        *uuid.UUID `json:"batch_group_id,omitempty"`
	ErrorCode           string     `json:"error_code,omitempty"`
	Details             any        `json:"details,omitempty"`
	RecordedAt          time.Time  `json:"recorded_at"`
}

// ToGLLines converts journal lines to response DTOs
func ToGLLines(lines []posting.JournalLine) []GLLineDTO {
	out := make([]GLLineDTO, len(lines))
	for i, l := range lines {
		out[i] = GLLineDTO{
			LineNumber:   l.LineNumber,
			AccountCode:  l.AccountCode,
			AccountName:  l.AccountName,
			DebitAmount:  l.DebitAmount,
			CreditAmount: l.CreditAmount,
			Currency:     l.Currency.String(),
			Description:  l.Description,
			SmartCode:    l.SmartCode.String(),
		}
	}
	return out
}

// ToClassificationDTO converts a classification result
func ToClassificationDTO(r posting.ClassificationResult) ClassificationDTO {
	return ClassificationDTO{
		IsRelevant: r.IsRelevant,
		Confidence: r.Confidence,
		Method:     string(r.Method),
		Reason:     r.Reason,
	}
}

// ToJournalDTO converts a stored journal
func ToJournalDTO(j *posting.JournalEntry) JournalDTO {
	return JournalDTO{
		ID:                   j.ID,
		OrganizationID:       j.OrganizationID,
		SourceTransactionIDs: j.SourceTransactionIDs,
		TransactionType:      string(j.TransactionType),
		SmartCode:            j.SmartCode.String(),
		SourceSmartCode:      j.SourceSmartCode.String(),
		TransactionDate:      j.TransactionDate,
		PostingPeriod:        j.PostingPeriod,
		Currency:             j.Currency.String(),
		Method:               string(j.Method),
		RuleVersion:          j.RuleVersion,
		Confidence:           j.Confidence,
		Status:               string(j.Status),
		BatchGroupID:         j.BatchGroupID,
		Lines:                ToGLLines(j.Lines),
	}
}

// ToAuditRecordDTO converts a stored audit record
func ToAuditRecordDTO(r *posting.AuditRecord) AuditRecordDTO {
	dto := AuditRecordDTO{
		ID:                  r.ID,
		SourceTransactionID: r.SourceTransactionID,
		SourceSmartCode:     r.SourceSmartCode.String(),
		ProcessingResult:    string(r.ProcessingResult),
		Method:              string(r.Method),
		Confidence:          r.Confidence,
		Reason:              r.Reason,
		JournalEntryID:      r.JournalEntryID,
		BatchGroupID:        r.BatchGroupID,
		ErrorCode:           r.ErrorCode,
		RecordedAt:          r.RecordedAt,
	}
	if len(r.Details) > 0 {
		dto.Details = r.Details
	}
	return dto
}
