package posting

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// EventValidator checks inbound events against the UFE schema and turns
// them into domain events
type EventValidator struct {
	validate *validator.Validate
}

// NewEventValidator creates a validator with the finance specific tags
func NewEventValidator() *EventValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		_, err := valueobject.ParseCurrency(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("smartcode", func(fl validator.FieldLevel) bool {
		_, err := posting.ParseSmartCode(fl.Field().String())
		return err == nil
	})
	return &EventValidator{validate: v}
}

// Validate returns the domain event, or every field problem found. A
// non-empty lines array is always reported even when other fields fail.
func (v *EventValidator) Validate(req *PostTransactionRequest) (*posting.FinanceEvent, []FieldError) {
	var errs []FieldError

	if len(req.Lines) > 0 {
		errs = append(errs, FieldError{Field: "lines", Message: "Must be empty; journal lines are generated by the posting engine"})
	}

	if err := v.validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range verrs {
				errs = append(errs, FieldError{Field: fieldPath(e), Message: validationMessage(e)})
			}
		} else {
			errs = append(errs, FieldError{Field: "body", Message: err.Error()})
		}
	}

	if req.TotalAmount != nil && req.TotalAmount.IsNegative() {
		errs = append(errs, FieldError{Field: "total_amount", Message: "Must be greater than or equal to 0"})
	}
	if req.ExchangeRate != nil && !req.ExchangeRate.IsPositive() {
		errs = append(errs, FieldError{Field: "exchange_rate", Message: "Must be greater than 0"})
	}

	var txDate time.Time
	if req.TransactionDate != "" {
		d, err := parseTransactionDate(req.TransactionDate)
		if err != nil {
			errs = append(errs, FieldError{Field: "transaction_date", Message: "Must be an RFC3339 timestamp or YYYY-MM-DD date"})
		}
		txDate = d
	}

	txType := posting.NormalizeTransactionType(req.TransactionType)
	if txType.IsReserved() {
		errs = append(errs, FieldError{Field: "transaction_type", Message: "AUDIT_LOG is reserved"})
	}
	if txType == posting.TypePOSEndOfDay {
		errs = append(errs, validatePOSTotals(req.Totals)...)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return v.toEvent(req, txType, txDate), nil
}

func (v *EventValidator) toEvent(req *PostTransactionRequest, txType posting.TransactionType, txDate time.Time) *posting.FinanceEvent {
	txCurrency, _ := valueobject.ParseCurrency(req.TransactionCurrencyCode)
	baseCurrency := txCurrency
	if req.BaseCurrencyCode != "" {
		baseCurrency, _ = valueobject.ParseCurrency(req.BaseCurrencyCode)
	}
	rate := decimal.NewFromInt(1)
	if req.ExchangeRate != nil {
		rate = *req.ExchangeRate
	}
	txID := uuid.New()
	if req.TransactionID != "" {
		txID = uuid.MustParse(req.TransactionID)
	}
	source := posting.IngestSource(req.Metadata.IngestSource)
	if source == "" {
		source = posting.SourceAPI
	}

	event := &posting.FinanceEvent{
		TransactionID:       txID,
		OrganizationID:      uuid.MustParse(req.OrganizationID),
		TransactionType:     txType,
		RawTransactionType:  req.TransactionType,
		SmartCode:           posting.SmartCode(strings.TrimSpace(req.SmartCode)),
		TransactionDate:     txDate,
		TotalAmount:         *req.TotalAmount,
		TransactionCurrency: txCurrency,
		BaseCurrency:        baseCurrency,
		ExchangeRate:        rate,
		BusinessContext:     toBusinessContext(req.BusinessContext),
		Metadata: posting.EventMetadata{
			IngestSource: source,
			OriginalRef:  req.Metadata.OriginalRef,
			Extensions:   req.Metadata.Extensions,
		},
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.Totals != nil {
		event.Totals = &posting.POSTotals{
			GrossSales:     req.Totals.GrossSales,
			VAT:            req.Totals.VAT,
			Tips:           req.Totals.Tips,
			Fees:           req.Totals.Fees,
			CashCollected:  req.Totals.CashCollected,
			CardSettlement: req.Totals.CardSettlement,
		}
	}
	return event
}

// toBusinessContext keeps only the fields of the declared channel; the
// rest is folded into the extension map so nothing is silently lost
func toBusinessContext(r BusinessContextRequest) posting.BusinessContext {
	bc := posting.BusinessContext{
		Channel:    posting.Channel(r.Channel),
		Note:       r.Note,
		Extensions: make(map[string]string, len(r.Extensions)),
	}
	for k, val := range r.Extensions {
		bc.Extensions[k] = val
	}
	stray := func(key, val string) {
		if val != "" {
			bc.Extensions[key] = val
		}
	}
	switch bc.Channel {
	case posting.ChannelPOS:
		bc.TerminalID, bc.ShiftID = r.TerminalID, r.ShiftID
	case posting.ChannelBank:
		bc.BankAccount, bc.StatementRef = r.BankAccount, r.StatementRef
	case posting.ChannelImport:
		bc.BatchRef = r.BatchRef
	case posting.ChannelMCP:
		bc.ToolName = r.ToolName
	case posting.ChannelManual:
		bc.EnteredBy = r.EnteredBy
	}
	if bc.Channel != posting.ChannelPOS {
		stray("terminal_id", r.TerminalID)
		stray("shift_id", r.ShiftID)
	}
	if bc.Channel != posting.ChannelBank {
		stray("bank_account", r.BankAccount)
		stray("statement_ref", r.StatementRef)
	}
	if bc.Channel != posting.ChannelImport {
		stray("batch_ref", r.BatchRef)
	}
	if bc.Channel != posting.ChannelMCP {
		stray("tool_name", r.ToolName)
	}
	if bc.Channel != posting.ChannelManual {
		stray("entered_by", r.EnteredBy)
	}
	if len(bc.Extensions) == 0 {
		bc.Extensions = nil
	}
	return bc
}

func validatePOSTotals(t *POSTotalsRequest) []FieldError {
	if t == nil {
		return []FieldError{{Field: "totals", Message: "This field is required for pos_eod transactions"}}
	}
	var errs []FieldError
	components := []struct {
		name  string
		value decimal.Decimal
	}{
		{"gross_sales", t.GrossSales},
		{"vat", t.VAT},
		{"tips", t.Tips},
		{"fees", t.Fees},
		{"cash_collected", t.CashCollected},
		{"card_settlement", t.CardSettlement},
	}
	for _, c := range components {
		if c.value.IsNegative() {
			errs = append(errs, FieldError{Field: "totals." + c.name, Message: "Must be greater than or equal to 0"})
		}
	}
	if t.Fees.GreaterThan(t.CardSettlement) {
		errs = append(errs, FieldError{Field: "totals.fees", Message: "Must not exceed card_settlement"})
	}
	return errs
}

func parseTransactionDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// fieldPath strips the root struct name from the validator namespace
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "max":
		return "Must be at most " + e.Param() + " characters"
	case "currency":
		return "Unsupported currency code"
	case "smartcode":
		return "Must look like HERA.<DOMAIN>.<MODULE>...V<n>"
	default:
		return "Invalid value"
	}
}
