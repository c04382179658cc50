package escalation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hera/autojournal/internal/domain/posting"
)

const systemInstruction = "You are a double-entry bookkeeping assistant for restaurant and retail businesses. " +
	"You map one business transaction onto general ledger accounts. " +
	"You never invent accounts outside the chart you are given."

const responseRules = "Rules:\n" +
	"- Use only account codes from the chart of accounts above.\n" +
	"- Every line has exactly one side, \"DEBIT\" or \"CREDIT\", and a positive amount.\n" +
	"- Total debits must equal total credits in the transaction currency.\n" +
	"- Set \"confidence\" between 0 and 1. Use a value below 0.5 when the transaction has no ledger impact or you are unsure.\n\n" +
	"Return ONLY raw JSON of the form:\n" +
	"{\"confidence\": number, \"rationale\": string, \"lines\": [{\"account_code\": string, \"account_name\": string, \"side\": \"DEBIT\"|\"CREDIT\", \"amount\": number, \"description\": string}]}\n" +
	"Do NOT wrap the response in code fences.\n"

// eventSummary is the view of an event shown to the model. Internal ids
// other than the transaction id are left out.
type eventSummary struct {
	TransactionID   string            `json:"transaction_id"`
	TransactionType string            `json:"transaction_type"`
	RawType         string            `json:"raw_transaction_type,omitempty"`
	SmartCode       string            `json:"smart_code"`
	TransactionDate string            `json:"transaction_date"`
	TotalAmount     string            `json:"total_amount"`
	Currency        string            `json:"currency"`
	Channel         string            `json:"channel"`
	Note            string            `json:"note,omitempty"`
	Context         map[string]string `json:"context,omitempty"`
}

func summarize(event *posting.FinanceEvent) eventSummary {
	bc := event.BusinessContext
	ctx := make(map[string]string)
	for k, v := range map[string]string{
		"terminal_id":   bc.TerminalID,
		"shift_id":      bc.ShiftID,
		"bank_account":  bc.BankAccount,
		"statement_ref": bc.StatementRef,
		"batch_ref":     bc.BatchRef,
		"tool_name":     bc.ToolName,
		"entered_by":    bc.EnteredBy,
	} {
		if v != "" {
			ctx[k] = v
		}
	}
	for k, v := range bc.Extensions {
		ctx[k] = v
	}
	if len(ctx) == 0 {
		ctx = nil
	}
	return eventSummary{
		TransactionID:   event.TransactionID.String(),
		TransactionType: string(event.TransactionType),
		RawType:         event.RawTransactionType,
		SmartCode:       event.SmartCode.String(),
		TransactionDate: event.TransactionDate.Format("2006-01-02"),
		TotalAmount:     event.TotalAmount.String(),
		Currency:        event.TransactionCurrency.String(),
		Channel:         string(bc.Channel),
		Note:            bc.Note,
		Context:         ctx,
	}
}

// buildPrompt renders the user prompt for one event
func buildPrompt(event *posting.FinanceEvent, chart []posting.AccountRef) (string, error) {
	summary, err := json.MarshalIndent(summarize(event), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}

	var b strings.Builder
	b.WriteString("Propose the journal entry for this transaction.\n\n")
	b.WriteString("Transaction:\n")
	b.Write(summary)
	b.WriteString("\n\nChart of accounts:\n")
	if len(chart) == 0 {
		b.WriteString("(none configured)\n")
	}
	for _, a := range chart {
		fmt.Fprintf(&b, "- %s %s\n", a.Code, a.Name)
	}
	b.WriteString("\n")
	b.WriteString(responseRules)
	return b.String(), nil
}
