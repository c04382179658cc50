// Package escalation provides the external journal proposers consulted for
// finance events the rulebook cannot classify.
package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.5-flash"

var tracer = otel.Tracer("github.com/hera/autojournal/escalation")

// Errors returned by proposers
var (
	ErrDisabled      = errors.New("journal proposer is disabled")
	ErrEmptyResponse = errors.New("empty response from model")
	ErrMissingAPIKey = errors.New("gemini api key is required")
)

// contentGenerator is the slice of the genai client the proposer needs
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProposer asks a Gemini model for a balanced journal
type GeminiProposer struct {
	models contentGenerator
	model  string
	logger *zap.Logger
}

// NewGeminiProposer creates a proposer backed by the Gemini API
func NewGeminiProposer(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiProposer, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiProposer(client.Models, model, logger), nil
}

func newGeminiProposer(models contentGenerator, model string, logger *zap.Logger) *GeminiProposer {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiProposer{models: models, model: model, logger: logger}
}

// ProposeJournal sends the event and the chart of accounts to the model and
// decodes its journal proposal. Balance and confidence are checked by the
// caller, not here.
func (p *GeminiProposer) ProposeJournal(ctx context.Context, event *posting.FinanceEvent, chart []posting.AccountRef) (_ *posting.JournalProposal, err error) {
	ctx, span := tracer.Start(ctx, "gemini.ProposeJournal")
	span.SetAttributes(
		attribute.String("gen_ai.request.model", p.model),
		attribute.String("posting.transaction_type", string(event.TransactionType)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	prompt, err := buildPrompt(event, chart)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyResponse
	}

	proposal, err := parseProposal(raw)
	if err != nil {
		p.logger.Warn("model returned an unreadable proposal",
			zap.String("model", p.model),
			zap.String("transaction_id", event.TransactionID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	proposal.Model = p.model
	span.SetAttributes(attribute.Float64("posting.confidence", proposal.Confidence))

	p.logger.Debug("journal proposal received",
		zap.String("model", p.model),
		zap.String("transaction_id", event.TransactionID.String()),
		zap.Float64("confidence", proposal.Confidence),
		zap.Int("lines", len(proposal.Lines)),
	)
	return proposal, nil
}

type proposalPayload struct {
	Confidence float64       `json:"confidence"`
	Rationale  string        `json:"rationale"`
	Lines      []linePayload `json:"lines"`
}

type linePayload struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Side        string          `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// parseProposal decodes the model output into a proposal. Sides are
// normalized to upper case; anything else is passed through untouched so
// the caller can reject it.
func parseProposal(raw string) (*posting.JournalProposal, error) {
	var payload proposalPayload
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &payload); err != nil {
		return nil, fmt.Errorf("decode proposal: %w", err)
	}
	proposal := &posting.JournalProposal{
		Confidence: payload.Confidence,
		Rationale:  payload.Rationale,
		Lines:      make([]posting.ProposalLine, len(payload.Lines)),
	}
	for i, l := range payload.Lines {
		proposal.Lines[i] = posting.ProposalLine{
			AccountCode: strings.TrimSpace(l.AccountCode),
			AccountName: strings.TrimSpace(l.AccountName),
			Side:        posting.Side(strings.ToUpper(strings.TrimSpace(l.Side))),
			Amount:      l.Amount,
			Description: l.Description,
		}
	}
	return proposal, nil
}

// cleanModelJSON strips markdown fences and any text around the outermost
// JSON object
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

var _ posting.JournalProposer = (*GeminiProposer)(nil)
