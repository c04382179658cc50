package posting

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/hera/autojournal/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

var testDate = time.Date(2024, 12, 1, 10, 30, 0, 0, time.UTC)

func testEvent(orgID uuid.UUID, txType posting.TransactionType, amount string) *posting.FinanceEvent {
	return &posting.FinanceEvent{
		TransactionID:       uuid.New(),
		OrganizationID:      orgID,
		TransactionType:     txType,
		RawTransactionType:  string(txType),
		SmartCode:           posting.SmartCode("HERA.REST.FINANCE.TXN." + strings.ToUpper(string(txType)) + ".V1"),
		TransactionDate:     testDate,
		TotalAmount:         decimal.RequireFromString(amount),
		TransactionCurrency: valueobject.AED,
		BaseCurrency:        valueobject.AED,
		ExchangeRate:        decimal.NewFromInt(1),
		BusinessContext:     posting.BusinessContext{Channel: posting.ChannelPOS},
		Metadata:            posting.EventMetadata{IngestSource: posting.SourceAPI},
	}
}

func testRulebooks() posting.RulebookProvider {
	return posting.StaticRulebook{Book: posting.DefaultRulebook()}
}

// pipeline wires the real application services over in-memory adapters
type pipeline struct {
	ledger     *memoryLedger
	audit      *memoryAudit
	proposer   *MockJournalProposer
	policy     posting.Policy
	rulebooks  posting.RulebookProvider
	escalator  *Escalator
	classifier *Classifier
	builder    *JournalBuilder
	processor  *PostingProcessor
	aggregator *BatchAggregator
	service    *IngestService
}

type pipelineOption func(*pipeline, *IngestServiceDeps)

func withIdempotency(store shared.IdempotencyStore) pipelineOption {
	return func(_ *pipeline, deps *IngestServiceDeps) {
		deps.Idempotency = store
		deps.IdemConfig = shared.IdempotencyConfig{TTL: time.Hour, Enabled: true}
	}
}

func newPipeline(t *testing.T, opts ...pipelineOption) *pipeline {
	t.Helper()
	logger := newTestLogger()
	p := &pipeline{
		ledger:    newMemoryLedger(),
		audit:     &memoryAudit{},
		proposer:  new(MockJournalProposer),
		policy:    posting.DefaultPolicy(),
		rulebooks: testRulebooks(),
	}
	cfg := DefaultEscalationConfig()
	cfg.Timeout = 200 * time.Millisecond
	cfg.RatePerSecond = 0
	p.escalator = NewEscalator(p.proposer, p.rulebooks, cfg, nil, logger)
	p.classifier = NewClassifier(p.policy, p.rulebooks, p.escalator)
	p.builder = NewJournalBuilder(p.rulebooks)
	p.processor = NewPostingProcessor(p.ledger, nil, time.Second, logger)
	p.aggregator = NewBatchAggregator(p.ledger, p.processor, p.builder, p.policy, nil, logger)

	deps := IngestServiceDeps{
		Classifier: p.classifier,
		Builder:    p.builder,
		Escalator:  p.escalator,
		Aggregator: p.aggregator,
		Audit:      NewAuditLogger(p.audit, nil, time.Second, logger),
		Journals:   journalReader{ledger: p.ledger},
		AuditRepo:  p.audit,
		Logger:     logger,
	}
	for _, opt := range opts {
		opt(p, &deps)
	}
	p.service = NewIngestService(deps)
	return p
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testRequest(orgID uuid.UUID, txType, amount string) *PostTransactionRequest {
	return &PostTransactionRequest{
		OrganizationID:          orgID.String(),
		TransactionType:         txType,
		SmartCode:               "HERA.REST.FINANCE.TXN.SALE.V1",
		TransactionDate:         "2024-12-01",
		TotalAmount:             decimalPtr(amount),
		TransactionCurrencyCode: "AED",
		BusinessContext:         BusinessContextRequest{Channel: "POS", TerminalID: "T-01"},
		Metadata:                MetadataRequest{IngestSource: "pos_terminal"},
	}
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
