package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hera/autojournal/internal/domain/posting"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EscalationConfig bounds calls to the external reasoning service
type EscalationConfig struct {
	Timeout         time.Duration
	ConfidenceFloor float64
	// RatePerSecond and Burst size the token bucket shared by all requests
	RatePerSecond float64
	Burst         int
}

// DefaultEscalationConfig returns conservative defaults
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		Timeout:         3 * time.Second,
		ConfidenceFloor: 0.5,
		RatePerSecond:   5,
		Burst:           10,
	}
}

// Escalator wraps the external JournalProposer. Every call runs in its own
// goroutine under a deadline and the caller never waits past it.
type Escalator struct {
	proposer  posting.JournalProposer
	rulebooks posting.RulebookProvider
	limiter   *rate.Limiter
	cfg       EscalationConfig
	metrics   Metrics
	logger    *zap.Logger
}

// NewEscalator creates an escalator. A nil proposer makes every call fail,
// which classifies the event as not relevant.
func NewEscalator(
	proposer posting.JournalProposer,
	rulebooks posting.RulebookProvider,
	cfg EscalationConfig,
	metrics Metrics,
	logger *zap.Logger,
) *Escalator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEscalationConfig().Timeout
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = DefaultEscalationConfig().ConfidenceFloor
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &Escalator{
		proposer:  proposer,
		rulebooks: rulebooks,
		limiter:   rate.NewLimiter(limit, burst),
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// ConfidenceFloor returns the minimum accepted confidence
func (e *Escalator) ConfidenceFloor() float64 {
	return e.cfg.ConfidenceFloor
}

type proposalOutcome struct {
	proposal *posting.JournalProposal
	err      error
}

// Propose asks the external service for a journal. Waiting for a rate
// token counts against the same deadline as the call itself.
func (e *Escalator) Propose(ctx context.Context, event *posting.FinanceEvent) (*posting.JournalProposal, error) {
	if e.proposer == nil {
		return nil, ErrEscalationUnavailable
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	proposal, err := e.call(ctx, event)
	e.metrics.RecordEscalation(ctx, time.Since(start), err)
	if err != nil {
		e.logger.Warn("escalation failed, event will not be posted",
			zap.String("transaction_id", event.TransactionID.String()),
			zap.String("transaction_type", string(event.TransactionType)),
			zap.String("smart_code", event.SmartCode.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	return proposal, nil
}

func (e *Escalator) call(ctx context.Context, event *posting.FinanceEvent) (*posting.JournalProposal, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for rate limit: %v", ErrEscalationTimeout, err)
	}

	var chart []posting.AccountRef
	if book := e.rulebooks.Current(); book != nil {
		chart = book.ChartOfAccounts()
	}

	done := make(chan proposalOutcome, 1)
	go func() {
		p, err := e.proposer.ProposeJournal(ctx, event, chart)
		done <- proposalOutcome{proposal: p, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrEscalationTimeout, e.cfg.Timeout)
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrEscalationTimeout, out.err)
			}
			return nil, fmt.Errorf("failed to obtain journal proposal: %w", out.err)
		}
		if out.proposal == nil {
			return nil, fmt.Errorf("%w: empty proposal", ErrInvalidProposal)
		}
		if out.proposal.Confidence < 0 || out.proposal.Confidence > 1 {
			return nil, fmt.Errorf("%w: confidence %.3f outside [0,1]", ErrInvalidProposal, out.proposal.Confidence)
		}
		return out.proposal, nil
	}
}

// JournalFromProposal turns an accepted proposal into a draft journal.
// Proposals whose lines do not balance are rejected, never adjusted.
func (e *Escalator) JournalFromProposal(event *posting.FinanceEvent, proposal *posting.JournalProposal) (*posting.JournalEntry, error) {
	if proposal.Confidence < e.cfg.ConfidenceFloor {
		return nil, fmt.Errorf("%w: confidence %.2f below floor %.2f", ErrInvalidProposal, proposal.Confidence, e.cfg.ConfidenceFloor)
	}
	if len(proposal.Lines) < 2 {
		return nil, fmt.Errorf("%w: needs at least two lines, got %d", ErrInvalidProposal, len(proposal.Lines))
	}
	journal, err := newEventJournal(event, posting.MethodAI)
	if err != nil {
		return nil, err
	}
	journal.Confidence = proposal.Confidence
	journal.Model = proposal.Model
	journal.Description = proposal.Rationale

	for i, l := range proposal.Lines {
		if l.AccountCode == "" {
			return nil, fmt.Errorf("%w: line %d has no account code", ErrInvalidProposal, i+1)
		}
		if !l.Side.IsValid() {
			return nil, fmt.Errorf("%w: line %d has side %q", ErrInvalidProposal, i+1, l.Side)
		}
		if !l.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: line %d amount must be positive", ErrInvalidProposal, i+1)
		}
		journal.AddLine(posting.AccountRef{Code: l.AccountCode, Name: l.AccountName}, l.Side, l.Amount, l.Description)
	}
	if err := journal.CheckBalance(); err != nil {
		return journal, err
	}
	return journal, nil
}
