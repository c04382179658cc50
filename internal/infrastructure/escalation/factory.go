package escalation

import (
	"context"

	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/infrastructure/config"
	"go.uber.org/zap"
)

// DisabledProposer refuses every request. Events the rulebook cannot
// handle are then recorded as not posted.
type DisabledProposer struct{}

// ProposeJournal always fails
func (DisabledProposer) ProposeJournal(context.Context, *posting.FinanceEvent, []posting.AccountRef) (*posting.JournalProposal, error) {
	return nil, ErrDisabled
}

// NewProposer builds the configured proposer
func NewProposer(ctx context.Context, cfg config.EscalationConfig, logger *zap.Logger) (posting.JournalProposer, error) {
	switch cfg.Provider {
	case "gemini":
		p, err := NewGeminiProposer(ctx, cfg.APIKey, cfg.Model, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Journal escalation enabled",
			zap.String("provider", cfg.Provider),
			zap.String("model", p.model),
			zap.Duration("timeout", cfg.Timeout),
		)
		return p, nil
	default:
		logger.Warn("Journal escalation is DISABLED: events without a rulebook mapping will not be posted",
			zap.String("provider", cfg.Provider),
		)
		return DisabledProposer{}, nil
	}
}
