package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"go.uber.org/zap"
)

// Reasons an event skips batching
const (
	ImmediateAboveThreshold = "above_immediate_threshold"
	ImmediateCritical       = "critical_smart_code"
	ImmediateCashMovement   = "cash_movement"
	ImmediateNotBatchable   = "not_batchable"
	ImmediateCurrency       = "currency_mismatch"
)

// OfferResult is the outcome of offering a journal to the aggregator
type OfferResult struct {
	PostedImmediately bool
	ImmediateReason   string
	// Posting is set when the event's own journal was posted
	Posting *PostingResult
	// Group is the group the event joined when batched
	Group *posting.BatchGroup
	// Flushed is set when joining the group pushed it over the threshold
	Flushed *PostingResult
}

// BatchAggregator defers small events into per-key groups and flushes each
// group as one summary journal. It is the only writer of batch state.
type BatchAggregator struct {
	runner    posting.TransactionRunner
	processor *PostingProcessor
	builder   *JournalBuilder
	policy    posting.Policy
	publisher shared.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewBatchAggregator creates an aggregator
func NewBatchAggregator(
	runner posting.TransactionRunner,
	processor *PostingProcessor,
	builder *JournalBuilder,
	policy posting.Policy,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *BatchAggregator {
	return &BatchAggregator{
		runner:    runner,
		processor: processor,
		builder:   builder,
		policy:    policy,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Offer posts the journal now or adds the event to its batch group. The
// first matching rule wins: large amounts, critical smart codes and cash
// movements are posted immediately, everything else is batched.
func (a *BatchAggregator) Offer(ctx context.Context, event *posting.FinanceEvent, journal *posting.JournalEntry) (*OfferResult, error) {
	if reason := a.immediateReason(event, journal); reason != "" {
		return a.postNow(ctx, journal, reason)
	}

	result, err := a.accumulate(ctx, event)
	if errors.Is(err, posting.ErrCurrencyMismatch) {
		a.logger.Info("open batch group uses another currency, posting immediately",
			zap.String("transaction_id", event.TransactionID.String()),
			zap.String("currency", event.TransactionCurrency.String()),
		)
		return a.postNow(ctx, journal, ImmediateCurrency)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (a *BatchAggregator) postNow(ctx context.Context, journal *posting.JournalEntry, reason string) (*OfferResult, error) {
	res, err := a.processor.Post(ctx, journal)
	if err != nil {
		return nil, err
	}
	return &OfferResult{PostedImmediately: true, ImmediateReason: reason, Posting: res}, nil
}

func (a *BatchAggregator) immediateReason(event *posting.FinanceEvent, journal *posting.JournalEntry) string {
	thresholds := a.policy.ThresholdsFor(event.OrganizationID)
	switch {
	case event.TotalAmount.GreaterThan(thresholds.Immediate):
		return ImmediateAboveThreshold
	case a.policy.IsCritical(event.SmartCode):
		return ImmediateCritical
	case posting.AlwaysImmediateTypes[event.TransactionType]:
		return ImmediateCashMovement
	}
	// Only single-pair rule journals can be summarized by the rule mapping
	if journal.Method != posting.MethodRule || len(journal.Lines) != 2 {
		return ImmediateNotBatchable
	}
	if _, ok := a.builder.rulebooks.Current().Lookup(event.OrganizationID, event.TransactionType); !ok {
		return ImmediateNotBatchable
	}
	return ""
}

// accumulate performs the locked read-modify-write of the group's running
// total and the threshold check in one transaction, so two concurrent
// offers for the same key cannot both miss the flush.
func (a *BatchAggregator) accumulate(ctx context.Context, event *posting.FinanceEvent) (*OfferResult, error) {
	key := posting.NewBatchKey(event.OrganizationID, event.TransactionType, event.TransactionDate)
	candidate, err := posting.NewBatchGroup(key, event.TransactionCurrency, event.SmartCode)
	if err != nil {
		return nil, err
	}
	threshold := a.policy.ThresholdsFor(event.OrganizationID).Batching

	result := &OfferResult{}
	var pending []shared.DomainEvent
	err = a.inTx(ctx, func(txCtx context.Context, repos posting.TxRepositories) error {
		group, err := repos.Batches.LockOrCreateOpen(txCtx, candidate)
		if err != nil {
			return fmt.Errorf("failed to lock batch group %s: %w", key, err)
		}
		// Checked under the group lock so a retry racing the first attempt
		// cannot slip in twice
		seen, err := repos.Batches.HasMember(txCtx, event.OrganizationID, event.TransactionID)
		if err != nil {
			return fmt.Errorf("failed to check batch membership: %w", err)
		}
		if seen {
			return ErrDuplicateRequest
		}
		member, err := group.Append(event, a.now().UTC())
		if err != nil {
			return err
		}
		if err := repos.Batches.AddMember(txCtx, group, member); err != nil {
			return fmt.Errorf("failed to add batch member: %w", err)
		}
		result.Group = group

		if group.ReachedThreshold(threshold) {
			flushed, events, err := a.flushLocked(txCtx, repos, group)
			if err != nil {
				return err
			}
			result.Flushed = flushed
			pending = events
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("transaction batched",
		zap.String("transaction_id", event.TransactionID.String()),
		zap.String("batch_group_id", result.Group.ID.String()),
		zap.String("running_total", result.Group.RunningTotal.String()),
		zap.Bool("flushed", result.Flushed != nil),
	)
	a.publish(ctx, pending)
	return result, nil
}

// flushLocked turns a locked group into one summary journal, posts it and
// marks every member batched. Must run inside the group's transaction.
func (a *BatchAggregator) flushLocked(ctx context.Context, repos posting.TxRepositories, group *posting.BatchGroup) (*PostingResult, []shared.DomainEvent, error) {
	journal, err := a.builder.BuildBatchSummary(group)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build batch summary for group %s: %w", group.ID, err)
	}
	res, err := a.processor.PostInTx(ctx, repos.Journals, journal)
	if err != nil {
		return nil, nil, err
	}
	if err := group.MarkFlushed(journal.ID, a.now().UTC()); err != nil {
		return nil, nil, err
	}
	if err := repos.Batches.MarkFlushed(ctx, group); err != nil {
		return nil, nil, fmt.Errorf("failed to mark batch group flushed: %w", err)
	}

	events := append(journal.GetDomainEvents(), group.GetDomainEvents()...)
	journal.ClearDomainEvents()
	group.ClearDomainEvents()
	return res, events, nil
}

// FlushStale flushes OPEN groups dated before the cutoff even though they
// never reached the threshold. It returns the number of groups flushed.
func (a *BatchAggregator) FlushStale(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	var stale []posting.BatchGroup
	err := a.inTx(ctx, func(txCtx context.Context, repos posting.TxRepositories) error {
		var err error
		stale, err = repos.Batches.FindStaleOpen(txCtx, before, limit)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list stale batch groups: %w", err)
	}

	flushed := 0
	var errs []error
	for _, g := range stale {
		ok, err := a.flushOne(ctx, g.OrganizationID, g.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			flushed++
		}
	}
	if len(errs) > 0 {
		return flushed, errors.Join(errs...)
	}
	return flushed, nil
}

func (a *BatchAggregator) flushOne(ctx context.Context, orgID, groupID uuid.UUID) (bool, error) {
	var pending []shared.DomainEvent
	err := a.inTx(ctx, func(txCtx context.Context, repos posting.TxRepositories) error {
		group, err := repos.Batches.LockByID(txCtx, orgID, groupID)
		if err != nil {
			return err
		}
		// Another instance may have flushed it since it was listed
		if group.Status != posting.BatchStatusOpen || len(group.Members) == 0 {
			return nil
		}
		_, events, err := a.flushLocked(txCtx, repos, group)
		pending = events
		return err
	})
	if err != nil {
		a.logger.Error("failed to flush stale batch group",
			zap.String("batch_group_id", groupID.String()),
			zap.Error(err),
		)
		return false, err
	}
	a.publish(ctx, pending)
	return len(pending) > 0, nil
}

// HasBatched reports whether the transaction already sits in one of the
// organization's batch groups
func (a *BatchAggregator) HasBatched(ctx context.Context, orgID, transactionID uuid.UUID) (bool, error) {
	var seen bool
	err := a.inTx(ctx, func(txCtx context.Context, repos posting.TxRepositories) error {
		var err error
		seen, err = repos.Batches.HasMember(txCtx, orgID, transactionID)
		return err
	})
	return seen, err
}

// inTx runs fn in a transaction bounded by the processor's write timeout.
// The bound covers waiting for a group row lock. A deadline surfaces as a
// POSTING_TIMEOUT PostingError.
func (a *BatchAggregator) inTx(ctx context.Context, fn func(ctx context.Context, repos posting.TxRepositories) error) error {
	txCtx, cancel := context.WithTimeout(ctx, a.processor.timeout)
	defer cancel()

	err := a.runner.RunInTx(txCtx, fn)
	if err == nil {
		return nil
	}
	var postingErr *PostingError
	if errors.As(err, &postingErr) && postingErr.Code == CodePostingTimeout {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(txCtx.Err(), context.DeadlineExceeded) {
		a.logger.Error("batch group transaction timed out",
			zap.Duration("timeout", a.processor.timeout),
			zap.Error(err),
		)
		return &PostingError{Code: CodePostingTimeout, Message: "Timed out updating batch group", Err: err}
	}
	return err
}

func (a *BatchAggregator) publish(ctx context.Context, events []shared.DomainEvent) {
	if a.publisher == nil || len(events) == 0 {
		return
	}
	if err := a.publisher.Publish(ctx, events...); err != nil {
		a.logger.Warn("failed to publish batch events", zap.Error(err))
	}
}
