package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	appposting "github.com/hera/autojournal/internal/application/posting"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the posting pipeline meters
const MeterName = "github.com/hera/autojournal/posting"

// Attribute keys shared by the posting instruments
var (
	AttrMethod          = attribute.Key("posting.method")
	AttrResult          = attribute.Key("posting.result")
	AttrReason          = attribute.Key("posting.reason")
	AttrRelevant        = attribute.Key("posting.relevant")
	AttrTransactionType = attribute.Key("posting.transaction_type")
	AttrOutcome         = attribute.Key("outcome")
)

var (
	// ingestDurationBuckets spans rule-only requests up to escalated ones (seconds)
	ingestDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	// escalationDurationBuckets covers external model latency (seconds)
	escalationDurationBuckets = []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30}
	batchSizeBuckets          = []float64{1, 2, 5, 10, 25, 50, 100, 250}
)

// PostingMetrics records pipeline measurements as OpenTelemetry instruments.
// It implements the application Metrics port and also subscribes to the
// event bus to count what reached the ledger.
type PostingMetrics struct {
	classifications    metric.Int64Counter
	outcomes           metric.Int64Counter
	escalationDuration metric.Float64Histogram
	ingestDuration     metric.Float64Histogram
	journalsPosted     metric.Int64Counter
	journalLines       metric.Int64Histogram
	batchesFlushed     metric.Int64Counter
	batchMembers       metric.Int64Histogram
}

// NewPostingMetrics creates the instruments on meter
func NewPostingMetrics(meter metric.Meter) (*PostingMetrics, error) {
	m := &PostingMetrics{}
	var err error

	if m.classifications, err = meter.Int64Counter("hera_classifications_total",
		metric.WithDescription("Relevance classifications by method and outcome"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, instrumentErr("hera_classifications_total", err)
	}
	if m.outcomes, err = meter.Int64Counter("hera_posting_outcomes_total",
		metric.WithDescription("Processed finance events by result"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, instrumentErr("hera_posting_outcomes_total", err)
	}
	if m.escalationDuration, err = meter.Float64Histogram("hera_escalation_duration_seconds",
		metric.WithDescription("Latency of external journal proposals"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(escalationDurationBuckets...),
	); err != nil {
		return nil, instrumentErr("hera_escalation_duration_seconds", err)
	}
	if m.ingestDuration, err = meter.Float64Histogram("hera_ingest_duration_seconds",
		metric.WithDescription("End to end processing time of a finance event"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ingestDurationBuckets...),
	); err != nil {
		return nil, instrumentErr("hera_ingest_duration_seconds", err)
	}
	if m.journalsPosted, err = meter.Int64Counter("hera_journals_posted_total",
		metric.WithDescription("Journal entries committed to the ledger"),
		metric.WithUnit("{journal}"),
	); err != nil {
		return nil, instrumentErr("hera_journals_posted_total", err)
	}
	if m.journalLines, err = meter.Int64Histogram("hera_journal_lines",
		metric.WithDescription("Lines per posted journal entry"),
		metric.WithUnit("{line}"),
		metric.WithExplicitBucketBoundaries(2, 3, 4, 6, 8, 12, 20),
	); err != nil {
		return nil, instrumentErr("hera_journal_lines", err)
	}
	if m.batchesFlushed, err = meter.Int64Counter("hera_batches_flushed_total",
		metric.WithDescription("Batch groups flushed into a summary journal"),
		metric.WithUnit("{batch}"),
	); err != nil {
		return nil, instrumentErr("hera_batches_flushed_total", err)
	}
	if m.batchMembers, err = meter.Int64Histogram("hera_batch_members",
		metric.WithDescription("Source events per flushed batch group"),
		metric.WithUnit("{event}"),
		metric.WithExplicitBucketBoundaries(batchSizeBuckets...),
	); err != nil {
		return nil, instrumentErr("hera_batch_members", err)
	}
	return m, nil
}

func instrumentErr(name string, err error) error {
	return fmt.Errorf("failed to create instrument %s: %w", name, err)
}

// RecordClassification counts one relevance decision
func (m *PostingMetrics) RecordClassification(ctx context.Context, result posting.ClassificationResult) {
	m.classifications.Add(ctx, 1, metric.WithAttributes(
		AttrMethod.String(string(result.Method)),
		AttrRelevant.String(strconv.FormatBool(result.IsRelevant)),
		AttrReason.String(result.Reason),
	))
}

// RecordOutcome counts the final result of one event
func (m *PostingMetrics) RecordOutcome(ctx context.Context, result posting.ProcessingResult, method posting.Method) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		AttrResult.String(string(result)),
		AttrMethod.String(string(method)),
	))
}

// RecordEscalation records one external proposal call
func (m *PostingMetrics) RecordEscalation(ctx context.Context, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.escalationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrOutcome.String(outcome)))
}

// RecordIngestDuration records how long one event took end to end
func (m *PostingMetrics) RecordIngestDuration(ctx context.Context, duration time.Duration, result posting.ProcessingResult) {
	m.ingestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrResult.String(string(result))))
}

// EventTypes returns the posting events counted by Handle
func (m *PostingMetrics) EventTypes() []string {
	return []string{posting.EventTypeJournalPosted, posting.EventTypeBatchFlushed}
}

// Handle counts committed journals and flushed batch groups
func (m *PostingMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *posting.JournalPostedEvent:
		attrs := metric.WithAttributes(
			AttrTransactionType.String(string(e.TransactionType)),
			AttrMethod.String(string(e.Method)),
		)
		m.journalsPosted.Add(ctx, 1, attrs)
		m.journalLines.Record(ctx, int64(e.LineCount), attrs)
	case *posting.BatchFlushedEvent:
		attrs := metric.WithAttributes(AttrTransactionType.String(string(e.TransactionType)))
		m.batchesFlushed.Add(ctx, 1, attrs)
		m.batchMembers.Record(ctx, int64(e.MemberCount), attrs)
	}
	return nil
}

var (
	_ appposting.Metrics  = (*PostingMetrics)(nil)
	_ shared.EventHandler = (*PostingMetrics)(nil)
)
