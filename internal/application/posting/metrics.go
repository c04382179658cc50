package posting

import (
	"context"
	"time"

	"github.com/hera/autojournal/internal/domain/posting"
)

// Metrics receives pipeline measurements. The telemetry package provides
// the OpenTelemetry implementation.
type Metrics interface {
	RecordClassification(ctx context.Context, result posting.ClassificationResult)
	RecordOutcome(ctx context.Context, result posting.ProcessingResult, method posting.Method)
	RecordEscalation(ctx context.Context, duration time.Duration, err error)
	RecordIngestDuration(ctx context.Context, duration time.Duration, result posting.ProcessingResult)
}

type noopMetrics struct{}

func (noopMetrics) RecordClassification(context.Context, posting.ClassificationResult)            {}
func (noopMetrics) RecordOutcome(context.Context, posting.ProcessingResult, posting.Method)       {}
func (noopMetrics) RecordEscalation(context.Context, time.Duration, error)                        {}
func (noopMetrics) RecordIngestDuration(context.Context, time.Duration, posting.ProcessingResult) {}

// NoopMetrics returns a Metrics that discards everything
func NoopMetrics() Metrics {
	return noopMetrics{}
}
