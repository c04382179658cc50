package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSlowQueryThreshold = 200 * time.Millisecond

// DBTracingOptions configures InstrumentDB
type DBTracingOptions struct {
	// DBName is reported as db.name on every span
	DBName string
	// SlowQueryThreshold marks spans slower than this with db.slow_query
	SlowQueryThreshold time.Duration
	// TracerProvider overrides the global provider, mainly for tests
	TracerProvider trace.TracerProvider
}

type queryStartKey struct{}

// InstrumentDB registers the otelgorm plugin on db plus callbacks that tag
// spans with the table, affected rows and a slow query marker. Query
// variables are never recorded since they carry transaction amounts.
func InstrumentDB(db *gorm.DB, opts DBTracingOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SlowQueryThreshold <= 0 {
		opts.SlowQueryThreshold = defaultSlowQueryThreshold
	}

	pluginOpts := []otelgorm.Option{otelgorm.WithoutQueryVariables()}
	if opts.DBName != "" {
		pluginOpts = append(pluginOpts, otelgorm.WithDBName(opts.DBName))
	}
	if opts.TracerProvider != nil {
		pluginOpts = append(pluginOpts, otelgorm.WithTracerProvider(opts.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(pluginOpts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	// annotations run before otelgorm ends the span
	after := func(tx *gorm.DB) { annotateSpan(tx, opts.SlowQueryThreshold) }

	cb := db.Callback()
	registrations := []struct {
		name     string
		register func(string, func(*gorm.DB)) error
	}{
		{"before_create", cb.Create().Before("gorm:create").Register},
		{"before_query", cb.Query().Before("gorm:query").Register},
		{"before_update", cb.Update().Before("gorm:update").Register},
		{"before_delete", cb.Delete().Before("gorm:delete").Register},
		{"before_row", cb.Row().Before("gorm:row").Register},
		{"before_raw", cb.Raw().Before("gorm:raw").Register},
	}
	for _, r := range registrations {
		if err := r.register("hera_timing:"+r.name, before); err != nil {
			return err
		}
	}
	registrations = []struct {
		name     string
		register func(string, func(*gorm.DB)) error
	}{
		{"after_create", cb.Create().After("gorm:create").Before("otel:after:create").Register},
		{"after_query", cb.Query().After("gorm:query").Before("otel:after:select").Register},
		{"after_update", cb.Update().After("gorm:update").Before("otel:after:update").Register},
		{"after_delete", cb.Delete().After("gorm:delete").Before("otel:after:delete").Register},
		{"after_row", cb.Row().After("gorm:row").Before("otel:after:row").Register},
		{"after_raw", cb.Raw().After("gorm:raw").Before("otel:after:raw").Register},
	}
	for _, r := range registrations {
		if err := r.register("hera_timing:"+r.name, after); err != nil {
			return err
		}
	}

	logger.Info("Database tracing enabled",
		zap.String("db_name", opts.DBName),
		zap.Duration("slow_query_threshold", opts.SlowQueryThreshold),
	)
	return nil
}

func annotateSpan(tx *gorm.DB, threshold time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if tx.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
	}
	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, tx.Error.Error())
		span.RecordError(tx.Error)
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > threshold {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
			span.AddEvent("slow_query_warning", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", threshold.Milliseconds()),
			))
		}
	}
}
