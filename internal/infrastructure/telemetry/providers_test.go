package telemetry

import (
	"context"
	"testing"

	"github.com/hera/autojournal/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetup_Disabled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false}, "1.2.3", zap.New(core))
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Equal(t, 1, logs.FilterMessage("Telemetry disabled, using no-op providers").Len())

	_, ok := p.ZapCore(zapcore.InfoLevel).(*levelFilterCore)
	assert.False(t, ok, "log bridge stays off when telemetry is disabled")

	metrics, err := NewPostingMetrics(p.Meter(MeterName))
	require.NoError(t, err)
	metrics.RecordOutcome(context.Background(), "posted", "rule")

	_, span := p.Tracer("test").Start(context.Background(), "noop")
	span.End()

	p.EnableSpanProfiles()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 1, want: "ParentBased{root:AlwaysOnSampler"},
		{ratio: 2, want: "ParentBased{root:AlwaysOnSampler"},
		{ratio: 0, want: "AlwaysOffSampler"},
		{ratio: -1, want: "AlwaysOffSampler"},
		{ratio: 0.25, want: "ParentBased{root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		var s trace.Sampler = sampler(tt.ratio)
		assert.Contains(t, s.Description(), tt.want, "ratio %v", tt.ratio)
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource("hera-autojournal", "")
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "hera-autojournal", attrs["service.name"])
	assert.Equal(t, "dev", attrs["service.version"])
}

func TestLevelFilterCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}

	log := zap.New(core).With(zap.String("component", "ingest"))
	log.Info("dropped")
	log.Warn("kept")
	log.Error("kept too")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "ingest", logs.All()[0].ContextMap()["component"])
	assert.False(t, core.Enabled(zapcore.DebugLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))
}
