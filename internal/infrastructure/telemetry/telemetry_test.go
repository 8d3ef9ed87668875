package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/meatco/stockledger/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// setupTestTracer installs an in-memory span recorder as the global provider.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStartServiceSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "allocation", "allocate_outbound",
		telemetry.WithAttribute(telemetry.SpanAttrProductID, "pork-belly"),
		telemetry.WithAttribute("lots", 3),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "allocation.allocate_outbound", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())

	v, ok := attrValue(spans[0].Attributes(), "product_id")
	require.True(t, ok)
	assert.Equal(t, "pork-belly", v.AsString())
	v, ok = attrValue(spans[0].Attributes(), "lots")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.AsInt64())
}

func TestSpanHelpers(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := telemetry.StartSpan(context.Background(), "sweep", telemetry.WithSpanKind(trace.SpanKindServer))
	telemetry.SetAttributes(span, "expired", 2, 42, "ignored", "replayed", true)
	telemetry.SetAttribute(span, "shortage", "1.5")
	telemetry.AddEvent(span, "lot_expired", "lot_number", "LOT-1")
	assert.NotEmpty(t, telemetry.GetTraceID(ctx))
	assert.NotEmpty(t, telemetry.GetSpanID(ctx))
	telemetry.RecordError(span, errors.New("boom"))
	span.End()

	got := sr.Ended()[0]
	assert.Equal(t, trace.SpanKindServer, got.SpanKind())
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Len(t, got.Attributes(), 3, "non-string keys are skipped")
	require.Len(t, got.Events(), 2, "lot_expired plus the recorded exception")
	assert.Equal(t, "lot_expired", got.Events()[0].Name)
}

func TestSpanHelpers_NilSafe(t *testing.T) {
	telemetry.SetAttributes(nil, "k", "v")
	telemetry.SetAttribute(nil, "k", "v")
	telemetry.RecordError(nil, errors.New("boom"))
	telemetry.SetOK(nil)
	telemetry.AddEvent(nil, "e")
	assert.Empty(t, telemetry.GetTraceID(context.Background()))
	assert.Empty(t, telemetry.GetSpanID(context.Background()))
}

func TestSetOK(t *testing.T) {
	sr := setupTestTracer(t)
	_, span := telemetry.StartSpan(context.Background(), "ok")
	telemetry.SetOK(span)
	span.End()
	assert.Equal(t, codes.Ok, sr.Ended()[0].Status().Code)
}

func TestProviders_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{ServiceName: "stockledger"}, logger)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	require.NoError(t, tp.EnableSpanProfiles())
	assert.False(t, tp.IsSpanProfilesEnabled())
	assert.NotNil(t, tp.Tracer("x"))
	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{ServiceName: "stockledger"}, logger)
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{ServiceName: "stockledger"}, logger)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.Shutdown(ctx))

	p, err := telemetry.NewProfiler(telemetry.ProfilerConfig{}, logger)
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestBridge_DisabledExportKeepsBaseOutput(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	bridged := telemetry.Bridge(base, nil, "stockledger", zapcore.InfoLevel)
	bridged.Info("lot expired", zap.String("lot_number", "LOT-1"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "lot expired", logs.All()[0].Message)
}

func TestNewProfiler_Validation(t *testing.T) {
	logger := zap.NewNop()

	_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ApplicationName: "stockledger"}, logger)
	assert.ErrorContains(t, err, "server address")

	_, err = telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, logger)
	assert.ErrorContains(t, err, "application name")

	_, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         true,
		ServerAddress:   "http://localhost:4040",
		ApplicationName: "stockledger",
		ProfileTypes:    []string{"cpu", "heap"},
	}, logger)
	assert.ErrorContains(t, err, `unknown profile type "heap"`)
}

func TestParseProfileTypes(t *testing.T) {
	types, err := telemetry.ParseProfileTypes([]string{"cpu", " INUSE_SPACE ", "mutex_count"})
	require.NoError(t, err)
	assert.Len(t, types, 3)
}

func TestWithProfilingLabels(t *testing.T) {
	var called bool
	telemetry.WithProfilingLabels(context.Background(), map[string]string{
		"Route":        "/api/v1/allocations",
		"reference_id": "S-1",
	}, func(ctx context.Context) {
		called = true
		assert.NotNil(t, ctx)
	})
	assert.True(t, called)

	called = false
	telemetry.WithProfilingLabels(context.Background(), nil, func(context.Context) { called = true })
	assert.True(t, called)
}

func TestLabelBuilders(t *testing.T) {
	labels := telemetry.HTTPRequestLabels("allocations", "/api/v1/allocations", "POST")
	assert.Equal(t, map[string]string{
		telemetry.ProfilingLabelController: "allocations",
		telemetry.ProfilingLabelRoute:      "/api/v1/allocations",
		telemetry.ProfilingLabelMethod:     "POST",
	}, labels)

	assert.Empty(t, telemetry.HTTPRequestLabels("", "", ""))

	op := telemetry.OperationLabels("expiry_sweep", map[string]string{"operation": "overridden", "trigger": "cron"})
	assert.Equal(t, "expiry_sweep", op[telemetry.ProfilingLabelOperation])
	assert.Equal(t, "cron", op["trigger"])
}
