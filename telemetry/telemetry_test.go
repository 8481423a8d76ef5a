package telemetry

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTELHook_Run(t *testing.T) {
	tests := []struct {
		name        string
		setupCtx    func() context.Context
		expectTrace bool
	}{
		{
			name:     "no context",
			setupCtx: func() context.Context { return nil },
		},
		{
			name:     "context without span",
			setupCtx: func() context.Context { return context.Background() },
		},
		{
			name:        "context with valid span",
			setupCtx:    createContextWithSpan,
			expectTrace: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			hook := OTELHook{}
			event := logger.Info().Ctx(tt.setupCtx())

			hook.Run(event, zerolog.InfoLevel, "test message")
			event.Msg("test")

			if tt.expectTrace {
				assert.Contains(t, buf.String(), "trace_id")
				assert.Contains(t, buf.String(), "span_id")
			} else {
				assert.NotContains(t, buf.String(), "trace_id")
			}
		})
	}
}

// createContextWithSpan creates a context with tracing span
func createContextWithSpan() context.Context {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	tracer := provider.Tracer("test")
	ctx, _ := tracer.Start(context.Background(), "test-span")
	return ctx
}

func TestOTELHook_ErrorLevel(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	tracer := provider.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	hook := OTELHook{}
	event := logger.Error().Ctx(ctx)

	hook.Run(event, zerolog.ErrorLevel, "error message")
	event.Msg("test error")

	// Verify span status was set to error
	span.End()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "error message", spans[0].Status.Description)
}

func TestNewLogger(t *testing.T) {
	// Redirect stdout to capture output
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	logger := NewLogger("test-service")

	logger.Info().Msg("test message")

	_ = w.Close()
	os.Stdout = oldStdout

	buf := make([]byte, 1024)
	n, _ := r.Read(buf)
	output := string(buf[:n])

	assert.NotNil(t, logger)
	assert.Contains(t, output, "test-service")
	assert.Contains(t, output, "test message")
}

func TestLogger_WithContext(t *testing.T) {
	logger := NewLogger("test-service")
	ctx := context.Background()

	contextLogger := logger.WithContext(ctx)
	assert.NotNil(t, contextLogger)
}

func TestLogger_LogSpanStart(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}
	ctx := context.Background()

	attrs := []attribute.KeyValue{
		attribute.String("connection_id", "conn-1"),
		attribute.Int("resources", 42),
	}

	logger.LogSpanStart(ctx, "sync-run", attrs...)

	output := buf.String()
	assert.Contains(t, output, "span started")
	assert.Contains(t, output, "sync-run")
	assert.Contains(t, output, "conn-1")
	assert.Contains(t, output, "42")
}

func TestLogger_LogSpanEnd(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		expectLevel string
		expectMsg   string
	}{
		{"successful span", nil, "debug", "span completed"},
		{"failed span", assert.AnError, "error", "span failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := &Logger{Logger: zerolog.New(&buf)}

			logger.LogSpanEnd(context.Background(), "sync-run", tt.err)

			output := buf.String()
			assert.Contains(t, output, "sync-run")
			assert.Contains(t, output, tt.expectMsg)
			assert.Contains(t, output, "level\":\""+tt.expectLevel)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	oldEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	defer func() {
		if oldEndpoint != "" {
			_ = os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", oldEndpoint)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	// InitOTEL should succeed even without OTLP endpoint (Prometheus exporter works)
	shutdown, err := InitOTEL(ctx, Config{})
	assert.NoError(t, err)
	assert.NotNil(t, shutdown)

	if shutdown != nil {
		_ = shutdown(ctx)
	}
}

func TestInitMetrics(t *testing.T) {
	provider := metric.NewMeterProvider()
	otel.SetMeterProvider(provider)
	Meter = provider.Meter("test")

	err := initMetrics()
	assert.NoError(t, err)

	assert.NotNil(t, SyncRuns)
	assert.NotNil(t, SyncErrors)
	assert.NotNil(t, SyncDuration)
	assert.NotNil(t, SamplesIngested)
	assert.NotNil(t, RegistryRevision)
	assert.NotNil(t, ResourcesTracked)
}

func TestRecordHelpers(t *testing.T) {
	provider := metric.NewMeterProvider()
	otel.SetMeterProvider(provider)
	Meter = provider.Meter("test")
	require.NoError(t, initMetrics())

	ctx := context.Background()

	// Recording must not panic with initialized instruments.
	RecordSyncRun(ctx, "conn-1", 2*time.Second, false)
	RecordSyncRun(ctx, "conn-1", time.Second, true)
	RecordSyncError(ctx, "conn-1", "transient")
	RecordSamplesIngested(ctx, "conn-1", 10)
	RecordRegistryState(ctx, 42, 1000)
}

func TestRecordHelpers_NoOpBeforeInit(t *testing.T) {
	SyncRuns = nil
	SyncErrors = nil
	SyncDuration = nil
	SamplesIngested = nil
	RegistryRevision = nil
	ResourcesTracked = nil

	ctx := context.Background()

	// Library code calls these unconditionally; they must be safe before
	// InitOTEL has run.
	RecordSyncRun(ctx, "conn-1", time.Second, false)
	RecordSyncError(ctx, "conn-1", "permanent")
	RecordSamplesIngested(ctx, "conn-1", 5)
	RecordRegistryState(ctx, 1, 1)
}
