package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const ServiceName = "toolchat"

// InitLogger installs a JSON slog logger as the default. When file is set,
// output goes to a rotated log file instead of stderr.
func InitLogger(level, file string) (*slog.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // 10 MB
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		w = lj
		closer = lj
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
	slog.SetDefault(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitTelemetry installs global tracer and meter providers that export to
// rotated files under dir. The returned func flushes and shuts them down.
func InitTelemetry(ctx context.Context, dir string) (func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	traceFile := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "toolchat_traces.log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricsFile := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "toolchat_metrics.log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown meter provider", "error", err)
		}
		traceFile.Close()
		metricsFile.Close()
	}
	return cleanup, nil
}

// ChatMetrics groups the counters recorded by the chat endpoint.
type ChatMetrics struct {
	requests  metric.Int64Counter
	errors    metric.Int64Counter
	toolCalls metric.Int64Counter
}

// NewChatMetrics creates the chat counters on meter. Instrument creation
// errors leave the affected counter nil and it is skipped when recording.
func NewChatMetrics(meter metric.Meter) *ChatMetrics {
	m := &ChatMetrics{}
	m.requests, _ = meter.Int64Counter("chat.requests", metric.WithDescription("Chat requests received"))
	m.errors, _ = meter.Int64Counter("chat.errors", metric.WithDescription("Chat requests that failed, by error type"))
	m.toolCalls, _ = meter.Int64Counter("chat.tool_calls", metric.WithDescription("Tool invocations, by tool"))
	return m
}

// DefaultChatMetrics uses the global meter provider.
func DefaultChatMetrics() *ChatMetrics {
	return NewChatMetrics(otel.Meter(ServiceName))
}

func (m *ChatMetrics) RecordRequest(ctx context.Context) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.Add(ctx, 1)
}

func (m *ChatMetrics) RecordError(ctx context.Context, errType string) {
	if m == nil || m.errors == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", errType)))
}

func (m *ChatMetrics) RecordToolCall(ctx context.Context, tool string) {
	if m == nil || m.toolCalls == nil {
		return
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}
