package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestInitLogger_WritesToFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "logs", "toolchat.log")
	logger, closer, err := InitLogger("info", path)
	require.NoError(t, err)

	logger.Info("chat request classified", "type", "rate_limit")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"rate_limit"`)
}

func TestChatMetrics_Counts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewChatMetrics(mp.Meter("test"))
	ctx := context.Background()

	m.RecordRequest(ctx)
	m.RecordRequest(ctx)
	m.RecordError(ctx, "quota_exceeded")
	m.RecordToolCall(ctx, "calculator")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	attrs := map[string]attribute.Set{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
				attrs[md.Name] = dp.Attributes
			}
		}
	}

	assert.Equal(t, int64(2), totals["chat.requests"])
	assert.Equal(t, int64(1), totals["chat.errors"])
	assert.Equal(t, int64(1), totals["chat.tool_calls"])

	errAttrs := attrs["chat.errors"]
	v, ok := errAttrs.Value("type")
	require.True(t, ok)
	assert.Equal(t, "quota_exceeded", v.AsString())
}

func TestChatMetrics_NilSafe(t *testing.T) {
	var m *ChatMetrics
	m.RecordRequest(context.Background())
	m.RecordError(context.Background(), "generic_error")
}
