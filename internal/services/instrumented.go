package services

import (
	"context"
	"iter"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"toolchat-backend/internal/models"
	"toolchat-backend/internal/stream"
)

// Instrument wraps p so every streamed turn is recorded as a span.
func Instrument(p Provider, tracer trace.Tracer) Provider {
	return ProviderFunc(func(ctx context.Context, messages []models.Message) iter.Seq2[stream.Chunk, error] {
		return func(yield func(stream.Chunk, error) bool) {
			ctx, span := tracer.Start(ctx, "chat.stream",
				trace.WithAttributes(attribute.Int("chat.messages", len(messages))))
			defer span.End()

			chunks := 0
			for c, err := range p.Stream(ctx, messages) {
				if err != nil {
					span.RecordError(err)
					span.SetStatus(otelcodes.Error, err.Error())
					yield(c, err)
					return
				}
				chunks++
				switch c.Kind {
				case stream.KindToolCall:
					span.AddEvent("tool_call", trace.WithAttributes(attribute.String("tool", c.ToolName)))
				case stream.KindFinish:
					span.SetAttributes(attribute.String("chat.finish_reason", c.FinishReason))
				}
				if !yield(c, nil) {
					span.SetAttributes(attribute.Bool("chat.cancelled", true))
					return
				}
			}
			span.SetAttributes(attribute.Int("chat.chunks", chunks))
		}
	})
}
