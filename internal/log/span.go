package log

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanProcessor writes every finished span to a logger at debug level.
// It lets --verbose show the timing of each check without an exporter.
type SpanProcessor struct {
	logger *slog.Logger
}

var _ sdktrace.SpanProcessor = (*SpanProcessor)(nil)

// NewSpanProcessor returns a SpanProcessor logging to logger.
func NewSpanProcessor(logger *slog.Logger) *SpanProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpanProcessor{logger: logger}
}

// NewTracerProvider returns a tracer provider whose spans are logged.
func NewTracerProvider(logger *slog.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(NewSpanProcessor(logger)))
}

// OnStart implements sdktrace.SpanProcessor.
func (p *SpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd implements sdktrace.SpanProcessor.
func (p *SpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	attrs := []any{
		"span", s.Name(),
		"duration", s.EndTime().Sub(s.StartTime()),
	}
	for _, kv := range s.Attributes() {
		attrs = append(attrs, string(kv.Key), kv.Value.Emit())
	}
	if s.Status().Code == codes.Error {
		attrs = append(attrs, "error", s.Status().Description)
	}
	p.logger.Debug("span finished", attrs...)
}

// Shutdown implements sdktrace.SpanProcessor.
func (p *SpanProcessor) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdktrace.SpanProcessor.
func (p *SpanProcessor) ForceFlush(context.Context) error { return nil }
