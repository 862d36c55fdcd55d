package log

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TestSpanProcessor tests that finished spans are logged.
func TestSpanProcessor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tp := NewTracerProvider(NewSecureLogger(&buf, true))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "torcheck.CheckAPI")
	span.SetAttributes(
		attribute.String("torcheck.url", "socks5://user:pw@127.0.0.1:9050"),
		attribute.Bool("torcheck.using_tor", false),
	)
	span.RecordError(errors.New("you are not using Tor"))
	span.SetStatus(codes.Error, "you are not using Tor")
	span.End()

	output := buf.String()
	for _, want := range []string{"span finished", "torcheck.CheckAPI", "torcheck.using_tor=false", "you are not using Tor"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output: %s", want, output)
		}
	}
	if strings.Contains(output, "pw@") {
		t.Errorf("credentials leaked: %s", output)
	}
}

// TestSpanProcessor_Quiet tests that spans stay hidden without verbose.
func TestSpanProcessor_Quiet(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tp := NewTracerProvider(NewSecureLogger(&buf, false))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "torcheck.CheckPage")
	span.End()

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %s", buf.String())
	}
}
