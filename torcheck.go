package torcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Check service endpoints.
const (
	// PageURL is the human-facing check page with the TorButton marker.
	PageURL = "https://check.torproject.org/?TorButton=True"

	// APIURL is the machine-readable check endpoint.
	APIURL = "https://check.torproject.org/api/ip"
)

// tracerName identifies spans emitted by this package.
const tracerName = "github.com/nao1215/torcheck"

// Doer is the client capability a check needs. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts an ordinary function to the Doer interface.
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req).
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Method selects how the check service is queried.
type Method int

const (
	// MethodPage scans the HTML check page for the success marker.
	MethodPage Method = iota

	// MethodAPI reads the IsTor flag from the JSON endpoint.
	MethodAPI
)

// String returns "page" or "api".
func (m Method) String() string {
	switch m {
	case MethodPage:
		return "page"
	case MethodAPI:
		return "api"
	default:
		return "unknown"
	}
}

// ParseMethod converts "page" or "api" (case-insensitive) to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "page", "html":
		return MethodPage, nil
	case "api", "json":
		return MethodAPI, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Verify runs the check selected by m. It is a convenience for callers
// that pick the method at run time.
func Verify[C Doer](ctx context.Context, client C, m Method, opts ...Option) (C, error) {
	switch m {
	case MethodPage:
		return CheckPage(ctx, client, opts...)
	case MethodAPI:
		return CheckAPI(ctx, client, opts...)
	default:
		var zero C
		return zero, fmt.Errorf("%w: %d", ErrUnknownMethod, int(m))
	}
}

// Option configures a single check.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	pageURL        string
	apiURL         string
	userAgent      string
	tracerProvider trace.TracerProvider
}

// WithLogger sets the logger that receives debug output, including every
// line scanned by CheckPage. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPageURL overrides PageURL.
func WithPageURL(url string) Option {
	return func(o *options) {
		if url != "" {
			o.pageURL = url
		}
	}
}

// WithAPIURL overrides APIURL.
func WithAPIURL(url string) Option {
	return func(o *options) {
		if url != "" {
			o.apiURL = url
		}
	}
}

// WithUserAgent sets the User-Agent header of the check request.
// When unset, the client's default is used.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for check spans.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:  slog.New(slog.DiscardHandler),
		pageURL: PageURL,
		apiURL:  APIURL,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o
}

// startSpan opens the span that covers one check.
func (o *options) startSpan(ctx context.Context, m Method, url string) (context.Context, trace.Span) {
	name := "torcheck.CheckPage"
	if m == MethodAPI {
		name = "torcheck.CheckAPI"
	}
	return o.tracerProvider.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("torcheck.method", m.String()),
			attribute.String("torcheck.url", url),
		),
	)
}

func endSpan(span trace.Span, err error) {
	span.SetAttributes(attribute.Bool("torcheck.using_tor", err == nil))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// get sends the check request. Any failure, including a non-2xx answer,
// is returned as a *ClientError. The caller owns the response body.
func get(ctx context.Context, client Doer, url, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ClientError{Op: OpRequest, URL: url, Err: err}
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ClientError{Op: OpRequest, URL: url, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_ = resp.Body.Close()
		return nil, &ClientError{
			Op:         OpRequest,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status),
		}
	}
	return resp, nil
}
