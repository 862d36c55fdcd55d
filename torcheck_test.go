package torcheck

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestParseMethod tests conversion from strings to Method.
func TestParseMethod(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input   string
		want    Method
		wantErr bool
	}{
		{"page", MethodPage, false},
		{"PAGE", MethodPage, false},
		{" html ", MethodPage, false},
		{"api", MethodAPI, false},
		{"json", MethodAPI, false},
		{"", 0, true},
		{"dns", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseMethod(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownMethod) {
					t.Errorf("expected ErrUnknownMethod, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ParseMethod(%q) = %v, expected %v", tc.input, got, tc.want)
			}
		})
	}
}

// TestMethodString tests Method.String.
func TestMethodString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		method Method
		want   string
	}{
		{MethodPage, "page"},
		{MethodAPI, "api"},
		{Method(7), "unknown"},
	}

	for _, tc := range testCases {
		if got := tc.method.String(); got != tc.want {
			t.Errorf("Method(%d).String() = %q, expected %q", tc.method, got, tc.want)
		}
	}
}

// TestVerify tests method dispatch.
func TestVerify(t *testing.T) {
	t.Parallel()

	t.Run("page method hits the page URL", func(t *testing.T) {
		t.Parallel()

		page := servePage(t, http.StatusOK, SuccessMarker+"\n")
		api := servePage(t, http.StatusOK, `{"IsTor":false}`)

		_, err := Verify(context.Background(), page.Client(), MethodPage,
			WithPageURL(page.URL), WithAPIURL(api.URL))
		if err != nil {
			t.Errorf("expected success from page endpoint, got %v", err)
		}
	})

	t.Run("api method hits the API URL", func(t *testing.T) {
		t.Parallel()

		page := servePage(t, http.StatusOK, SuccessMarker+"\n")
		api := servePage(t, http.StatusOK, `{"IsTor":false}`)

		_, err := Verify(context.Background(), api.Client(), MethodAPI,
			WithPageURL(page.URL), WithAPIURL(api.URL))
		if !errors.Is(err, ErrNotUsingTor) {
			t.Errorf("expected ErrNotUsingTor from api endpoint, got %v", err)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		t.Parallel()

		_, err := Verify(context.Background(), http.DefaultClient, Method(9))
		if !errors.Is(err, ErrUnknownMethod) {
			t.Errorf("expected ErrUnknownMethod, got %v", err)
		}
	})
}

// TestIndependentChecks tests that two checks with separate clients do not
// influence each other.
func TestIndependentChecks(t *testing.T) {
	t.Parallel()

	tor := servePage(t, http.StatusOK, `{"IsTor":true,"IP":"192.0.2.1"}`)
	clearnet := servePage(t, http.StatusOK, `{"IsTor":false,"IP":"198.51.100.7"}`)

	for range 2 {
		torClient, torErr := CheckAPI(context.Background(), tor.Client(), WithAPIURL(tor.URL))
		_, clearErr := CheckAPI(context.Background(), clearnet.Client(), WithAPIURL(clearnet.URL))

		if torErr != nil || torClient == nil {
			t.Errorf("expected success for the Tor client, got %v", torErr)
		}
		if !errors.Is(clearErr, ErrNotUsingTor) {
			t.Errorf("expected ErrNotUsingTor for the clearnet client, got %v", clearErr)
		}
	}
}

// TestGo tests the deferred form.
func TestGo(t *testing.T) {
	t.Parallel()

	t.Run("Wait returns the outcome repeatedly", func(t *testing.T) {
		t.Parallel()

		srv := servePage(t, http.StatusOK, SuccessMarker)
		client := srv.Client()

		f := Go(context.Background(), client, MethodPage, WithPageURL(srv.URL))

		for range 2 {
			got, err := f.Wait()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != client {
				t.Error("expected the original client to be returned")
			}
		}

		select {
		case <-f.Done():
		default:
			t.Error("expected Done to be closed after Wait")
		}
	})

	t.Run("does not block the caller", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		client := DoerFunc(func(req *http.Request) (*http.Response, error) {
			<-release
			return nil, errors.New("released")
		})

		f := Go(context.Background(), client, MethodAPI)

		select {
		case <-f.Done():
			t.Fatal("check finished before the client answered")
		case <-time.After(20 * time.Millisecond):
		}

		close(release)
		_, err := f.Wait()
		var ce *ClientError
		if !errors.As(err, &ce) {
			t.Errorf("expected *ClientError, got %v", err)
		}
	})

	t.Run("context cancellation reaches the client", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		client := DoerFunc(func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

		f := Go(ctx, client, MethodPage)
		cancel()

		_, err := f.Wait()
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestCheckSpans tests the spans recorded for each check.
func TestCheckSpans(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		method     Method
		body       string
		wantName   string
		wantStatus codes.Code
	}{
		{"page success", MethodPage, SuccessMarker, "torcheck.CheckPage", codes.Unset},
		{"page failure", MethodPage, "<html></html>", "torcheck.CheckPage", codes.Error},
		{"api success", MethodAPI, `{"IsTor":true}`, "torcheck.CheckAPI", codes.Unset},
		{"api failure", MethodAPI, `{"IsTor":false}`, "torcheck.CheckAPI", codes.Error},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			recorder := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

			srv := servePage(t, http.StatusOK, tc.body)
			_, _ = Verify(context.Background(), srv.Client(), tc.method,
				WithPageURL(srv.URL), WithAPIURL(srv.URL), WithTracerProvider(tp))

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name() != tc.wantName {
				t.Errorf("span name = %q, expected %q", span.Name(), tc.wantName)
			}
			if span.Status().Code != tc.wantStatus {
				t.Errorf("span status = %v, expected %v", span.Status().Code, tc.wantStatus)
			}

			var usingTor, sawURL bool
			for _, attr := range span.Attributes() {
				switch attr.Key {
				case "torcheck.using_tor":
					usingTor = attr.Value.AsBool()
				case "torcheck.url":
					sawURL = strings.HasPrefix(attr.Value.AsString(), "http://127.0.0.1")
				}
			}
			if usingTor != (tc.wantStatus == codes.Unset) {
				t.Errorf("torcheck.using_tor = %v, unexpected for %s", usingTor, tc.name)
			}
			if !sawURL {
				t.Error("expected torcheck.url attribute with the test server URL")
			}
		})
	}
}

// TestErrorMessages tests the error strings of the exported error types.
func TestErrorMessages(t *testing.T) {
	t.Parallel()

	ce := &ClientError{Op: OpDecode, URL: APIURL, Err: errors.New("unexpected EOF")}
	if got := ce.Error(); !strings.Contains(got, "decode") || !strings.Contains(got, "unexpected EOF") {
		t.Errorf("unexpected ClientError message: %q", got)
	}

	pe := &ParsingError{Err: errors.New("connection reset")}
	if got := pe.Error(); !strings.Contains(got, "connection reset") {
		t.Errorf("unexpected ParsingError message: %q", got)
	}

	if IsDecodeError(nil) {
		t.Error("IsDecodeError(nil) must be false")
	}
	if IsDecodeError(pe) {
		t.Error("IsDecodeError(ParsingError) must be false")
	}
}
