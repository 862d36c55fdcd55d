package torcheck

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"testing/iotest"
)

// servePage starts a test server that answers every request with body.
func servePage(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readFixture(t *testing.T, name string) string {
	t.Helper()

	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

// TestScanPage tests the line scan of the check page.
func TestScanPage(t *testing.T) {
	t.Parallel()

	t.Run("success fixture matches", func(t *testing.T) {
		t.Parallel()

		f, err := os.Open("testdata/success.html")
		if err != nil {
			t.Fatalf("failed to open fixture: %v", err)
		}
		defer f.Close()

		if err := ScanPage(f, nil); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})

	t.Run("failure fixture reports not using Tor", func(t *testing.T) {
		t.Parallel()

		f, err := os.Open("testdata/failure.html")
		if err != nil {
			t.Fatalf("failed to open fixture: %v", err)
		}
		defer f.Close()

		if err := ScanPage(f, nil); !errors.Is(err, ErrNotUsingTor) {
			t.Errorf("expected ErrNotUsingTor, got %v", err)
		}
	})

	testCases := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"marker on first line", SuccessMarker + "\n<html>\n</html>\n", nil},
		{"marker on last line without newline", "<html>\n</html>\n" + SuccessMarker, nil},
		{"marker with surrounding spaces", "<html>\n   " + SuccessMarker + "  \n</html>\n", nil},
		{"marker with tabs and CRLF", "<html>\r\n\t" + SuccessMarker + "\t\r\n</html>\r\n", nil},
		{"empty body", "", ErrNotUsingTor},
		{"failure marker", `<a id="TorCheckResult" target="failure" href="/"></a>` + "\n", ErrNotUsingTor},
		{"marker embedded in longer line", "<div>" + SuccessMarker + "</div>\n", ErrNotUsingTor},
		{"marker split over two lines", `<a id="TorCheckResult" target="success" href="/">` + "\n</a>\n", ErrNotUsingTor},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := ScanPage(strings.NewReader(tc.body), nil)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ScanPage() error = %v, expected %v", err, tc.wantErr)
			}
		})
	}

	t.Run("read error is a ParsingError", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("connection reset")
		r := io.MultiReader(strings.NewReader("<html>\n<body>\n"), iotest.ErrReader(boom))

		err := ScanPage(r, nil)
		var pe *ParsingError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *ParsingError, got %T (%v)", err, err)
		}
		if !errors.Is(err, boom) {
			t.Errorf("expected error to wrap %v, got %v", boom, err)
		}
	})

	t.Run("long lines are read in full", func(t *testing.T) {
		t.Parallel()

		body := strings.Repeat("x", 2<<20) + "\n" + SuccessMarker + "\n"
		if err := ScanPage(strings.NewReader(body), nil); err != nil {
			t.Errorf("expected success after a 2 MiB line, got %v", err)
		}
	})

	invalidUTF8 := []struct {
		name string
		body string
	}{
		{"before the marker", "\xff\xfe\n" + SuccessMarker + "\n"},
		{"on the last line", "<html>\n\xc3\x28"},
	}
	for _, tc := range invalidUTF8 {
		t.Run("invalid UTF-8 "+tc.name+" is a ParsingError", func(t *testing.T) {
			t.Parallel()

			err := ScanPage(strings.NewReader(tc.body), nil)
			var pe *ParsingError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParsingError, got %T (%v)", err, err)
			}
			if !errors.Is(err, errInvalidUTF8) {
				t.Errorf("expected error to wrap errInvalidUTF8, got %v", err)
			}
		})
	}

	t.Run("stops reading after the marker", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("must not be read")
		r := io.MultiReader(strings.NewReader(SuccessMarker+"\n"), iotest.ErrReader(boom))

		if err := ScanPage(r, nil); err != nil {
			t.Errorf("expected success before the failing reader, got %v", err)
		}
	})

	t.Run("logs scanned lines at debug level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		_ = ScanPage(strings.NewReader("first-line\nsecond-line\n"), logger)

		out := buf.String()
		for _, want := range []string{"first-line", "second-line"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in log output, got %s", want, out)
			}
		}
	})
}

// TestCheckPage tests the page check against a local server.
func TestCheckPage(t *testing.T) {
	t.Parallel()

	t.Run("returns the same client on success", func(t *testing.T) {
		t.Parallel()

		srv := servePage(t, http.StatusOK, readFixture(t, "success.html"))
		client := srv.Client()

		got, err := CheckPage(context.Background(), client, WithPageURL(srv.URL))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != client {
			t.Error("expected the original client to be returned")
		}
	})

	t.Run("failure page yields ErrNotUsingTor and no client", func(t *testing.T) {
		t.Parallel()

		srv := servePage(t, http.StatusOK, readFixture(t, "failure.html"))

		got, err := CheckPage(context.Background(), srv.Client(), WithPageURL(srv.URL))
		if !errors.Is(err, ErrNotUsingTor) {
			t.Fatalf("expected ErrNotUsingTor, got %v", err)
		}
		if got != nil {
			t.Error("expected nil client on failure")
		}
	})

	t.Run("non-2xx status is a ClientError", func(t *testing.T) {
		t.Parallel()

		srv := servePage(t, http.StatusServiceUnavailable, SuccessMarker)

		_, err := CheckPage(context.Background(), srv.Client(), WithPageURL(srv.URL))
		var ce *ClientError
		if !errors.As(err, &ce) {
			t.Fatalf("expected *ClientError, got %T (%v)", err, err)
		}
		if ce.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("StatusCode = %d, expected %d", ce.StatusCode, http.StatusServiceUnavailable)
		}
		if !errors.Is(err, ErrUnexpectedStatus) {
			t.Errorf("expected error to wrap ErrUnexpectedStatus, got %v", err)
		}
		if ce.IsDecode() {
			t.Error("expected IsDecode() to be false")
		}
	})

	t.Run("transport failure is a ClientError", func(t *testing.T) {
		t.Parallel()

		dialErr := errors.New("dial tcp: connection refused")
		client := DoerFunc(func(*http.Request) (*http.Response, error) {
			return nil, dialErr
		})

		_, err := CheckPage(context.Background(), client)
		var ce *ClientError
		if !errors.As(err, &ce) {
			t.Fatalf("expected *ClientError, got %T (%v)", err, err)
		}
		if !errors.Is(err, dialErr) {
			t.Errorf("expected error to wrap %v", dialErr)
		}
		if ce.URL != PageURL {
			t.Errorf("URL = %q, expected %q", ce.URL, PageURL)
		}
	})

	t.Run("sends GET with the configured User-Agent", func(t *testing.T) {
		t.Parallel()

		var gotMethod, gotUA string
		client := DoerFunc(func(req *http.Request) (*http.Response, error) {
			gotMethod = req.Method
			gotUA = req.Header.Get("User-Agent")
			return &http.Response{
				StatusCode: http.StatusOK,
				Status:     "200 OK",
				Body:       io.NopCloser(strings.NewReader(SuccessMarker)),
			}, nil
		})

		if _, err := CheckPage(context.Background(), client, WithUserAgent("torcheck-test/1.0")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotMethod != http.MethodGet {
			t.Errorf("method = %q, expected GET", gotMethod)
		}
		if gotUA != "torcheck-test/1.0" {
			t.Errorf("User-Agent = %q, expected %q", gotUA, "torcheck-test/1.0")
		}
	})

	t.Run("closes the response body", func(t *testing.T) {
		t.Parallel()

		body := &closeRecorder{Reader: strings.NewReader("<html></html>\n")}
		client := DoerFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusOK, Status: "200 OK", Body: body}, nil
		})

		_, _ = CheckPage(context.Background(), client)
		if !body.closed {
			t.Error("expected response body to be closed")
		}
	})
}

// closeRecorder is an io.ReadCloser that remembers whether it was closed.
type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}
