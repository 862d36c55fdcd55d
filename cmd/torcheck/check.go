package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/nao1215/torcheck"
	"github.com/nao1215/torcheck/internal/config"
	"github.com/nao1215/torcheck/internal/database"
	"github.com/nao1215/torcheck/internal/log"
	"github.com/nao1215/torcheck/internal/model"
	"github.com/nao1215/torcheck/internal/report"
	"github.com/nao1215/torcheck/internal/tor"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// maxRecordedBody bounds how much of a JSON answer is buffered to read the
// exit IP. Larger answers pass through without recording.
const maxRecordedBody = 1 << 20

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether traffic goes through Tor",
		Long: `Check sends a request through Tor to check.torproject.org and reports
whether it arrived from a Tor exit relay.

Two methods are available:
  page  scan the HTML check page for the success marker
  api   read the IsTor flag from the JSON endpoint

With --method both (the default) they run concurrently, each with its own
HTTP client. Connection failures are retried; a negative verdict is not.

Exit status is 0 when Tor is confirmed, 2 when the check service reports
that Tor is not in use, and 1 on any other failure.

Examples:
  # Start an embedded Tor daemon and run both checks
  torcheck check

  # Check an existing Tor proxy with the JSON endpoint only
  torcheck check --external-tor 127.0.0.1:9050 --method api

  # Write a Markdown report
  torcheck check --markdown -o report.md`,
		Args: cobra.NoArgs,
		RunE: runCheckCmd,
	}

	cmd.Flags().StringP(config.KeyExternalTor, "e", "",
		"Use external Tor proxy at specified address (e.g., 127.0.0.1:9050)")
	cmd.Flags().DurationP(config.KeyTorTimeout, "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().DurationP(config.KeyTimeout, "t", config.DefaultTimeout,
		"Timeout for each request to the check service")
	cmd.Flags().StringP(config.KeyMethod, "m", config.DefaultMethod,
		"Check method: page, api or both")
	cmd.Flags().IntP(config.KeyRetries, "r", config.DefaultRetries,
		"Extra attempts after a connection failure")
	cmd.Flags().String(config.KeyUserAgent, config.DefaultUserAgent,
		"User-Agent header sent to the check service")
	cmd.Flags().String(config.KeyPageURL, torcheck.PageURL,
		"URL of the HTML check page")
	cmd.Flags().String(config.KeyAPIURL, torcheck.APIURL,
		"URL of the JSON check endpoint")
	cmd.Flags().StringP(config.KeyConfig, "c", "",
		"Configuration file path (default: .torcheck in current or home directory)")
	cmd.Flags().BoolP(config.KeyJSON, "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().Bool(config.KeyMarkdown, false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP(config.KeyOutput, "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().String(config.KeyDBDir, config.XDGDataDir(),
		"Directory of the check history database")
	cmd.Flags().Bool(config.KeyNoSave, false,
		"Do not store results in the history database")

	return cmd
}

func runCheckCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewLoader().Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	tp := log.NewTracerProvider(logger)
	defer func() { _ = tp.Shutdown(context.Background()) }() //nolint:errcheck // nothing buffered

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCheck(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger, tp)
}

// runCheck connects to Tor, runs the configured checks and reports them.
func runCheck(ctx context.Context, cfg *config.Config, out, errOut io.Writer, logger *slog.Logger, tp trace.TracerProvider) error {
	methods, err := cfg.Methods()
	if err != nil {
		return err
	}

	client, proxy, cleanup, err := connectTor(ctx, cfg, errOut, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	c := &checker{
		newClient: func() torcheck.Doer {
			return client.HTTPClientWithHeaders(cfg.UserAgent, cfg.Headers)
		},
		proxy:   proxy,
		pageURL: cfg.PageURL,
		apiURL:  cfg.APIURL,
		retries: cfg.Retries,
		opts: append(cfg.Options(),
			torcheck.WithLogger(logger),
			torcheck.WithTracerProvider(tp),
		),
		logger: logger,
	}
	results, err := c.run(ctx, methods)
	if err != nil {
		return err
	}

	if err := writeReport(cfg, out, results); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := saveResults(ctx, cfg, results); err != nil {
		logger.Error("failed to save check history", "dir", cfg.DBDir, "error", err)
	}

	return verdictError(results)
}

// connectTor returns a client for the external proxy or for a freshly
// started embedded daemon, plus a label for reports and a cleanup func.
func connectTor(ctx context.Context, cfg *config.Config, errOut io.Writer, logger *slog.Logger) (*tor.Client, string, func(), error) {
	if cfg.UseExternalTor {
		client, err := tor.NewClient(cfg.TorProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, "", nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, "", nil, fmt.Errorf("tor proxy check failed: %w (make sure Tor is running at %s)",
				status.Error(), cfg.TorProxyAddress)
		}
		logger.Info("Tor proxy connection verified", "address", cfg.TorProxyAddress)
		return client, cfg.TorProxyAddress, func() {}, nil
	}

	fmt.Fprintln(errOut, "Starting embedded Tor daemon...")
	fmt.Fprintf(errOut, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return nil, "", nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	cleanup := func() {
		logger.Info("stopping embedded Tor daemon")
		if err := embedded.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}
	logger.Info("embedded Tor daemon started",
		"socksAddr", embedded.SocksAddr(),
		"controlAddr", embedded.ControlAddr(),
	)

	client, err := embedded.NewClient(cfg.Timeout)
	if err != nil {
		cleanup()
		return nil, "", nil, fmt.Errorf("failed to create Tor client: %w", err)
	}
	if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
		cleanup()
		return nil, "", nil, fmt.Errorf("embedded Tor proxy check failed: %w", status.Error())
	}
	return client, "embedded (" + embedded.SocksAddr() + ")", cleanup, nil
}

// checker runs independent verifications, one client per method.
type checker struct {
	newClient func() torcheck.Doer
	proxy     string
	pageURL   string
	apiURL    string
	retries   int
	opts      []torcheck.Option
	logger    *slog.Logger

	// newBackOff returns the retry schedule. Nil means exponential backoff
	// with the library defaults.
	newBackOff func() backoff.BackOff
}

// run verifies every method concurrently. Results keep the order of
// methods. Check failures are recorded in the results; the returned error
// is only set when ctx was cancelled.
func (c *checker) run(ctx context.Context, methods []torcheck.Method) ([]*model.CheckResult, error) {
	results := make([]*model.CheckResult, len(methods))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(methods))
	for i, m := range methods {
		g.Go(func() error {
			results[i] = c.verify(gctx, m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// verify runs one method, retrying transport failures.
func (c *checker) verify(ctx context.Context, m torcheck.Method) *model.CheckResult {
	result := model.NewCheckResult(m.String(), c.endpoint(m), c.proxy)
	logger := c.logger.With("method", m.String())

	var client torcheck.Doer = c.newClient()
	var recorder *statusRecorder
	if m == torcheck.MethodAPI {
		recorder = &statusRecorder{next: client}
		client = recorder
	}

	attempts := 0
	operation := func() error {
		attempts++
		_, err := torcheck.Verify(ctx, client, m, c.opts...)
		if err != nil && !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("check failed, retrying", "attempt", attempts, "next", next, "error", err)
	}

	err := backoff.RetryNotify(operation, c.backOff(ctx), notify)
	result.Complete(err, attempts)
	if recorder != nil {
		result.IP = recorder.IP()
	}

	logger.Info("check finished", "outcome", result.Outcome, "attempts", attempts, "duration", result.Duration)
	return result
}

func (c *checker) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if c.newBackOff != nil {
		b = c.newBackOff()
	} else {
		b = backoff.NewExponentialBackOff()
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retries)), ctx) //nolint:gosec // retries is validated non-negative
}

// endpoint returns the URL that method m queries.
func (c *checker) endpoint(m torcheck.Method) string {
	if m == torcheck.MethodAPI {
		return c.apiURL
	}
	return c.pageURL
}

// retryable reports whether err is a transport failure worth another
// attempt. A verdict, an unreadable page and an undecodable answer are
// final, as is anything after ctx ended.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, torcheck.ErrNotUsingTor) || errors.Is(err, torcheck.ErrUnknownMethod) {
		return false
	}
	var pe *torcheck.ParsingError
	if errors.As(err, &pe) {
		return false
	}
	var ce *torcheck.ClientError
	return errors.As(err, &ce) && !ce.IsDecode()
}

// statusRecorder passes requests through and remembers the exit IP of
// successful JSON answers.
type statusRecorder struct {
	next torcheck.Doer

	mu sync.Mutex
	ip string
}

// Do implements torcheck.Doer.
func (r *statusRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := r.next.Do(req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordedBody+1))
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	if len(body) > maxRecordedBody {
		// Too large to record; hand the whole body on untouched.
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return resp, nil
	}
	_ = resp.Body.Close()

	if status, err := torcheck.DecodeStatus(bytes.NewReader(body)); err == nil {
		r.mu.Lock()
		r.ip = status.IP
		r.mu.Unlock()
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// IP returns the last recorded exit IP.
func (r *statusRecorder) IP() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ip
}

// verdictError turns results into the command's error: exit status 2 when
// any check says Tor is not in use, 1 when no check confirmed Tor.
func verdictError(results []*model.CheckResult) error {
	if len(results) == 0 {
		return errors.New("no checks ran")
	}

	var firstErr string
	confirmed := false
	for _, r := range results {
		switch r.Outcome {
		case model.OutcomeNotTor:
			return &exitCodeError{code: exitNotTor, err: torcheck.ErrNotUsingTor}
		case model.OutcomeOK:
			confirmed = true
		default:
			if firstErr == "" {
				firstErr = r.Method + ": " + r.Error
			}
		}
	}
	if !confirmed {
		return fmt.Errorf("could not determine Tor status: %s", firstErr)
	}
	return nil
}

// reportWriter returns the Writer for the configured format.
func reportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// writeReport writes the report to stdout, or to ReportFile with a text
// summary on stdout.
func writeReport(cfg *config.Config, out io.Writer, results []*model.CheckResult) error {
	if cfg.ReportFile == "" {
		_, err := reportWriter(cfg, out).Write(results)
		return err
	}

	if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	w := report.NewMultiWriter(
		report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose)),
		reportWriter(cfg, f),
	)
	_, err = w.Write(results)
	return err
}

// saveResults stores results in the history database when enabled.
func saveResults(ctx context.Context, cfg *config.Config, results []*model.CheckResult) error {
	if !cfg.SaveToDB {
		return nil
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	for _, r := range results {
		if err := db.SaveResult(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
