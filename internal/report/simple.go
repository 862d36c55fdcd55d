package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/torcheck/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SimpleWriter renders results as aligned text for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose adds the endpoint, proxy and attempt count of each check.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables per-check detail.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that writes to output.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *SimpleWriter) Write(results []*model.CheckResult) (int, error) {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")
	sb.WriteString(verdict(results))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")

	for _, r := range results {
		w.writeResult(&sb, r)
	}

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeResult(sb *strings.Builder, r *model.CheckResult) {
	fmt.Fprintf(sb, "\n[%s] %s\n", statusIndicator(r.Outcome), cases.Upper(language.English).String(r.Method))
	fmt.Fprintf(sb, "  Outcome:  %s\n", outcomeLabel(r.Outcome))
	if r.IP != "" {
		fmt.Fprintf(sb, "  Exit IP:  %s\n", r.IP)
	}
	fmt.Fprintf(sb, "  Duration: %s\n", r.Duration.Round(time.Millisecond))
	if r.Error != "" && r.Outcome != model.OutcomeNotTor {
		fmt.Fprintf(sb, "  Error:    %s\n", r.Error)
	}

	if !w.verbose {
		return
	}
	fmt.Fprintf(sb, "  Endpoint: %s\n", r.Endpoint)
	if r.Proxy != "" {
		fmt.Fprintf(sb, "  Proxy:    %s\n", r.Proxy)
	}
	fmt.Fprintf(sb, "  Attempts: %d\n", r.Attempts)
	fmt.Fprintf(sb, "  Checked:  %s\n", r.CheckedAt.Format(time.RFC3339))
}

// outcomeLabel turns "not_tor" into "Not Tor".
func outcomeLabel(o model.Outcome) string {
	if o == model.OutcomeOK {
		return "OK"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(o.String(), "_", " "))
}

func statusIndicator(o model.Outcome) string {
	switch o {
	case model.OutcomeOK:
		return "+"
	case model.OutcomeNotTor:
		return "!"
	default:
		return "?"
	}
}
