package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/torcheck/internal/model"
)

// MarkdownWriter renders results as a Markdown document with a summary
// alert and a table of checks.
type MarkdownWriter struct {
	baseWriter

	title string
}

// NewMarkdownWriter creates a MarkdownWriter that writes to output.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		title:      "Tor Check Report",
	}
}

// NewHistoryMarkdownWriter is NewMarkdownWriter with a heading suited to
// stored history.
func NewHistoryMarkdownWriter(output io.Writer) *MarkdownWriter {
	w := NewMarkdownWriter(output)
	w.title = "Tor Check History"
	return w
}

// Write implements Writer.
func (w *MarkdownWriter) Write(results []*model.CheckResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1(w.title)
	md.PlainText("")
	w.writeAlert(md, results)

	md.H2("Checks")
	md.PlainText("")
	if len(results) == 0 {
		md.PlainText("No checks recorded.")
		md.PlainText("")
	} else {
		md.Table(markdown.TableSet{
			Header: []string{"Method", "Outcome", "Exit IP", "Duration", "Checked At", "Error"},
			Rows:   resultRows(results),
		})
		md.PlainText("")
	}

	ok, notTor, failed := model.Summarize(results)
	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Verdict", "Count"},
		Rows: [][]string{
			{"OK", strconv.Itoa(ok)},
			{"Not Tor", strconv.Itoa(notTor)},
			{"Failed", strconv.Itoa(failed)},
		},
	})

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, results []*model.CheckResult) {
	ok, notTor, failed := model.Summarize(results)
	switch {
	case notTor > 0:
		md.Cautionf("%s.", verdict(results))
	case ok == 0 || failed > 0:
		md.Warningf("%s.", verdict(results))
	default:
		md.Tip(verdict(results) + ".")
	}
	md.PlainText("")
}

func resultRows(results []*model.CheckResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.Method,
			outcomeLabel(r.Outcome),
			orDash(r.IP),
			r.Duration.Round(time.Millisecond).String(),
			r.CheckedAt.Format("2006-01-02 15:04:05 MST"),
			orDash(truncateString(r.Error, 60)),
		})
	}
	return rows
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
