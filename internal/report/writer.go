package report

import (
	"io"

	"github.com/nao1215/torcheck/internal/model"
)

// Writer renders a set of check results.
type Writer interface {
	// Write renders results and returns the number of bytes written.
	Write(results []*model.CheckResult) (int, error)
}

// MultiWriter writes the same results to several Writers, e.g. the
// terminal and a report file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write renders results with each Writer in order and stops at the first
// error. The returned count is the total across writers.
func (m *MultiWriter) Write(results []*model.CheckResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(results)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// verdict is the one-line answer shown in text and Markdown reports.
func verdict(results []*model.CheckResult) string {
	ok, notTor, failed := model.Summarize(results)
	switch {
	case len(results) == 0:
		return "No checks ran"
	case notTor > 0:
		return "You are not using Tor"
	case failed > 0 && ok == 0:
		return "Could not determine Tor status"
	case failed > 0:
		return "Tor confirmed by some checks, others failed"
	default:
		return "You are using Tor"
	}
}
