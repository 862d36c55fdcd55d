package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/torcheck/internal/model"
)

// JSONWriter renders results as a single JSON document.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
	version      string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output with the given prefix and indent.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the torcheck version in the document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that writes to output.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Document is the JSON shape written by JSONWriter.
type Document struct {
	Version     string               `json:"version,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
	UsingTor    bool                 `json:"using_tor"`
	Results     []*model.CheckResult `json:"results"`
	Summary     Summary              `json:"summary"`
}

// Summary counts results by verdict.
type Summary struct {
	OK     int `json:"ok"`
	NotTor int `json:"not_tor"`
	Failed int `json:"failed"`
}

// Write implements Writer. UsingTor is true when at least one check
// confirmed Tor and none reported otherwise.
func (w *JSONWriter) Write(results []*model.CheckResult) (int, error) {
	ok, notTor, failed := model.Summarize(results)
	if results == nil {
		results = []*model.CheckResult{}
	}

	doc := Document{
		Version:     w.version,
		GeneratedAt: time.Now().UTC(),
		UsingTor:    ok > 0 && notTor == 0,
		Results:     results,
		Summary:     Summary{OK: ok, NotTor: notTor, Failed: failed},
	}

	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(doc, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
