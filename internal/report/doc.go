// Package report renders check results.
//
// Writers share the Writer interface so the CLI can pick a format at
// runtime and fan out to several destinations with MultiWriter:
//   - SimpleWriter: aligned text for the terminal
//   - JSONWriter: a JSON document for scripts
//   - MarkdownWriter: a Markdown summary for issues and wikis
package report
