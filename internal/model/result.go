package model

import (
	"time"

	"github.com/google/uuid"
)

// CheckResult is the record of one verification.
type CheckResult struct {
	// ID identifies the result in the history database.
	ID string `json:"id"`

	// Method is "page" or "api".
	Method string `json:"method"`

	// Endpoint is the URL that was queried.
	Endpoint string `json:"endpoint"`

	// Proxy is the SOCKS5 address the request went through, or "embedded"
	// with the address appended when the embedded daemon was used.
	Proxy string `json:"proxy,omitempty"`

	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration_ns"`

	// UsingTor is true only for OutcomeOK.
	UsingTor bool    `json:"using_tor"`
	Outcome  Outcome `json:"outcome"`

	// IP is the exit address reported by the JSON endpoint, if known.
	IP string `json:"ip,omitempty"`

	// Attempts counts how many times the check ran, retries included.
	Attempts int `json:"attempts"`

	// Error holds the final error message when Outcome is not OK.
	Error string `json:"error,omitempty"`
}

// NewCheckResult creates a result for method and endpoint with a fresh ID.
// Call Complete once the check has finished.
func NewCheckResult(method, endpoint, proxy string) *CheckResult {
	return &CheckResult{
		ID:        uuid.NewString(),
		Method:    method,
		Endpoint:  endpoint,
		Proxy:     proxy,
		CheckedAt: time.Now().UTC(),
	}
}

// Complete records the outcome of the check. err is the error returned by
// torcheck, nil on success.
func (r *CheckResult) Complete(err error, attempts int) {
	r.Duration = time.Since(r.CheckedAt)
	r.Attempts = attempts
	r.Outcome = OutcomeFromError(err)
	r.UsingTor = r.Outcome == OutcomeOK
	if err != nil {
		r.Error = err.Error()
	}
}

// Summarize counts results by verdict.
func Summarize(results []*CheckResult) (ok, notTor, failed int) {
	for _, r := range results {
		switch r.Outcome {
		case OutcomeOK:
			ok++
		case OutcomeNotTor:
			notTor++
		default:
			failed++
		}
	}
	return ok, notTor, failed
}
