package config

import "errors"

// Validation errors returned by Config.Validate.
var (
	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidTorStartupTimeout is returned when the embedded daemon's
	// startup timeout is not positive.
	ErrInvalidTorStartupTimeout = errors.New("invalid tor startup timeout: must be positive")

	// ErrInvalidRetries is returned for a negative retry count.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidMethod is returned when the method is not page, api or both.
	ErrInvalidMethod = errors.New("invalid method: must be page, api or both")

	// ErrInvalidEndpoint is returned when a check URL is not an absolute
	// http or https URL.
	ErrInvalidEndpoint = errors.New("invalid endpoint: must be an absolute http or https URL")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
