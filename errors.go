package torcheck

import (
	"errors"
	"fmt"
)

var (
	// ErrNotUsingTor is returned when the check service answered normally
	// but reports that the request did not come through Tor.
	ErrNotUsingTor = errors.New("you are not using Tor")

	// ErrUnexpectedStatus is wrapped by a *ClientError when the check
	// service answered with a non-2xx status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrUnknownMethod is returned by Verify and ParseMethod for a method
	// that is neither MethodPage nor MethodAPI.
	ErrUnknownMethod = errors.New("unknown check method")

	errMissingIsTor = errors.New(`missing "IsTor" field`)
	errTrailingData = errors.New("unexpected data after JSON value")
	errInvalidUTF8  = errors.New("line is not valid UTF-8")
)

// Operations recorded in ClientError.Op.
const (
	OpRequest = "request"
	OpDecode  = "decode"
)

// ClientError reports a failure of the HTTP exchange with the check service.
//
// Op is OpRequest when the request could not be built, sent, or was
// answered with a non-2xx status, and OpDecode when the JSON answer could
// not be decoded.
type ClientError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

// Error implements error.
func (e *ClientError) Error() string {
	return fmt.Sprintf("torcheck: %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying client or decoder error.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsDecode reports whether the response arrived but could not be parsed
// as JSON.
func (e *ClientError) IsDecode() bool {
	return e.Op == OpDecode
}

// ParsingError reports an I/O failure while reading the check page.
type ParsingError struct {
	Err error
}

// Error implements error.
func (e *ParsingError) Error() string {
	return "torcheck: read check page: " + e.Err.Error()
}

// Unwrap returns the underlying read error.
func (e *ParsingError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is, or wraps, a *ClientError caused by
// an undecodable JSON answer.
func IsDecodeError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.IsDecode()
}
