package model

import (
	"errors"
	"fmt"

	"github.com/nao1215/torcheck"
)

// Outcome classifies how a check ended.
type Outcome int

const (
	// OutcomeOK means the check service confirmed Tor.
	OutcomeOK Outcome = iota

	// OutcomeNotTor means the check service answered but Tor is not in use.
	OutcomeNotTor

	// OutcomeClientError means the request failed or the answer could not
	// be decoded.
	OutcomeClientError

	// OutcomeParsingError means the check page could not be read.
	OutcomeParsingError
)

// String returns the lower-case name used in reports and storage.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotTor:
		return "not_tor"
	case OutcomeClientError:
		return "client_error"
	case OutcomeParsingError:
		return "parsing_error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, candidate := range []Outcome{OutcomeOK, OutcomeNotTor, OutcomeClientError, OutcomeParsingError} {
		if candidate.String() == string(text) {
			*o = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// OutcomeFromError maps an error returned by torcheck to an Outcome.
// Errors that torcheck does not classify count as client errors.
func OutcomeFromError(err error) Outcome {
	var pe *torcheck.ParsingError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, torcheck.ErrNotUsingTor):
		return OutcomeNotTor
	case errors.As(err, &pe):
		return OutcomeParsingError
	default:
		return OutcomeClientError
	}
}
