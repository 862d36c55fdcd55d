package torcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// CheckResponse is the answer of the JSON check endpoint.
// Only IsTor decides the outcome; other fields are informational.
type CheckResponse struct {
	IsTor bool   `json:"IsTor"`
	IP    string `json:"IP,omitempty"`
}

// CheckAPI queries the JSON endpoint with client and returns client
// unchanged when it reports IsTor=true.
func CheckAPI[C Doer](ctx context.Context, client C, opts ...Option) (C, error) {
	o := newOptions(opts)

	ctx, span := o.startSpan(ctx, MethodAPI, o.apiURL)
	status, err := fetchStatus(ctx, client, o)
	if err == nil && !status.IsTor {
		err = ErrNotUsingTor
	}
	endSpan(span, err)

	if err != nil {
		var zero C
		return zero, err
	}
	return client, nil
}

// FetchStatus queries the JSON endpoint and returns the decoded answer
// without judging it. Decode failures are *ClientError values for which
// IsDecode reports true.
func FetchStatus(ctx context.Context, client Doer, opts ...Option) (*CheckResponse, error) {
	return fetchStatus(ctx, client, newOptions(opts))
}

func fetchStatus(ctx context.Context, client Doer, o *options) (*CheckResponse, error) {
	resp, err := get(ctx, client, o.apiURL, o.userAgent)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	status, err := DecodeStatus(resp.Body)
	if err != nil {
		return nil, &ClientError{Op: OpDecode, URL: o.apiURL, StatusCode: resp.StatusCode, Err: err}
	}
	o.logger.Debug("check api", "isTor", status.IsTor, "ip", status.IP)
	return status, nil
}

// DecodeStatus decodes a check endpoint answer from r.
//
// Field names are matched exactly. Unknown fields are ignored and a
// malformed IP is dropped, but IsTor must be present and boolean, and r
// must hold a single JSON object.
func DecodeStatus(r io.Reader) (*CheckResponse, error) {
	dec := json.NewDecoder(r)

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errTrailingData, err)
		}
		return nil, errTrailingData
	}

	raw, ok := fields["IsTor"]
	if !ok {
		return nil, errMissingIsTor
	}
	var isTor *bool
	if err := json.Unmarshal(raw, &isTor); err != nil {
		return nil, fmt.Errorf(`decode "IsTor": %w`, err)
	}
	if isTor == nil {
		return nil, errMissingIsTor
	}

	status := &CheckResponse{IsTor: *isTor}
	if raw, ok := fields["IP"]; ok {
		var ip string
		if json.Unmarshal(raw, &ip) == nil {
			status.IP = ip
		}
	}
	return status, nil
}
