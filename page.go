package torcheck

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// SuccessMarker is the line the check page only contains when the request
// came through Tor.
const SuccessMarker = `<a id="TorCheckResult" target="success" href="/"></a>`

// CheckPage fetches the check page with client and looks for SuccessMarker.
// It returns client unchanged on success.
func CheckPage[C Doer](ctx context.Context, client C, opts ...Option) (C, error) {
	o := newOptions(opts)

	ctx, span := o.startSpan(ctx, MethodPage, o.pageURL)
	err := checkPage(ctx, client, o)
	endSpan(span, err)

	if err != nil {
		var zero C
		return zero, err
	}
	return client, nil
}

func checkPage(ctx context.Context, client Doer, o *options) error {
	resp, err := get(ctx, client, o.pageURL, o.userAgent)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return ScanPage(resp.Body, o.logger)
}

// ScanPage reads r line by line and stops at the first line that equals
// SuccessMarker once surrounding whitespace is trimmed.
//
// It returns nil on a match, a *ParsingError if reading fails or a line is
// not valid UTF-8 first, and ErrNotUsingTor when r is exhausted without a
// match. Lines have no length limit. A nil logger disables line logging.
func ScanPage(r io.Reader, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return &ParsingError{Err: err}
		}
		if line != "" {
			if !utf8.ValidString(line) {
				return &ParsingError{Err: errInvalidUTF8}
			}
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			logger.Debug("check page", "line", line)

			if strings.TrimSpace(line) == SuccessMarker {
				return nil
			}
		}
		if err != nil {
			return ErrNotUsingTor
		}
	}
}
