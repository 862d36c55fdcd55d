// Package torcheck verifies that an HTTP client's traffic leaves through
// the Tor network.
//
// A check issues a single GET request to the Tor Project check service and
// interprets the answer. Two methods exist:
//
//   - MethodPage fetches https://check.torproject.org/?TorButton=True and
//     scans the HTML line by line for the success marker.
//   - MethodAPI fetches https://check.torproject.org/api/ip and reads the
//     "IsTor" flag of the JSON document.
//
// Checks work with any client that implements Doer, *http.Client included.
// On success the very same client value is handed back, so a check can be
// placed in front of normal use:
//
//	client, err := torcheck.CheckAPI(ctx, torHTTPClient)
//	if err != nil {
//	    return err
//	}
//	resp, err := client.Get("http://example.onion/")
//
// Failures are classified as *ClientError (request, status or JSON decode
// failure; see IsDecodeError), *ParsingError (the HTML body could not be
// read) or ErrNotUsingTor.
//
// Go runs a check on its own goroutine and returns a Future for callers
// that do not want to block.
//
// The package performs no retries and sets no timeouts; both belong to the
// injected client and the context.
package torcheck
