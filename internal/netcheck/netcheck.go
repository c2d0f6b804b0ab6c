// Package netcheck reports whether the device currently has working
// internet access.
//
// The check is deliberately pessimistic: a local link with no internet, a
// timeout, or any probe failure all report offline. The sync layer calls
// this before every network operation and routes writes to the offline
// queue when it returns false.
package netcheck

import (
	"context"
	"net/http"
	"time"
)

// Oracle reports current connectivity. Implementations must be
// side-effect-free and safe to call frequently.
type Oracle interface {
	// Online reports whether the internet is reachable right now.
	// Unknown is reported as false (fail closed).
	Online(ctx context.Context) bool
}

// HTTPOracle probes a well-known URL with a HEAD request.
type HTTPOracle struct {
	// URL to probe. Any 2xx-4xx response counts as reachable; what matters
	// is that a server answered at all.
	URL string

	// Timeout bounds the probe (default 3s).
	Timeout time.Duration

	// Client overrides the HTTP client used for probing (default
	// http.DefaultClient).
	Client *http.Client
}

// Online implements Oracle.
func (o *HTTPOracle) Online(ctx context.Context) bool {
	timeout := o.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, o.URL, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

// Static is a fixed-answer Oracle for tests and forced-offline mode.
type Static bool

// Online implements Oracle.
func (s Static) Online(context.Context) bool {
	return bool(s)
}
