package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnreachable reports a failed reachability probe.
var ErrUnreachable = errors.New("no internet connection")

// Probe sends a HEAD request to rawURL and fails with ErrUnreachable when no
// response arrives within timeout. Any HTTP response counts as reachable.
func Probe(ctx context.Context, hc *http.Client, rawURL string, timeout time.Duration) error {
	if hc == nil {
		hc = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp.Body.Close()
	return nil
}
