package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// LocationFunc reads the URL a session currently shows.
type LocationFunc func(ctx context.Context) (string, error)

// WaitForChange samples current every interval until it reports a URL other
// than from, or timeout elapses (redirect.ErrStable). Read errors are
// treated as transient: pages mid-navigation often cannot be queried. The
// last read error is returned only when ctx ends first.
func WaitForChange(ctx context.Context, from string, timeout, interval time.Duration, current LocationFunc) (string, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return "", fmt.Errorf("%w (last read: %v)", ctx.Err(), lastErr)
			}
			return "", ctx.Err()
		case <-deadline.C:
			return "", redirect.ErrStable
		case <-ticker.C:
			url, err := current(ctx)
			if err != nil {
				lastErr = err
				continue
			}
			if url != "" && url != from {
				return url, nil
			}
		}
	}
}
