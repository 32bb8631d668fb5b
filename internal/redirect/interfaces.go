package redirect

import (
	"context"
	"io"
	"time"
)

// Driver opens isolated navigation sessions. Implementations must be safe for
// concurrent use; sessions are not.
type Driver interface {
	Open(ctx context.Context, identity Identity) (Session, error)
	Close() error
}

// Session is one browser (or HTTP client) owned by a single probe.
type Session interface {
	// Navigate loads url and returns once the initial load settles.
	Navigate(ctx context.Context, url string) error
	// CurrentURL reports the URL the session currently shows.
	CurrentURL(ctx context.Context) (string, error)
	// WaitForChange blocks until the current URL differs from `from` and
	// returns it, or returns ErrStable once timeout elapses.
	WaitForChange(ctx context.Context, from string, timeout time.Duration) (string, error)
	// Content returns the rendered document of the current page.
	Content(ctx context.Context) (string, error)
	Close() error
}

// Persister rewrites the full chain table.
type Persister interface {
	Persist(ctx context.Context, entries []Entry) error
}

// ArtifactStore writes captured page content and returns a URI.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes new-chain notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IdentitySource hands out the identity used for the next probe.
type IdentitySource interface {
	Next() Identity
}

// Clock supplies timestamps for events and notifications.
type Clock interface {
	Now() time.Time
}
