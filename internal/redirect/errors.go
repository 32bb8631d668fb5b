package redirect

import "errors"

var (
	// ErrInvalidInput marks a malformed seed URL. It is the only failure that
	// aborts a run.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNavigationFailure marks a navigation collaborator failure; workers retry.
	ErrNavigationFailure = errors.New("navigation failure")
	// ErrPersistenceFailure marks a failed snapshot write; the next observation retries.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrArtifactCapture marks a failed page capture; it never affects discovery.
	ErrArtifactCapture = errors.New("artifact capture failure")
	// ErrStoreClosed is returned for observations submitted after the stop threshold fired.
	ErrStoreClosed = errors.New("chain store closed")
	// ErrStable is returned by Session.WaitForChange when the URL did not change in time.
	ErrStable = errors.New("url stable")
)
