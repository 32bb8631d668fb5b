package snapshot

import (
	"context"
	"errors"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// Multi fans a table rewrite out to several persisters. Every persister is
// attempted; their errors are joined.
type Multi []redirect.Persister

// Persist implements redirect.Persister.
func (m Multi) Persist(ctx context.Context, entries []redirect.Entry) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Persist(ctx, entries); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
