package redirect

import (
	"strings"
	"time"
)

// ChainSeparator joins chain hops in the persisted table and in log output.
const ChainSeparator = " -> "

// Chain is the ordered list of URLs visited while following redirects from a
// seed. Element 0 is always the seed.
type Chain []string

// ParseChain splits a rendered chain back into hops.
func ParseChain(rendered string) Chain {
	if rendered == "" {
		return nil
	}
	return Chain(strings.Split(rendered, ChainSeparator))
}

// Key renders the chain as its identity string. Two chains are equal iff
// their keys are equal.
func (c Chain) Key() string {
	return strings.Join(c, ChainSeparator)
}

// String implements fmt.Stringer.
func (c Chain) String() string {
	return c.Key()
}

// Equal reports structural equality.
func (c Chain) Equal(other Chain) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Seed returns the first hop, or "" for an empty chain.
func (c Chain) Seed() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Final returns the last hop, or "" for an empty chain.
func (c Chain) Final() string {
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1]
}

// Clone returns a copy that shares no backing array with c.
func (c Chain) Clone() Chain {
	if c == nil {
		return nil
	}
	return append(Chain(nil), c...)
}

// Entry is one row of the chain table.
type Entry struct {
	Chain Chain `json:"chain"`
	Count int   `json:"count"`
}

// Observation is the outcome of submitting one traced chain to the store.
type Observation struct {
	IsNew      bool
	Count      int
	Streak     int
	ShouldStop bool
	Unique     int
}

// Identity carries the per-probe browser identity.
type Identity struct {
	UserAgent string
}

// TraceResult is what a single probe produced.
type TraceResult struct {
	Chain    Chain
	Duration time.Duration
	Captured string
}
