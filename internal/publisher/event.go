// Package publisher defines the notification emitted when a probe discovers
// a chain nobody has seen before. Backends live in subpackages.
package publisher

import (
	"time"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// DefaultTopic is used when notify.topic is unset.
const DefaultTopic = "redirect-chains"

// ChainDiscovered is published once per new chain.
type ChainDiscovered struct {
	RunID        string    `json:"run_id"`
	Seed         string    `json:"seed"`
	Chain        []string  `json:"chain"`
	Final        string    `json:"final"`
	Hops         int       `json:"hops"`
	Unique       int       `json:"unique"`
	Artifact     string    `json:"artifact,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// NewChainDiscovered builds the notification for chain.
func NewChainDiscovered(runID string, chain redirect.Chain, unique int, artifact string, at time.Time) ChainDiscovered {
	return ChainDiscovered{
		RunID:        runID,
		Seed:         chain.Seed(),
		Chain:        append([]string(nil), chain...),
		Final:        chain.Final(),
		Hops:         len(chain),
		Unique:       unique,
		Artifact:     artifact,
		DiscoveredAt: at.UTC(),
	}
}

// Attributes returns Pub/Sub message attributes for filtering.
func (c ChainDiscovered) Attributes() map[string]string {
	return map[string]string{
		"run_id":     c.RunID,
		"final_host": redirect.Hostname(c.Final),
	}
}
