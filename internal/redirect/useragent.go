package redirect

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.7; rv:132.0) Gecko/20100101 Firefox/132.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 18_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

// UserAgentPool implements IdentitySource. A fixed agent wins over
// randomization; with neither set the driver keeps its own default.
type UserAgentPool struct {
	fixed  string
	random bool
	agents []string
}

// NewUserAgentPool builds a pool. An empty agents slice uses the built-in list.
func NewUserAgentPool(fixed string, random bool, agents []string) *UserAgentPool {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &UserAgentPool{
		fixed:  strings.TrimSpace(fixed),
		random: random,
		agents: agents,
	}
}

// Next returns the identity for the next probe.
func (p *UserAgentPool) Next() Identity {
	if p == nil {
		return Identity{}
	}
	if p.fixed != "" {
		return Identity{UserAgent: p.fixed}
	}
	if !p.random {
		return Identity{}
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.agents))))
	if err != nil {
		return Identity{UserAgent: p.agents[0]}
	}
	return Identity{UserAgent: p.agents[n.Int64()]}
}
