package redirect

import "strings"

// DomainBlocklist stores exact hosts and suffix wildcards. Patterns may be a
// bare host ("ads.example.com"), "*.example.com" or ".example.com"; the
// latter two match the domain itself and every subdomain.
type DomainBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewDomainBlocklist builds a blocklist, returning nil when no pattern survives
// trimming. A nil blocklist blocks nothing.
func NewDomainBlocklist(patterns []string) *DomainBlocklist {
	matcher := &DomainBlocklist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" || strings.HasPrefix(value, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (b *DomainBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// IsBlocked reports whether host matches any pattern.
func (b *DomainBlocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
