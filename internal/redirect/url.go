package redirect

import (
	"crypto/sha1" // #nosec G505 -- used for filename disambiguation, not security.
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const maxFilenameLen = 180

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ValidateSeed checks that raw is an absolute http(s) URL with a host.
func ValidateSeed(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%w: seed url is empty", ErrInvalidInput)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: parse seed %q: %v", ErrInvalidInput, raw, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: seed %q must start with http:// or https://", ErrInvalidInput, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: seed %q has no host", ErrInvalidInput, raw)
	}
	return nil
}

// Hostname returns the lower-cased host of raw, or "" when raw does not parse.
func Hostname(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// SafeFilename turns a URL or domain into a name usable on any filesystem.
// Long names are truncated and suffixed with a digest of the full input.
func SafeFilename(raw string) string {
	name := strings.ReplaceAll(raw, "://", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = invalidFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "root"
	}
	if len(name) <= maxFilenameLen {
		return name
	}
	sum := sha1.Sum([]byte(raw)) // #nosec G401 -- not a security boundary.
	return name[:maxFilenameLen] + "_" + hex.EncodeToString(sum[:])[:16]
}
