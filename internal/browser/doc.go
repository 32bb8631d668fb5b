// Package browser holds helpers shared by the navigation drivers in its
// subpackages: headless (chromedp), rod (go-rod) and colly (plain HTTP).
package browser

import "time"

// DefaultPollInterval is how often drivers sample the page URL while waiting
// for a client-side redirect.
const DefaultPollInterval = 100 * time.Millisecond

// DefaultNavigationTimeout bounds one page load.
const DefaultNavigationTimeout = 30 * time.Second
