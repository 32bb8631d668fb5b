// Package collydriver is an HTTP-only navigation driver built on gocolly.
// It sees 3xx redirects and <meta http-equiv="refresh"> hops but runs no
// JavaScript, so script-driven redirects are invisible to it.
package collydriver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/redirect-chains/internal/browser"
	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

const defaultMaxRedirects = 20

// Config controls the per-session collectors.
type Config struct {
	NavigationTimeout time.Duration
	// MaxRedirects caps 3xx hops followed by a single Navigate.
	MaxRedirects int
}

// Driver hands out sessions that share one HTTP transport.
type Driver struct {
	cfg       Config
	transport http.RoundTripper
}

// NewDriver builds a Driver.
func NewDriver(cfg Config) *Driver {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = browser.DefaultNavigationTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	return &Driver{cfg: cfg, transport: newHTTPTransport()}
}

// Open returns a fresh session. Sessions share no cookies.
func (d *Driver) Open(_ context.Context, identity redirect.Identity) (redirect.Session, error) {
	return &Session{driver: d, userAgent: identity.UserAgent}, nil
}

// Close releases idle connections.
func (d *Driver) Close() error {
	if t, ok := d.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

type hop struct {
	url string
	// fetched hops were already loaded while following redirects.
	fetched bool
}

// visit is what a single Navigate observed.
type visit struct {
	hops    []hop
	body    string
	failure error
}

// Session replays the hops recorded by the last Navigate through
// WaitForChange, one per call.
type Session struct {
	driver    *Driver
	userAgent string

	mu       sync.Mutex
	current  string
	body     string
	pending  []hop
	skipNext string
}

func (s *Session) newCollector(v *visit) *colly.Collector {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if s.userAgent != "" {
		c.UserAgent = s.userAgent
	}
	c.WithTransport(s.driver.transport)
	c.SetRequestTimeout(s.driver.cfg.NavigationTimeout)
	maxRedirects := s.driver.cfg.MaxRedirects
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return http.ErrUseLastResponse
		}
		v.hops = append(v.hops, hop{url: req.URL.String(), fetched: true})
		return nil
	})
	c.OnResponse(func(r *colly.Response) {
		v.body = string(r.Body)
	})
	c.OnHTML(`meta[http-equiv]`, func(e *colly.HTMLElement) {
		if !strings.EqualFold(strings.TrimSpace(e.Attr("http-equiv")), "refresh") {
			return
		}
		target := refreshTarget(e.Attr("content"))
		if target == "" {
			return
		}
		if abs := e.Request.AbsoluteURL(target); abs != "" {
			v.hops = append(v.hops, hop{url: abs})
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		v.failure = err
	})
	return c
}

// Navigate fetches url, following 3xx redirects. Navigating to a hop that
// was already fetched by the previous redirect walk is a no-op.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	if s.skipNext != "" && s.skipNext == url {
		s.current = url
		s.skipNext = ""
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	v, err := s.fetch(ctx, url)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = url
	s.body = v.body
	s.pending = v.hops
	s.skipNext = ""
	return nil
}

func (s *Session) fetch(ctx context.Context, url string) (*visit, error) {
	v := &visit{}
	collector := s.newCollector(v)
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("colly visit %s: %w", url, err)
		}
		if v.failure != nil {
			return nil, fmt.Errorf("colly response %s: %w", url, v.failure)
		}
		return v, nil
	}
}

// CurrentURL reports the last hop handed out by WaitForChange, or the
// navigated URL.
func (s *Session) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

// WaitForChange pops the next recorded hop. Without one the page is
// considered stable straight away; there is nothing to poll.
func (s *Session) WaitForChange(ctx context.Context, from string, _ time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		if next.url == from {
			continue
		}
		s.current = next.url
		if next.fetched {
			s.skipNext = next.url
		}
		return next.url, nil
	}
	return "", redirect.ErrStable
}

// Content returns the body of the last response.
func (s *Session) Content(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.body == "" {
		return "", errors.New("no document loaded")
	}
	return s.body, nil
}

// Close is a no-op; connections belong to the driver.
func (s *Session) Close() error { return nil }

// refreshTarget extracts the URL from a refresh directive such as
// "0; url='/next'".
func refreshTarget(content string) string {
	for _, part := range strings.Split(content, ";") {
		part = strings.TrimSpace(part)
		if len(part) < 4 || !strings.EqualFold(part[:4], "url=") {
			continue
		}
		return strings.Trim(strings.TrimSpace(part[4:]), `'"`)
	}
	return ""
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
