// Package rod drives Chrome through go-rod. One browser process is shared by
// the driver; every session gets its own incognito context.
package rod

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/JakeFAU/redirect-chains/internal/browser"
	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// Config controls the launched browser.
type Config struct {
	ExecPath string
	Headless bool
	// Stealth injects evasion scripts that hide common automation markers.
	Stealth           bool
	NavigationTimeout time.Duration
	PollInterval      time.Duration
}

// Driver owns the launcher and the root browser connection.
type Driver struct {
	cfg      Config
	launcher *launcher.Launcher
	browser  *rod.Browser
	closeOnce  sync.Once
}

// NewDriver launches Chrome and connects to it.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = browser.DefaultNavigationTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = browser.DefaultPollInterval
	}
	l := newLauncher(cfg)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return &Driver{cfg: cfg, launcher: l, browser: b}, nil
}

func newLauncher(cfg Config) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("disable-default-apps").
		Set("disable-sync")
	if cfg.ExecPath != "" {
		l = l.Bin(cfg.ExecPath)
	}
	return l
}

// Close disconnects and kills the browser.
func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.browser != nil {
			err = d.browser.Close()
		}
		if d.launcher != nil {
			d.launcher.Cleanup()
		}
	})
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Open creates an incognito context and a page in it.
func (d *Driver) Open(ctx context.Context, identity redirect.Identity) (redirect.Session, error) {
	incognito, err := d.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	var page *rod.Page
	if d.cfg.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	if identity.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: identity.UserAgent}); err != nil {
			_ = incognito.Close()
			return nil, fmt.Errorf("set user-agent: %w", err)
		}
	}
	return &Session{cfg: d.cfg, context: incognito, page: page}, nil
}

// Session is one incognito page.
type Session struct {
	cfg     Config
	context *rod.Browser
	page    *rod.Page
}

func (s *Session) bounded(ctx context.Context) (*rod.Page, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	return s.page.Context(opCtx), cancel
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page, cancel := s.bounded(ctx)
	defer cancel()
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// CurrentURL reads window.location.href.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	page, cancel := s.bounded(ctx)
	defer cancel()
	res, err := page.Eval(`() => window.location.href`)
	if err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return res.Value.Str(), nil
}

// WaitForChange polls the location until it differs from from.
func (s *Session) WaitForChange(ctx context.Context, from string, timeout time.Duration) (string, error) {
	return browser.WaitForChange(ctx, from, timeout, s.cfg.PollInterval, s.CurrentURL)
}

// Content returns the serialized DOM.
func (s *Session) Content(ctx context.Context) (string, error) {
	page, cancel := s.bounded(ctx)
	defer cancel()
	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// Close disposes of the incognito context and its page.
func (s *Session) Close() error {
	if err := s.context.Close(); err != nil {
		return fmt.Errorf("close incognito context: %w", err)
	}
	return nil
}
