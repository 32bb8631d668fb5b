// Package headless drives Chrome through chromedp. Every session runs in its
// own browser process so cookies, storage and user agent never leak between
// probes.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/redirect-chains/internal/browser"
	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// Config controls the Chrome instances launched by the driver.
type Config struct {
	// ExecPath points at the Chrome binary; empty searches the usual paths.
	ExecPath          string
	Headless          bool
	NavigationTimeout time.Duration
	PollInterval      time.Duration
	// MaxParallel caps concurrently open sessions. Zero means unlimited.
	MaxParallel int
}

// Driver launches chromedp sessions from a shared exec allocator.
type Driver struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewDriver creates the exec allocator. Chrome itself starts lazily on the
// first Navigate of each session.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = browser.DefaultNavigationTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = browser.DefaultPollInterval
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Driver{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("mute-audio", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Close shuts down every browser started by the driver.
func (d *Driver) Close() error {
	d.allocCancel()
	return nil
}

// Open starts a fresh browser for one probe.
func (d *Driver) Open(ctx context.Context, identity redirect.Identity) (redirect.Session, error) {
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	browserCtx, cancel := chromedp.NewContext(d.allocator)
	s := &Session{cfg: d.cfg, ctx: browserCtx, cancel: cancel, release: d.release}

	setup := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if identity.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(identity.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
	if err := s.run(ctx, d.cfg.NavigationTimeout, setup); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

func (d *Driver) acquire(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	select {
	case d.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (d *Driver) release() {
	if d.limiter == nil {
		return
	}
	select {
	case <-d.limiter:
	default:
	}
}

// Session is one Chrome tab owned by a single probe.
type Session struct {
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	release func()
	closed  bool
}

// run executes actions against the browser, bounded by timeout and by the
// caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// CurrentURL reads window.location.href, which reflects client-side
// redirects that the CDP target URL can lag behind.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var href string
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Evaluate(`window.location.href`, &href)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return href, nil
}

// WaitForChange polls the location until it differs from from.
func (s *Session) WaitForChange(ctx context.Context, from string, timeout time.Duration) (string, error) {
	return browser.WaitForChange(ctx, from, timeout, s.cfg.PollInterval, s.CurrentURL)
}

// Content returns the serialized DOM of the current page.
func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// Close terminates the browser. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.release()
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
