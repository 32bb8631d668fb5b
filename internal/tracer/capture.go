package tracer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// CaptureMode selects the first-seen key used for artifact capture.
type CaptureMode string

// Supported capture modes.
const (
	CaptureByChain  CaptureMode = "chain"
	CaptureByDomain CaptureMode = "domain"
)

const htmlContentType = "text/html; charset=utf-8"

// CaptureMetadata is written next to every captured page.
type CaptureMetadata struct {
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Chain      []string  `json:"chain"`
	CapturedAt time.Time `json:"captured_at"`
	HTMLURI    string    `json:"html_uri"`
}

// Capturer saves the rendered final page the first time a key is seen.
// Failures are logged and swallowed.
type Capturer struct {
	store   redirect.ArtifactStore
	mode    CaptureMode
	known   func(redirect.Chain) bool
	claimed sync.Map
	logger  *zap.Logger
}

// NewCapturer builds a Capturer. known, when set, reports chains that were
// already recorded before this process started (resume) so they are not
// captured again.
func NewCapturer(store redirect.ArtifactStore, mode CaptureMode, known func(redirect.Chain) bool, logger *zap.Logger) (*Capturer, error) {
	if store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	switch mode {
	case "":
		mode = CaptureByChain
	case CaptureByChain, CaptureByDomain:
	default:
		return nil, fmt.Errorf("unknown capture mode %q", mode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{store: store, mode: mode, known: known, logger: logger}, nil
}

// Key returns the first-seen key for chain under the configured mode.
func (c *Capturer) Key(chain redirect.Chain) string {
	if c.mode == CaptureByDomain {
		if host := redirect.Hostname(chain.Final()); host != "" {
			return host
		}
	}
	return chain.Key()
}

func (c *Capturer) claim(chain redirect.Chain) (string, bool) {
	key := c.Key(chain)
	if c.mode == CaptureByChain && c.known != nil && c.known(chain) {
		return key, false
	}
	_, loaded := c.claimed.LoadOrStore(key, struct{}{})
	return key, !loaded
}

// Capture stores the current page of session if chain's key is new. It
// returns the artifact URI, or "" when nothing was written.
func (c *Capturer) Capture(ctx context.Context, session redirect.Session, chain redirect.Chain) string {
	if c == nil || len(chain) == 0 {
		return ""
	}
	key, first := c.claim(chain)
	if !first {
		return ""
	}
	uri, err := c.capture(ctx, session, chain, key)
	if err != nil {
		c.logger.Warn("page capture failed",
			zap.String("url", chain.Final()),
			zap.Error(fmt.Errorf("%w: %w", redirect.ErrArtifactCapture, err)),
		)
		return ""
	}
	c.logger.Info("saved page content", zap.String("url", chain.Final()), zap.String("uri", uri))
	return uri
}

func (c *Capturer) capture(ctx context.Context, session redirect.Session, chain redirect.Chain, key string) (string, error) {
	html, err := session.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	name := c.artifactName(chain, key)
	uri, err := c.store.PutObject(ctx, name+".html", htmlContentType, strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("put html: %w", err)
	}

	meta := CaptureMetadata{
		URL:        chain.Final(),
		Title:      pageTitle(html),
		Chain:      append([]string(nil), chain...),
		CapturedAt: time.Now().UTC(),
		HTMLURI:    uri,
	}
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if _, err := c.store.PutObject(ctx, name+".json", "application/json", bytes.NewReader(payload)); err != nil {
		return "", fmt.Errorf("put metadata: %w", err)
	}
	return uri, nil
}

func (c *Capturer) artifactName(chain redirect.Chain, key string) string {
	if c.mode == CaptureByDomain {
		return redirect.SafeFilename(key)
	}
	// Distinct chains can share a final URL.
	sum := sha256.Sum256([]byte(key))
	return redirect.SafeFilename(chain.Final()) + "_" + hex.EncodeToString(sum[:4])
}

func pageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
