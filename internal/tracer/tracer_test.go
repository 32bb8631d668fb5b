package tracer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

func TestTraceFollowsRedirectsUntilStable(t *testing.T) {
	t.Parallel()

	session := &scriptedSession{redirects: map[string]string{
		"https://seed.example":     "https://hop.example/1",
		"https://hop.example/1":    "https://landing.example/",
	}}
	tr := New(Config{StabilizationTimeout: time.Millisecond}, nil, zap.NewNop())

	result, err := tr.Trace(context.Background(), session, "https://seed.example")
	require.NoError(t, err)
	require.Equal(t, redirect.Chain{"https://seed.example", "https://hop.example/1", "https://landing.example/"}, result.Chain)
	require.Equal(t, []string{"https://seed.example", "https://hop.example/1", "https://landing.example/"}, session.visits())
	require.Empty(t, result.Captured)
}

func TestTraceNoRedirectReturnsSeedOnly(t *testing.T) {
	t.Parallel()

	session := &scriptedSession{}
	result, err := New(Config{}, nil, nil).Trace(context.Background(), session, "https://static.example")
	require.NoError(t, err)
	require.Equal(t, redirect.Chain{"https://static.example"}, result.Chain)
}

func TestTraceInvalidSeedSkipsNavigator(t *testing.T) {
	t.Parallel()

	session := &scriptedSession{}
	_, err := New(Config{}, nil, nil).Trace(context.Background(), session, "not-a-url")
	require.ErrorIs(t, err, redirect.ErrInvalidInput)
	require.Empty(t, session.visits())
}

func TestTraceInitialNavigationFailure(t *testing.T) {
	t.Parallel()

	session := &scriptedSession{navErrs: map[string]error{"https://down.example": errBoom}}
	_, err := New(Config{}, nil, nil).Trace(context.Background(), session, "https://down.example")
	require.ErrorIs(t, err, redirect.ErrNavigationFailure)
	require.ErrorIs(t, err, errBoom)
}

func TestTraceNilSession(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil).Trace(context.Background(), nil, "https://seed.example")
	require.ErrorIs(t, err, redirect.ErrNavigationFailure)
}

func TestTraceReloadFailureEndsChain(t *testing.T) {
	t.Parallel()

	session := &scriptedSession{
		redirects: map[string]string{"https://seed.example": "https://broken.example"},
		navErrs:   map[string]error{"https://broken.example": errBoom},
	}
	result, err := New(Config{}, nil, nil).Trace(context.Background(), session, "https://seed.example")
	require.NoError(t, err)
	require.Equal(t, redirect.Chain{"https://seed.example", "https://broken.example"}, result.Chain)
}

func TestTracePollErrorAfterCancelIsNavigationFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session := &scriptedSession{pollErr: context.Canceled}
	_, err := New(Config{}, nil, nil).Trace(ctx, session, "https://seed.example")
	require.ErrorIs(t, err, redirect.ErrNavigationFailure)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestTraceStopsAtHopLimit(t *testing.T) {
	t.Parallel()

	session := &scriptedSession{redirects: map[string]string{
		"https://a.example": "https://b.example",
		"https://b.example": "https://a.example",
	}}
	result, err := New(Config{MaxHops: 5}, nil, nil).Trace(context.Background(), session, "https://a.example")
	require.NoError(t, err)
	require.Len(t, result.Chain, 5)
	require.Equal(t, "https://a.example", result.Chain[4])
}

func TestTraceCapturesFirstSeenChainOnly(t *testing.T) {
	t.Parallel()

	artifacts := newMemoryArtifacts()
	capturer, err := NewCapturer(artifacts, CaptureByChain, nil, zap.NewNop())
	require.NoError(t, err)
	tr := New(Config{}, capturer, nil)

	newSession := func() *scriptedSession {
		return &scriptedSession{
			redirects: map[string]string{"https://seed.example": "https://landing.example/page"},
			content:   "<html><head><title> Landing </title></head><body>hi</body></html>",
		}
	}

	first, err := tr.Trace(context.Background(), newSession(), "https://seed.example")
	require.NoError(t, err)
	require.Contains(t, first.Captured, "memory://https_landing.example_page_")
	require.Equal(t, 2, artifacts.len())

	second, err := tr.Trace(context.Background(), newSession(), "https://seed.example")
	require.NoError(t, err)
	require.Empty(t, second.Captured)
	require.Equal(t, 2, artifacts.len())
}

func TestTraceSkipsCaptureAfterStop(t *testing.T) {
	t.Parallel()

	artifacts := newMemoryArtifacts()
	capturer, err := NewCapturer(artifacts, CaptureByChain, nil, zap.NewNop())
	require.NoError(t, err)

	var stopped atomic.Bool
	tr := New(Config{Stopped: stopped.Load}, capturer, nil)
	session := func() *scriptedSession {
		return &scriptedSession{
			redirects: map[string]string{"https://seed.example": "https://late.example/"},
			content:   "<html><head><title>late</title></head></html>",
		}
	}

	stopped.Store(true)
	result, err := tr.Trace(context.Background(), session(), "https://seed.example")
	require.NoError(t, err)
	require.Equal(t, redirect.Chain{"https://seed.example", "https://late.example/"}, result.Chain)
	require.Empty(t, result.Captured)
	require.Zero(t, artifacts.len())

	// Skipping does not consume the claim.
	stopped.Store(false)
	result, err = tr.Trace(context.Background(), session(), "https://seed.example")
	require.NoError(t, err)
	require.NotEmpty(t, result.Captured)
}
