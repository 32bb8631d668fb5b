package rod

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

var _ redirect.Driver = (*Driver)(nil)
var _ redirect.Session = (*Session)(nil)

func TestNewLauncherFlags(t *testing.T) {
	t.Parallel()

	l := newLauncher(Config{Headless: true, ExecPath: "/usr/bin/chromium"})
	require.True(t, l.Has("headless"))
	require.True(t, l.Has("disable-gpu"))
	require.Equal(t, "/usr/bin/chromium", l.Get("rod-bin"))

	headful := newLauncher(Config{})
	require.False(t, headful.Has("headless"))
}
