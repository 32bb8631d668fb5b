package redirect

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignalStopsOnce(t *testing.T) {
	t.Parallel()

	s := NewSignal()
	require.False(t, s.Stopped())
	require.Empty(t, s.Reason())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Stop(StopThreshold) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.True(t, s.Stopped())
	require.Equal(t, StopThreshold, s.Reason())
	require.False(t, s.Stop(StopInterrupt))
	require.Equal(t, StopThreshold, s.Reason())

	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
}
