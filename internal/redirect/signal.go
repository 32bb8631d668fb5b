package redirect

import "sync"

// StopReason explains why a run stopped.
type StopReason string

// Stop reasons recorded by the signal.
const (
	StopThreshold StopReason = "threshold"
	StopInterrupt StopReason = "interrupt"
	StopFailures  StopReason = "failures"
)

// Signal is the cooperative termination flag shared by all workers. It can be
// set once; later calls are ignored.
type Signal struct {
	once   sync.Once
	mu     sync.RWMutex
	reason StopReason
	done   chan struct{}
}

// NewSignal returns an unset signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Stop sets the signal. It reports whether this call was the one that set it.
func (s *Signal) Stop(reason StopReason) bool {
	set := false
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
		set = true
	})
	return set
}

// Stopped reports whether the signal has been set.
func (s *Signal) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed once the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Reason returns the first stop reason, or "" while running.
func (s *Signal) Reason() StopReason {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}
