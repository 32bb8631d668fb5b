package tracer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

// scriptedSession redirects according to a static map; every load of a key
// URL changes the current URL to its value on the next poll.
type scriptedSession struct {
	mu         sync.Mutex
	redirects  map[string]string
	navErrs    map[string]error
	pollErr    error
	content    string
	contentErr error
	current    string
	navigated  []string
	pending    bool
}

func (s *scriptedSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	if err := s.navErrs[url]; err != nil {
		return err
	}
	s.current = url
	_, s.pending = s.redirects[url]
	return nil
}

func (s *scriptedSession) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *scriptedSession) WaitForChange(_ context.Context, from string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollErr != nil {
		return "", s.pollErr
	}
	if s.pending {
		s.pending = false
		s.current = s.redirects[s.current]
	}
	if s.current != from {
		return s.current, nil
	}
	return "", redirect.ErrStable
}

func (s *scriptedSession) Content(context.Context) (string, error) {
	return s.content, s.contentErr
}

func (s *scriptedSession) Close() error { return nil }

func (s *scriptedSession) visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

type memoryArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newMemoryArtifacts() *memoryArtifacts {
	return &memoryArtifacts{objects: map[string][]byte{}}
}

func (m *memoryArtifacts) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = body
	return fmt.Sprintf("memory://%s", path), nil
}

func (m *memoryArtifacts) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var errBoom = errors.New("boom")
