// Package memory records notifications in process memory for dry runs and
// tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/redirect-chains/internal/publisher"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	err      error
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent publishes return err (nil restores success).
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Discovered returns the ChainDiscovered payloads in publish order.
func (p *Publisher) Discovered() []publisher.ChainDiscovered {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []publisher.ChainDiscovered
	for _, m := range p.messages {
		if event, ok := m.Payload.(publisher.ChainDiscovered); ok {
			out = append(out, event)
		}
	}
	return out
}
