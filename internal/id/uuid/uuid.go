// Package uuid mints run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 run IDs so runs sort by start time.
type Generator struct{}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// NewRunID returns a UUIDv7.
func (Generator) NewRunID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// MustRunID is NewRunID that falls back to a random v4 ID.
func (g Generator) MustRunID() uuid.UUID {
	id, err := g.NewRunID()
	if err != nil {
		return uuid.New()
	}
	return id
}
