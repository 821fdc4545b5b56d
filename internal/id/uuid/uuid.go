// Package uuid mints run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 run IDs, which sort by start time.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewRunID returns a fresh run ID in the 16-byte form progress events carry.
func (Generator) NewRunID() ([16]byte, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return [16]byte{}, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}

// Format renders a run ID in canonical text form.
func Format(id [16]byte) string {
	return uuid.UUID(id).String()
}

// Parse reads a canonical run ID, e.g. one passed back in by an operator.
func Parse(s string) ([16]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id %q: %w", s, err)
	}
	return id, nil
}
