// Package uuid generates record identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates random (v4) UUID strings. IDs are not derived from the
// source site, so re-crawling an app yields new IDs.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv4 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return id.String(), nil
}

// NewTimeOrderedID returns a UUIDv7 string, used for audit rows that sort by time.
func (Generator) NewTimeOrderedID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// TimeOrdered adapts Generator so NewID yields UUIDv7 strings.
type TimeOrdered struct {
	Generator
}

// NewID returns a UUIDv7 string.
func (t TimeOrdered) NewID() (string, error) {
	return t.NewTimeOrderedID()
}
