package tram

import (
	"github.com/google/uuid"

	"github.com/AshkanYarmoradi/go-tram/adapters"
)

// IDGenerator produces unique identifiers for messages and saga instances.
type IDGenerator = adapters.IDGenerator

// UUIDGenerator generates time-ordered UUIDv7 strings.
type UUIDGenerator struct{}

// NewUUIDGenerator returns the default IDGenerator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// GenerateID returns a new UUIDv7, falling back to a random UUIDv4.
func (g *UUIDGenerator) GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() string

// GenerateID calls f.
func (f IDGeneratorFunc) GenerateID() string {
	return f()
}
