package learning

import "github.com/google/uuid"

// IDFunc generates entity ids. Every store keys records by these ids, so they
// must be globally unique and never reused.
type IDFunc func() string

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}
