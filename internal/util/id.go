package util

import "github.com/google/uuid"

// NewID returns a random unique identifier for turns, invocations and
// tool-call correlation.
func NewID() string {
	return uuid.NewString()
}
