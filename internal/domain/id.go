package domain

import "github.com/google/uuid"

// NewID produces a collision-resistant client-local identifier for
// messages and strokes that do not have a server id yet.
func NewID() string {
	return uuid.NewString()
}
