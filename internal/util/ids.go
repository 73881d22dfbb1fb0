package util

import "github.com/google/uuid"

// NewTurnID returns a unique identifier for a conversation turn.
func NewTurnID() string {
	return "t_" + uuid.NewString()
}
