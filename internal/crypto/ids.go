package crypto

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewAgentID generates a time-ordered UUID v7 for a new agent.
func NewAgentID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewMessageID generates a ULID for a new message. ULIDs sort by creation
// time, which is what inbox and conversation ordering rely on.
func NewMessageID() string {
	return ulid.Make().String()
}
