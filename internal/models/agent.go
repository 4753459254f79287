package models

import (
	"time"
)

// Agent represents a registered agent identity.
type Agent struct {
	ID           string    `json:"id"`
	PublicKey    string    `json:"publicKey"`
	Name         string    `json:"name"`
	Provider     string    `json:"provider,omitempty"`
	Capabilities []string  `json:"capabilities"`
	WebhookURL   string    `json:"webhookUrl,omitempty"`
	IsPublic     bool      `json:"isPublic"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DirectoryEntry is the public-safe projection of an Agent exposed through
// the directory. It never carries the public key or webhook URL.
type DirectoryEntry struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Provider     string   `json:"provider,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// DirectoryEntry returns the directory projection of the agent.
func (a *Agent) DirectoryEntry() DirectoryEntry {
	return DirectoryEntry{
		ID:           a.ID,
		Name:         a.Name,
		Provider:     a.Provider,
		Capabilities: a.Capabilities,
	}
}

// AgentUpdate carries the mutable agent fields for a partial update.
// Nil pointers mean "leave unchanged"; publicKey and id are immutable.
type AgentUpdate struct {
	Name         *string   `json:"name"`
	Provider     *string   `json:"provider"`
	Capabilities *[]string `json:"capabilities"`
	WebhookURL   *string   `json:"webhookUrl"`
	IsPublic     *bool     `json:"isPublic"`
}
