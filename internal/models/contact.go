package models

import (
	"time"
)

// Contact is a directed address-book entry. The relation is not symmetric:
// A adding B does not add A to B's contacts.
type Contact struct {
	OwnerID   string    `json:"-"`
	ContactID string    `json:"contactId"`
	Alias     string    `json:"alias,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}

// ContactView is a contact entry enriched with the referenced agent's
// directory-safe fields. Agent is nil when the agent has been deleted.
type ContactView struct {
	Contact
	Agent *DirectoryEntry `json:"contact"`
}
