package store

import (
	"context"
	"errors"

	"github.com/aetos53t/ping/internal/models"
)

// ErrDuplicateKey reports a conditional insert losing to an existing row
// holding the same public key. Every backend returns it from CreateAgent so
// concurrent registrations race at the store, not above it.
var ErrDuplicateKey = errors.New("public key already registered")

// DataStore is the persistence interface for agents, messages and contacts.
// MemoryStore, SQLiteStore and PostgresStore implement it; business logic
// never branches on the backend.
//
// Lookups return (nil, nil) when the entity does not exist. Each operation is
// atomic with respect to other operations on the same entity; no multi-entity
// transaction spans agents, messages and contacts.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Agent operations. CreateAgent is a conditional insert: it fails with
	// ErrDuplicateKey when the public key is already registered.
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgentByID(ctx context.Context, id string) (*models.Agent, error)
	GetAgentByPublicKey(ctx context.Context, publicKey string) (*models.Agent, error)
	UpdateAgent(ctx context.Context, agent *models.Agent) error
	DeleteAgent(ctx context.Context, id string) (bool, error)
	ListPublicAgents(ctx context.Context) ([]models.Agent, error)

	// Message operations. Ordering is newest first by message id; ULIDs
	// encode persist time, so this is creation order.
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	InboxMessages(ctx context.Context, agentID string, includeAcknowledged bool) ([]models.Message, error)
	ConversationMessages(ctx context.Context, agentA, agentB string, limit int) ([]models.Message, error)
	MarkDelivered(ctx context.Context, messageID string) error
	MarkAcknowledged(ctx context.Context, messageID string) (bool, error)

	// Contact operations
	CreateContact(ctx context.Context, contact *models.Contact) error
	GetContact(ctx context.Context, ownerID, contactID string) (*models.Contact, error)
	DeleteContact(ctx context.Context, ownerID, contactID string) (bool, error)
	ListContacts(ctx context.Context, ownerID string) ([]models.Contact, error)
}
