package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aetos53t/ping/internal/crypto"
	"github.com/aetos53t/ping/internal/delivery"
	"github.com/aetos53t/ping/internal/metrics"
	"github.com/aetos53t/ping/internal/models"
	"github.com/aetos53t/ping/internal/store"
)

// DefaultConversationLimit bounds conversation history when the caller does
// not ask for a specific limit.
const DefaultConversationLimit = 50

// Service is the message exchange core. It is the only writer of agent,
// message and contact rows; the dispatcher records delivery outcomes through
// the store's MarkDelivered and never mutates messages itself.
type Service struct {
	store      store.DataStore
	dispatcher *delivery.Dispatcher
	replay     *store.ReplayGuard // nil disables replay protection
	logger     zerolog.Logger
}

// NewService wires the core over a storage backend and a dispatcher.
func NewService(st store.DataStore, dispatcher *delivery.Dispatcher, replay *store.ReplayGuard, logger zerolog.Logger) *Service {
	return &Service{store: st, dispatcher: dispatcher, replay: replay, logger: logger}
}

// RegisterInput holds the fields of a registration request.
type RegisterInput struct {
	PublicKey    string
	Name         string
	Provider     string
	Capabilities []string
	WebhookURL   string
	IsPublic     bool
}

// RegisterAgent creates a new agent identity. The public key is normalized
// to lowercase hex and must not already be registered; on conflict the
// returned error carries the existing agent's id.
func (s *Service) RegisterAgent(ctx context.Context, input RegisterInput) (*models.Agent, error) {
	publicKey, err := crypto.NormalizePublicKey(input.PublicKey)
	if err != nil {
		return nil, &ValidationError{Field: "publicKey", Reason: err.Error()}
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:           crypto.NewAgentID(),
		PublicKey:    publicKey,
		Name:         input.Name,
		Provider:     input.Provider,
		Capabilities: input.Capabilities,
		WebhookURL:   input.WebhookURL,
		IsPublic:     input.IsPublic,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if agent.Capabilities == nil {
		agent.Capabilities = []string{}
	}

	// CreateAgent is a conditional insert: the store, not a prior lookup,
	// decides uniqueness, so two racing registrations cannot both win.
	if err := s.store.CreateAgent(ctx, agent); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			existing, lookupErr := s.store.GetAgentByPublicKey(ctx, publicKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			conflict := &ConflictError{Resource: "publicKey"}
			if existing != nil {
				conflict.ExistingID = existing.ID
			}
			return nil, conflict
		}
		return nil, err
	}

	metrics.AgentsRegistered.Inc()
	s.logger.Info().Str("agent_id", agent.ID).Str("name", agent.Name).Msg("agent registered")
	return agent, nil
}

// GetAgent looks up an agent by id.
func (s *Service) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	agent, err := s.store.GetAgentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, &NotFoundError{Resource: "agent", ID: id}
	}
	return agent, nil
}

// UpdateAgent applies a partial update to the mutable agent fields. The id
// and public key are immutable; unknown fields were already dropped when the
// request body was decoded.
func (s *Service) UpdateAgent(ctx context.Context, id string, update models.AgentUpdate) (*models.Agent, error) {
	agent, err := s.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		agent.Name = *update.Name
	}
	if update.Provider != nil {
		agent.Provider = *update.Provider
	}
	if update.Capabilities != nil {
		agent.Capabilities = *update.Capabilities
		if agent.Capabilities == nil {
			agent.Capabilities = []string{}
		}
	}
	if update.WebhookURL != nil {
		agent.WebhookURL = *update.WebhookURL
	}
	if update.IsPublic != nil {
		agent.IsPublic = *update.IsPublic
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// DeleteAgent removes an agent. Hard delete: existing messages and contact
// entries referencing the agent are kept.
func (s *Service) DeleteAgent(ctx context.Context, id string) error {
	deleted, err := s.store.DeleteAgent(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return &NotFoundError{Resource: "agent", ID: id}
	}
	s.logger.Info().Str("agent_id", id).Msg("agent deleted")
	return nil
}

// SendInput holds the fields of a send request. Timestamp is the
// sender-chosen Unix-ms hint covered by the signature.
type SendInput struct {
	Kind      string
	From      string
	To        string
	Payload   json.RawMessage
	ReplyTo   string
	Timestamp int64
	Signature string
}

// SendResult reports the stored message id and the delivery outcome. A
// polling outcome is still a successful send.
type SendResult struct {
	ID             string `json:"id"`
	Delivered      bool   `json:"delivered"`
	DeliveryMethod string `json:"deliveryMethod"`
}

// SendMessage verifies and persists a message, then attempts push delivery.
// Precondition order: sender exists, recipient exists, signature verifies.
// Delivery failure is not a send failure.
func (s *Service) SendMessage(ctx context.Context, input SendInput) (*SendResult, error) {
	kind, ok := models.ParseKind(input.Kind)
	if !ok {
		return nil, &ValidationError{Field: "type", Reason: "unknown message type"}
	}

	sender, err := s.store.GetAgentByID(ctx, input.From)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, &NotFoundError{Resource: "sender", ID: input.From}
	}

	recipient, err := s.store.GetAgentByID(ctx, input.To)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, &NotFoundError{Resource: "recipient", ID: input.To}
	}

	canonical, err := crypto.CanonicalMessage(input.Kind, input.From, input.To, input.Payload, input.ReplyTo, input.Timestamp)
	if err != nil {
		return nil, &ValidationError{Field: "payload", Reason: err.Error()}
	}
	if !crypto.Verify(canonical, input.Signature, sender.PublicKey) {
		metrics.SignatureFailures.Inc()
		s.logger.Warn().Str("from", input.From).Msg("message signature rejected")
		return nil, &UnauthorizedError{Reason: "signature verification failed"}
	}

	if s.replay != nil && s.replay.Seen(ctx, input.From, input.Signature) {
		return nil, &ConflictError{Resource: "message"}
	}

	msg := &models.Message{
		ID:        crypto.NewMessageID(),
		Kind:      kind,
		From:      input.From,
		To:        input.To,
		Payload:   input.Payload,
		ReplyTo:   input.ReplyTo,
		Timestamp: input.Timestamp,
		Signature: input.Signature,
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	if s.replay != nil {
		s.replay.Record(ctx, input.From, input.Signature)
	}
	metrics.MessagesSent.WithLabelValues(string(kind)).Inc()

	method := s.dispatcher.Dispatch(ctx, msg, recipient)

	return &SendResult{
		ID:             msg.ID,
		Delivered:      msg.Delivered,
		DeliveryMethod: string(method),
	}, nil
}

// Inbox returns messages addressed to the agent, newest first. Fetching
// counts as a delivery channel: every returned message not yet delivered is
// marked delivered.
func (s *Service) Inbox(ctx context.Context, agentID string, includeAcknowledged bool) ([]models.Message, error) {
	if _, err := s.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}

	msgs, err := s.store.InboxMessages(ctx, agentID, includeAcknowledged)
	if err != nil {
		return nil, err
	}

	for i := range msgs {
		if msgs[i].Delivered {
			continue
		}
		if err := s.store.MarkDelivered(ctx, msgs[i].ID); err != nil {
			return nil, err
		}
		msgs[i].Delivered = true
	}
	return msgs, nil
}

// Conversation returns the message history between two agents in either
// direction, newest first, bounded by limit (DefaultConversationLimit when
// limit is not positive).
func (s *Service) Conversation(ctx context.Context, agentID, otherID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultConversationLimit
	}
	return s.store.ConversationMessages(ctx, agentID, otherID, limit)
}

// Acknowledge marks a message acknowledged. Idempotent; the transition is
// terminal and never reverts.
func (s *Service) Acknowledge(ctx context.Context, messageID string) error {
	acked, err := s.store.MarkAcknowledged(ctx, messageID)
	if err != nil {
		return err
	}
	if !acked {
		return &NotFoundError{Resource: "message", ID: messageID}
	}
	metrics.MessagesAcknowledged.Inc()
	return nil
}

// Directory lists every discoverable agent's public-safe fields.
func (s *Service) Directory(ctx context.Context) ([]models.DirectoryEntry, error) {
	return s.SearchDirectory(ctx, "", "", "")
}

// SearchDirectory filters discoverable agents. All filters are conjunctive;
// absent filters are no-ops. The query matches case-insensitively against
// the agent name as a substring.
func (s *Service) SearchDirectory(ctx context.Context, query, capability, provider string) ([]models.DirectoryEntry, error) {
	agents, err := s.store.ListPublicAgents(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	entries := make([]models.DirectoryEntry, 0, len(agents))
	for i := range agents {
		agent := &agents[i]
		if query != "" && !strings.Contains(strings.ToLower(agent.Name), query) {
			continue
		}
		if capability != "" && !hasCapability(agent.Capabilities, capability) {
			continue
		}
		if provider != "" && !strings.EqualFold(agent.Provider, provider) {
			continue
		}
		entries = append(entries, agent.DirectoryEntry())
	}
	return entries, nil
}

func hasCapability(capabilities []string, want string) bool {
	for _, c := range capabilities {
		if c == want {
			return true
		}
	}
	return false
}

// AddContact creates an address-book entry from owner to contact. The
// relation is directed and the (owner, contact) pair is unique.
func (s *Service) AddContact(ctx context.Context, ownerID, contactID, alias, notes string) (*models.Contact, error) {
	if _, err := s.GetAgent(ctx, ownerID); err != nil {
		return nil, err
	}

	target, err := s.store.GetAgentByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, &NotFoundError{Resource: "contact", ID: contactID}
	}

	existing, err := s.store.GetContact(ctx, ownerID, contactID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ConflictError{Resource: "contact"}
	}

	contact := &models.Contact{
		OwnerID:   ownerID,
		ContactID: contactID,
		Alias:     alias,
		Notes:     notes,
		AddedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateContact(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// RemoveContact deletes an address-book entry.
func (s *Service) RemoveContact(ctx context.Context, ownerID, contactID string) error {
	deleted, err := s.store.DeleteContact(ctx, ownerID, contactID)
	if err != nil {
		return err
	}
	if !deleted {
		return &NotFoundError{Resource: "contact", ID: contactID}
	}
	return nil
}

// ListContacts returns the owner's contacts enriched with each referenced
// agent's directory-safe fields. Agent is nil for contacts whose agent has
// since been deleted.
func (s *Service) ListContacts(ctx context.Context, ownerID string) ([]models.ContactView, error) {
	if _, err := s.GetAgent(ctx, ownerID); err != nil {
		return nil, err
	}

	contacts, err := s.store.ListContacts(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	views := make([]models.ContactView, 0, len(contacts))
	for _, contact := range contacts {
		view := models.ContactView{Contact: contact}
		agent, err := s.store.GetAgentByID(ctx, contact.ContactID)
		if err != nil {
			return nil, err
		}
		if agent != nil {
			entry := agent.DirectoryEntry()
			view.Agent = &entry
		}
		views = append(views, view)
	}
	return views, nil
}
