package store

import (
	"context"
	"sort"
	"sync"

	"github.com/aetos53t/ping/internal/models"
)

// MemoryStore is the in-process DataStore backend: plain maps keyed by id
// behind a single RWMutex. Used in development and as the test fixture.
type MemoryStore struct {
	mu       sync.RWMutex
	agents   map[string]*models.Agent
	byKey    map[string]string // publicKey -> agent id
	messages map[string]*models.Message
	contacts map[string]map[string]*models.Contact // ownerID -> contactID -> contact
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:   make(map[string]*models.Agent),
		byKey:    make(map[string]string),
		messages: make(map[string]*models.Message),
		contacts: make(map[string]map[string]*models.Contact),
	}
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() {}

// Ping always succeeds for the in-memory backend.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock: a racing create may have claimed the
	// key since the caller's lookup.
	if _, taken := s.byKey[agent.PublicKey]; taken {
		return ErrDuplicateKey
	}

	cp := *agent
	s.agents[agent.ID] = &cp
	s.byKey[agent.PublicKey] = agent.ID
	return nil
}

func (s *MemoryStore) GetAgentByID(ctx context.Context, id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, nil
	}
	cp := *agent
	return &cp, nil
}

func (s *MemoryStore) GetAgentByPublicKey(ctx context.Context, publicKey string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[publicKey]
	if !ok {
		return nil, nil
	}
	cp := *s.agents[id]
	return &cp, nil
}

func (s *MemoryStore) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *agent
	s.agents[agent.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteAgent(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[id]
	if !ok {
		return false, nil
	}
	delete(s.byKey, agent.PublicKey)
	delete(s.agents, id)
	return true, nil
}

func (s *MemoryStore) ListPublicAgents(ctx context.Context) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var agents []models.Agent
	for _, agent := range s.agents {
		if agent.IsPublic {
			agents = append(agents, *agent)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (s *MemoryStore) InboxMessages(ctx context.Context, agentID string, includeAcknowledged bool) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []models.Message
	for _, msg := range s.messages {
		if msg.To != agentID {
			continue
		}
		if !includeAcknowledged && msg.Acknowledged {
			continue
		}
		msgs = append(msgs, *msg)
	}
	sortNewestFirst(msgs)
	return msgs, nil
}

func (s *MemoryStore) ConversationMessages(ctx context.Context, agentA, agentB string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []models.Message
	for _, msg := range s.messages {
		if (msg.From == agentA && msg.To == agentB) || (msg.From == agentB && msg.To == agentA) {
			msgs = append(msgs, *msg)
		}
	}
	sortNewestFirst(msgs)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *MemoryStore) MarkDelivered(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, ok := s.messages[messageID]; ok {
		msg.Delivered = true
	}
	return nil
}

func (s *MemoryStore) MarkAcknowledged(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return false, nil
	}
	msg.Acknowledged = true
	return true, nil
}

func (s *MemoryStore) CreateContact(ctx context.Context, contact *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[contact.OwnerID]; !ok {
		s.contacts[contact.OwnerID] = make(map[string]*models.Contact)
	}
	cp := *contact
	s.contacts[contact.OwnerID][contact.ContactID] = &cp
	return nil
}

func (s *MemoryStore) GetContact(ctx context.Context, ownerID, contactID string) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contact, ok := s.contacts[ownerID][contactID]
	if !ok {
		return nil, nil
	}
	cp := *contact
	return &cp, nil
}

func (s *MemoryStore) DeleteContact(ctx context.Context, ownerID, contactID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[ownerID][contactID]; !ok {
		return false, nil
	}
	delete(s.contacts[ownerID], contactID)
	if len(s.contacts[ownerID]) == 0 {
		delete(s.contacts, ownerID)
	}
	return true, nil
}

func (s *MemoryStore) ListContacts(ctx context.Context, ownerID string) ([]models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var contacts []models.Contact
	for _, contact := range s.contacts[ownerID] {
		contacts = append(contacts, *contact)
	}
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].AddedAt.Before(contacts[j].AddedAt)
	})
	return contacts, nil
}

// sortNewestFirst orders messages by id descending. Message ids are ULIDs,
// so lexicographic order is persist order.
func sortNewestFirst(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
}
