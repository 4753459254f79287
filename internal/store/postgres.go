package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aetos53t/ping/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		public_key TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		capabilities JSONB NOT NULL DEFAULT '[]',
		webhook_url TEXT NOT NULL DEFAULT '',
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		payload JSONB NOT NULL DEFAULT 'null',
		reply_to TEXT NOT NULL DEFAULT '',
		ts BIGINT NOT NULL,
		signature TEXT NOT NULL,
		delivered BOOLEAN NOT NULL DEFAULT FALSE,
		acknowledged BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS contacts (
		owner_id TEXT NOT NULL,
		contact_id TEXT NOT NULL,
		alias TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (owner_id, contact_id)
	);

	CREATE INDEX IF NOT EXISTS idx_agents_is_public ON agents(is_public);
	CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_id, acknowledged);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(from_id, to_id);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agents (id, public_key, name, provider, capabilities, webhook_url, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, agent.ID, agent.PublicKey, agent.Name, agent.Provider, agent.Capabilities,
		agent.WebhookURL, agent.IsPublic, agent.CreatedAt, agent.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return ErrDuplicateKey
	}
	return err
}

func (s *PostgresStore) GetAgentByID(ctx context.Context, id string) (*models.Agent, error) {
	return s.scanAgent(s.pool.QueryRow(ctx, `
		SELECT id, public_key, name, provider, capabilities, webhook_url, is_public, created_at, updated_at
		FROM agents WHERE id = $1
	`, id))
}

func (s *PostgresStore) GetAgentByPublicKey(ctx context.Context, publicKey string) (*models.Agent, error) {
	return s.scanAgent(s.pool.QueryRow(ctx, `
		SELECT id, public_key, name, provider, capabilities, webhook_url, is_public, created_at, updated_at
		FROM agents WHERE public_key = $1
	`, publicKey))
}

func (s *PostgresStore) scanAgent(row pgx.Row) (*models.Agent, error) {
	agent := &models.Agent{}
	err := row.Scan(
		&agent.ID,
		&agent.PublicKey,
		&agent.Name,
		&agent.Provider,
		&agent.Capabilities,
		&agent.WebhookURL,
		&agent.IsPublic,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return agent, nil
}

func (s *PostgresStore) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE agents
		SET name = $1, provider = $2, capabilities = $3, webhook_url = $4, is_public = $5, updated_at = $6
		WHERE id = $7
	`, agent.Name, agent.Provider, agent.Capabilities, agent.WebhookURL,
		agent.IsPublic, time.Now().UTC(), agent.ID)
	return err
}

func (s *PostgresStore) DeleteAgent(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListPublicAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, public_key, name, provider, capabilities, webhook_url, is_public, created_at, updated_at
		FROM agents
		WHERE is_public = TRUE
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var agent models.Agent
		err := rows.Scan(
			&agent.ID,
			&agent.PublicKey,
			&agent.Name,
			&agent.Provider,
			&agent.Capabilities,
			&agent.WebhookURL,
			&agent.IsPublic,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	payload := []byte("null")
	if len(msg.Payload) > 0 {
		payload = msg.Payload
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, kind, from_id, to_id, payload, reply_to, ts, signature, delivered, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, msg.ID, string(msg.Kind), msg.From, msg.To, payload, msg.ReplyTo,
		msg.Timestamp, msg.Signature, msg.Delivered, msg.Acknowledged)
	return err
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := s.scanMessage(s.pool.QueryRow(ctx, `
		SELECT id, kind, from_id, to_id, payload, reply_to, ts, signature, delivered, acknowledged
		FROM messages WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func (s *PostgresStore) InboxMessages(ctx context.Context, agentID string, includeAcknowledged bool) ([]models.Message, error) {
	query := `
		SELECT id, kind, from_id, to_id, payload, reply_to, ts, signature, delivered, acknowledged
		FROM messages
		WHERE to_id = $1`
	if !includeAcknowledged {
		query += ` AND acknowledged = FALSE`
	}
	query += ` ORDER BY id DESC`

	rows, err := s.pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectMessages(rows)
}

func (s *PostgresStore) ConversationMessages(ctx context.Context, agentA, agentB string, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, from_id, to_id, payload, reply_to, ts, signature, delivered, acknowledged
		FROM messages
		WHERE (from_id = $1 AND to_id = $2) OR (from_id = $2 AND to_id = $1)
		ORDER BY id DESC
		LIMIT $3
	`, agentA, agentB, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectMessages(rows)
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, messageID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET delivered = TRUE WHERE id = $1
	`, messageID)
	return err
}

func (s *PostgresStore) MarkAcknowledged(ctx context.Context, messageID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET acknowledged = TRUE WHERE id = $1
	`, messageID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CreateContact(ctx context.Context, contact *models.Contact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contacts (owner_id, contact_id, alias, notes, added_at)
		VALUES ($1, $2, $3, $4, $5)
	`, contact.OwnerID, contact.ContactID, contact.Alias, contact.Notes, contact.AddedAt)
	return err
}

func (s *PostgresStore) GetContact(ctx context.Context, ownerID, contactID string) (*models.Contact, error) {
	contact := &models.Contact{}
	err := s.pool.QueryRow(ctx, `
		SELECT owner_id, contact_id, alias, notes, added_at
		FROM contacts WHERE owner_id = $1 AND contact_id = $2
	`, ownerID, contactID).Scan(
		&contact.OwnerID,
		&contact.ContactID,
		&contact.Alias,
		&contact.Notes,
		&contact.AddedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return contact, nil
}

func (s *PostgresStore) DeleteContact(ctx context.Context, ownerID, contactID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM contacts WHERE owner_id = $1 AND contact_id = $2
	`, ownerID, contactID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, ownerID string) ([]models.Contact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner_id, contact_id, alias, notes, added_at
		FROM contacts WHERE owner_id = $1
		ORDER BY added_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var contact models.Contact
		err := rows.Scan(
			&contact.OwnerID,
			&contact.ContactID,
			&contact.Alias,
			&contact.Notes,
			&contact.AddedAt,
		)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

func (s *PostgresStore) scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	var kind string
	err := row.Scan(
		&msg.ID,
		&kind,
		&msg.From,
		&msg.To,
		&msg.Payload,
		&msg.ReplyTo,
		&msg.Timestamp,
		&msg.Signature,
		&msg.Delivered,
		&msg.Acknowledged,
	)
	if err != nil {
		return nil, err
	}
	msg.Kind = models.Kind(kind)
	return msg, nil
}

func (s *PostgresStore) collectMessages(rows pgx.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}
