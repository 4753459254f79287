package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/aetos53t/ping/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/ping.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/ping.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		public_key TEXT UNIQUE NOT NULL,
		name TEXT DEFAULT '',
		provider TEXT DEFAULT '',
		capabilities TEXT DEFAULT '[]',
		webhook_url TEXT DEFAULT '',
		is_public INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		payload TEXT DEFAULT 'null',
		reply_to TEXT DEFAULT '',
		ts INTEGER NOT NULL,
		signature TEXT NOT NULL,
		delivered INTEGER DEFAULT 0,
		acknowledged INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS contacts (
		owner_id TEXT NOT NULL,
		contact_id TEXT NOT NULL,
		alias TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner_id, contact_id)
	);

	CREATE INDEX IF NOT EXISTS idx_agents_public_key ON agents(public_key);
	CREATE INDEX IF NOT EXISTS idx_agents_is_public ON agents(is_public);
	CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_id, acknowledged);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(from_id, to_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	caps, err := json.Marshal(agent.Capabilities)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, public_key, name, provider, capabilities, webhook_url, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, agent.ID, agent.PublicKey, agent.Name, agent.Provider, string(caps),
		agent.WebhookURL, boolToInt(agent.IsPublic), agent.CreatedAt, agent.UpdatedAt)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicateKey
	}
	return err
}

func (s *SQLiteStore) GetAgentByID(ctx context.Context, id string) (*models.Agent, error) {
	return s.scanAgent(s.db.QueryRowContext(ctx, `
		SELECT id, public_key, name, provider, capabilities, webhook_url, is_public, created_at, updated_at
		FROM agents WHERE id = ?
	`, id))
}

func (s *SQLiteStore) GetAgentByPublicKey(ctx context.Context, publicKey string) (*models.Agent, error) {
	return s.scanAgent(s.db.QueryRowContext(ctx, `
		SELECT id, public_key, name, provider, capabilities, webhook_url, is_public, created_at, updated_at
		FROM agents WHERE public_key = ?
	`, publicKey))
}

func (s *SQLiteStore) scanAgent(row *sql.Row) (*models.Agent, error) {
	agent := &models.Agent{}
	var caps string
	var isPublic int
	err := row.Scan(
		&agent.ID,
		&agent.PublicKey,
		&agent.Name,
		&agent.Provider,
		&caps,
		&agent.WebhookURL,
		&isPublic,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(caps), &agent.Capabilities); err != nil {
		return nil, err
	}
	agent.IsPublic = isPublic == 1
	return agent, nil
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	caps, err := json.Marshal(agent.Capabilities)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE agents
		SET name = ?, provider = ?, capabilities = ?, webhook_url = ?, is_public = ?, updated_at = ?
		WHERE id = ?
	`, agent.Name, agent.Provider, string(caps), agent.WebhookURL,
		boolToInt(agent.IsPublic), time.Now().UTC(), agent.ID)
	return err
}

func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListPublicAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, public_key, name, provider, capabilities, webhook_url, is_public, created_at, updated_at
		FROM agents
		WHERE is_public = 1
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var agent models.Agent
		var caps string
		var isPublic int
		err := rows.Scan(
			&agent.ID,
			&agent.PublicKey,
			&agent.Name,
			&agent.Provider,
			&caps,
			&agent.WebhookURL,
			&isPublic,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(caps), &agent.Capabilities); err != nil {
			return nil, err
		}
		agent.IsPublic = isPublic == 1
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	payload := "null"
	if len(msg.Payload) > 0 {
		payload = string(msg.Payload)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, kind, from_id, to_id, payload, reply_to, ts, signature, delivered, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, string(msg.Kind), msg.From, msg.To, payload, msg.ReplyTo,
		msg.Timestamp, msg.Signature, boolToInt(msg.Delivered), boolToInt(msg.Acknowledged))
	return err
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, from_id, to_id, payload, reply_to, ts, signature, delivered, acknowledged
		FROM messages WHERE id = ?
	`, id)

	msg, err := scanMessageRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func (s *SQLiteStore) InboxMessages(ctx context.Context, agentID string, includeAcknowledged bool) ([]models.Message, error) {
	query := `
		SELECT id, kind, from_id, to_id, payload, reply_to, ts, signature, delivered, acknowledged
		FROM messages
		WHERE to_id = ?`
	if !includeAcknowledged {
		query += ` AND acknowledged = 0`
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (s *SQLiteStore) ConversationMessages(ctx context.Context, agentA, agentB string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, from_id, to_id, payload, reply_to, ts, signature, delivered, acknowledged
		FROM messages
		WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)
		ORDER BY id DESC
		LIMIT ?
	`, agentA, agentB, agentB, agentA, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (s *SQLiteStore) MarkDelivered(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET delivered = 1 WHERE id = ?
	`, messageID)
	return err
}

func (s *SQLiteStore) MarkAcknowledged(ctx context.Context, messageID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET acknowledged = 1 WHERE id = ?
	`, messageID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) CreateContact(ctx context.Context, contact *models.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (owner_id, contact_id, alias, notes, added_at)
		VALUES (?, ?, ?, ?, ?)
	`, contact.OwnerID, contact.ContactID, contact.Alias, contact.Notes, contact.AddedAt)
	return err
}

func (s *SQLiteStore) GetContact(ctx context.Context, ownerID, contactID string) (*models.Contact, error) {
	contact := &models.Contact{}
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, contact_id, alias, notes, added_at
		FROM contacts WHERE owner_id = ? AND contact_id = ?
	`, ownerID, contactID).Scan(
		&contact.OwnerID,
		&contact.ContactID,
		&contact.Alias,
		&contact.Notes,
		&contact.AddedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return contact, nil
}

func (s *SQLiteStore) DeleteContact(ctx context.Context, ownerID, contactID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM contacts WHERE owner_id = ? AND contact_id = ?
	`, ownerID, contactID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListContacts(ctx context.Context, ownerID string) ([]models.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, contact_id, alias, notes, added_at
		FROM contacts WHERE owner_id = ?
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

// scanMessageRow scans one message row via the given scan function.
func scanMessageRow(scan func(dest ...any) error) (*models.Message, error) {
	msg := &models.Message{}
	var kind, payload string
	var delivered, acknowledged int
	err := scan(
		&msg.ID,
		&kind,
		&msg.From,
		&msg.To,
		&payload,
		&msg.ReplyTo,
		&msg.Timestamp,
		&msg.Signature,
		&delivered,
		&acknowledged,
	)
	if err != nil {
		return nil, err
	}
	msg.Kind = models.Kind(kind)
	msg.Payload = []byte(payload)
	msg.Delivered = delivered == 1
	msg.Acknowledged = acknowledged == 1
	return msg, nil
}

func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		msg, err := scanMessageRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
