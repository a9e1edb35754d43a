// Package history persists chat conversations in PostgreSQL.
//
// Each Chat row is one message in a conversation thread: ParentID links a
// reply to the message it answers, so a conversation is the chain from a
// root message down. Archived threads stay queryable but are excluded from
// default listings.
//
// A nil *Store is valid and turns every operation into a no-op, so the
// assistant runs unchanged when no database is configured.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound marks a chat ID with no row.
var ErrNotFound = errors.New("history: chat not found")

// Chat is one persisted conversation message.
type Chat struct {
	ID        int64
	ParentID  *int64
	Role      string
	Content   string
	Archived  bool
	CreatedAt time.Time
}

// Store is the pgx-backed chat record store. All methods are safe for
// concurrent use and tolerate a nil receiver.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and returns a ready Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying connection pool so sibling stores can share
// the same database connection. Nil on a nil or unconnected Store.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close releases the pool. Safe on a nil Store.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping probes the database. Safe on a nil Store, where it reports healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the chats table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	const q = `
		CREATE TABLE IF NOT EXISTS chats (
		    id         BIGSERIAL PRIMARY KEY,
		    parent_id  BIGINT REFERENCES chats(id) ON DELETE CASCADE,
		    role       TEXT NOT NULL,
		    content    TEXT NOT NULL,
		    archived   BOOLEAN NOT NULL DEFAULT false,
		    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS chats_parent_idx ON chats (parent_id);
		CREATE INDEX IF NOT EXISTS chats_created_idx ON chats (created_at)`

	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

// Create inserts one message and returns it with ID and CreatedAt filled.
// On a nil Store the input is returned unchanged.
func (s *Store) Create(ctx context.Context, chat Chat) (Chat, error) {
	if s == nil || s.pool == nil {
		return chat, nil
	}
	const q = `
		INSERT INTO chats (parent_id, role, content, archived)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, q, chat.ParentID, chat.Role, chat.Content, chat.Archived).
		Scan(&chat.ID, &chat.CreatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("history: create: %w", err)
	}
	return chat, nil
}

// Get returns one message by ID.
func (s *Store) Get(ctx context.Context, id int64) (Chat, error) {
	if s == nil || s.pool == nil {
		return Chat{}, ErrNotFound
	}
	const q = `
		SELECT id, parent_id, role, content, archived, created_at
		FROM   chats
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return Chat{}, fmt.Errorf("history: get: %w", err)
	}
	chat, err := pgx.CollectOneRow(rows, scanChat)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, fmt.Errorf("history: get: %w", err)
	}
	return chat, nil
}

// Thread returns a root message and all of its descendants, oldest first.
func (s *Store) Thread(ctx context.Context, rootID int64) ([]Chat, error) {
	if s == nil || s.pool == nil {
		return []Chat{}, nil
	}
	const q = `
		WITH RECURSIVE thread AS (
		    SELECT id, parent_id, role, content, archived, created_at
		    FROM   chats WHERE id = $1
		    UNION ALL
		    SELECT c.id, c.parent_id, c.role, c.content, c.archived, c.created_at
		    FROM   chats c JOIN thread t ON c.parent_id = t.id
		)
		SELECT id, parent_id, role, content, archived, created_at
		FROM   thread
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q, rootID)
	if err != nil {
		return nil, fmt.Errorf("history: thread: %w", err)
	}
	return collectChats(rows, "thread")
}

// List returns root messages (no parent), newest first. Archived threads
// are included only when includeArchived is set.
func (s *Store) List(ctx context.Context, includeArchived bool, limit int) ([]Chat, error) {
	if s == nil || s.pool == nil {
		return []Chat{}, nil
	}
	q := `
		SELECT id, parent_id, role, content, archived, created_at
		FROM   chats
		WHERE  parent_id IS NULL`
	if !includeArchived {
		q += `
		  AND  NOT archived`
	}
	q += `
		ORDER  BY created_at DESC`

	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return collectChats(rows, "list")
}

// SetArchived flags or unflags a root message and its whole thread.
func (s *Store) SetArchived(ctx context.Context, rootID int64, archived bool) error {
	if s == nil || s.pool == nil {
		return nil
	}
	const q = `
		WITH RECURSIVE thread AS (
		    SELECT id FROM chats WHERE id = $1
		    UNION ALL
		    SELECT c.id FROM chats c JOIN thread t ON c.parent_id = t.id
		)
		UPDATE chats SET archived = $2 WHERE id IN (SELECT id FROM thread)`

	tag, err := s.pool.Exec(ctx, q, rootID, archived)
	if err != nil {
		return fmt.Errorf("history: set archived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a message and, via the cascade, its descendants.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if s == nil || s.pool == nil {
		return nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanChat(row pgx.CollectableRow) (Chat, error) {
	var c Chat
	err := row.Scan(&c.ID, &c.ParentID, &c.Role, &c.Content, &c.Archived, &c.CreatedAt)
	return c, err
}

func collectChats(rows pgx.Rows, op string) ([]Chat, error) {
	chats, err := pgx.CollectRows(rows, scanChat)
	if err != nil {
		return nil, fmt.Errorf("history: %s: scan rows: %w", op, err)
	}
	if chats == nil {
		chats = []Chat{}
	}
	return chats, nil
}
