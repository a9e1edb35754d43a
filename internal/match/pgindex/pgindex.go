// Package pgindex persists trigger-phrase embeddings in PostgreSQL with
// pgvector, so the matcher cache can be warmed at startup without re-embedding
// an unchanged catalog.
//
// The table is keyed by (phrase, model): changing the embedding model
// invalidates nothing but simply misses, and the new vectors are upserted on
// the next run.
package pgindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Entry is one stored phrase embedding.
type Entry struct {
	Phrase    string
	Embedding []float32
}

// Index is a pgvector-backed phrase embedding store. All methods are safe
// for concurrent use.
type Index struct {
	pool *pgxpool.Pool
}

// New returns an Index over the given connection pool. The pool is owned by
// the caller.
func New(pool *pgxpool.Pool) *Index {
	return &Index{pool: pool}
}

// EnsureSchema creates the extension and table if they do not exist. dims is
// the embedding dimensionality of the configured model.
func (x *Index) EnsureSchema(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("pgindex: invalid embedding dimensions %d", dims)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS trigger_phrases (
			phrase    text NOT NULL,
			model     text NOT NULL,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (phrase, model)
		)`, dims),
	}
	for _, q := range stmts {
		if _, err := x.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("pgindex: ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert stores or replaces the embeddings for the given phrases under model.
func (x *Index) Upsert(ctx context.Context, model string, entries []Entry) error {
	const q = `
		INSERT INTO trigger_phrases (phrase, model, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (phrase, model) DO UPDATE SET
		    embedding = EXCLUDED.embedding`

	for _, e := range entries {
		vec := pgvector.NewVector(e.Embedding)
		if _, err := x.pool.Exec(ctx, q, e.Phrase, model, vec); err != nil {
			return fmt.Errorf("pgindex: upsert phrase %q: %w", e.Phrase, err)
		}
	}
	return nil
}

// LoadAll returns every stored embedding for model, for warming the matcher
// cache at startup.
func (x *Index) LoadAll(ctx context.Context, model string) ([]Entry, error) {
	const q = `
		SELECT phrase, embedding
		FROM   trigger_phrases
		WHERE  model = $1`

	rows, err := x.pool.Query(ctx, q, model)
	if err != nil {
		return nil, fmt.Errorf("pgindex: load phrases: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e   Entry
			vec pgvector.Vector
		)
		if err := row.Scan(&e.Phrase, &vec); err != nil {
			return Entry{}, err
		}
		e.Embedding = vec.Slice()
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgindex: scan rows: %w", err)
	}
	return entries, nil
}
