// Package store mirrors the flat index into PostgreSQL so the pgvector
// extension can serve the same exact L2 searches.
package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/printdesk/pkg/index"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	Dimension  int
	BatchSize  int
}

// VectorStore keeps one row per corpus position. It satisfies the same
// search contract as index.Flat: positions plus squared L2 distances.
type VectorStore struct {
	config  VectorStoreConfig
	pool    *pgxpool.Pool
	table   string
	entries []index.Entry
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "chunk_embeddings"
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", config.Dimension)
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if _, err := vs.pool.Exec(ctx, vs.createTableSQL(vs.table)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// No approximate index is created: search must stay exact.
func (vs *VectorStore) createTableSQL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			position   INTEGER PRIMARY KEY,
			chunk_id   TEXT NOT NULL,
			title      TEXT,
			source_url TEXT,
			category   TEXT,
			content    TEXT,
			embedding  vector(%d) NOT NULL
		)`, table, vs.config.Dimension)
}

// Publish replaces the stored vectors with a new set in one transaction. The
// rows are written to a staging table that is swapped in on commit, so
// readers see either the old set or the new one.
func (vs *VectorStore) Publish(ctx context.Context, vectors [][]float32, entries []index.Entry) error {
	if len(vectors) != len(entries) {
		return fmt.Errorf("%d vectors but %d entries", len(vectors), len(entries))
	}
	for i, v := range vectors {
		if len(v) != vs.config.Dimension {
			return fmt.Errorf("%w: vector %d has %d values, want %d", index.ErrDimensionMismatch, i, len(v), vs.config.Dimension)
		}
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	staging := pgx.Identifier{vs.config.TableName + "_staging"}.Sanitize()
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("failed to drop staging table: %w", err)
	}
	if _, err := tx.Exec(ctx, vs.createTableSQL(staging)); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (position, chunk_id, title, source_url, category, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, staging)

	for start := 0; start < len(vectors); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(vectors))
		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			e := entries[i]
			batch.Queue(stmt,
				i,
				e.Meta.ID,
				sanitizeUTF8(e.Meta.Title),
				e.Meta.SourceURL,
				e.Meta.Category,
				sanitizeUTF8(e.Text),
				pgvector.NewVector(vectors[i]),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert rows %d-%d: %w", start, end-1, err)
		}
	}

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+vs.table); err != nil {
		return fmt.Errorf("failed to drop previous table: %w", err)
	}
	rename := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", staging, pgx.Identifier{vs.config.TableName}.Sanitize())
	if _, err := tx.Exec(ctx, rename); err != nil {
		return fmt.Errorf("failed to swap tables: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	vs.entries = entries
	return nil
}

// Load reads the position-ordered metadata and checks the stored dimension.
// It must be called before the store serves searches.
func (vs *VectorStore) Load(ctx context.Context) error {
	var dim int
	err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT vector_dims(embedding) FROM %s LIMIT 1", vs.table)).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: table %s is empty", index.ErrMissingIndex, vs.config.TableName)
	}
	if err != nil {
		return fmt.Errorf("failed to read vector dimension: %w", err)
	}
	if dim != vs.config.Dimension {
		return fmt.Errorf("%w: stored %d, configured %d", index.ErrDimensionMismatch, dim, vs.config.Dimension)
	}

	rows, err := vs.pool.Query(ctx, fmt.Sprintf(`
		SELECT position, chunk_id, coalesce(title, ''), coalesce(source_url, ''), coalesce(category, '')
		FROM %s ORDER BY position`, vs.table))
	if err != nil {
		return fmt.Errorf("failed to load entries: %w", err)
	}
	defer rows.Close()

	var entries []index.Entry
	for rows.Next() {
		var (
			pos int
			e   index.Entry
		)
		if err := rows.Scan(&pos, &e.Meta.ID, &e.Meta.Title, &e.Meta.SourceURL, &e.Meta.Category); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		if pos != len(entries) {
			return fmt.Errorf("%w: position %d missing", index.ErrCorruptIndex, len(entries))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load entries: %w", err)
	}

	vs.entries = entries
	return nil
}

// Search returns the k nearest positions by squared L2 distance.
func (vs *VectorStore) Search(ctx context.Context, query []float32, k int) ([]index.Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(query) != vs.config.Dimension {
		return nil, fmt.Errorf("%w: query has %d values, want %d", index.ErrDimensionMismatch, len(query), vs.config.Dimension)
	}

	q := fmt.Sprintf(`
		SELECT position, embedding <-> $1 AS distance
		FROM %s
		ORDER BY distance, position
		LIMIT $2`, vs.table)

	rows, err := vs.pool.Query(ctx, q, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	defer rows.Close()

	hits := make([]index.Hit, 0, k)
	for rows.Next() {
		var (
			pos  int
			dist float64
		)
		if err := rows.Scan(&pos, &dist); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hits = append(hits, index.Hit{Position: pos, Distance: float32(dist * dist)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	return hits, nil
}

// Len is the number of rows seen by the last Load or Publish.
func (vs *VectorStore) Len() int { return len(vs.entries) }

func (vs *VectorStore) Dimension() int { return vs.config.Dimension }

func (vs *VectorStore) Entries() []index.Entry { return vs.entries }

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeUTF8 drops invalid bytes; PostgreSQL rejects them in TEXT columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
