package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	sqlite_vec.Auto()
}

// VecStore implements Store using SQLite with sqlite-vec for vector search.
type VecStore struct {
	db        *sql.DB
	path      string
	dimension int
}

// VecConfig configures the sqlite-vec store.
type VecConfig struct {
	Path      string
	Dimension int
}

// NewVecStore opens (creating if needed) a sqlite-vec chunk store.
func NewVecStore(cfg VecConfig) (*VecStore, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vector store requires a positive dimension, got %d", cfg.Dimension)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &VecStore{db: db, path: cfg.Path, dimension: cfg.Dimension}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *VecStore) initSchema() error {
	var vecVersion string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fmt.Errorf("sqlite-vec not loaded: %w", err)
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS chunks (
		id            TEXT PRIMARY KEY,
		content       TEXT NOT NULL,
		source        TEXT NOT NULL,
		heading       TEXT,
		chunk_hash    TEXT NOT NULL,
		heading_level INTEGER DEFAULT 0,
		start_line    INTEGER DEFAULT 0,
		end_line      INTEGER DEFAULT 0,
		doc_type      TEXT NOT NULL DEFAULT 'markdown',
		created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
		id TEXT PRIMARY KEY,
		embedding FLOAT[%d]
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
	CREATE INDEX IF NOT EXISTS idx_chunks_hash ON chunks(chunk_hash);
	`, s.dimension)

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RequiresVectors reports that this backend searches by embedding.
func (s *VecStore) RequiresVectors() bool { return true }

// Upsert replaces any records sharing a chunk hash, then inserts the new ones.
func (s *VecStore) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	hashes := make([]string, len(records))
	for i, r := range records {
		hashes[i] = r.Hash
	}
	if err := s.DeleteByHashes(ctx, hashes); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range records {
		r := &records[i]
		if len(r.Embedding) != s.dimension {
			return 0, fmt.Errorf("record %s: embedding dimension %d, store expects %d", r.Hash, len(r.Embedding), s.dimension)
		}
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.DocType == "" {
			r.DocType = DocTypeMarkdown
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (id, content, source, heading, chunk_hash, heading_level, start_line, end_line, doc_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.Content, r.Source, r.Heading, r.Hash, r.HeadingLevel, r.StartLine, r.EndLine, r.DocType)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk: %w", err)
		}

		blob, err := sqlite_vec.SerializeFloat32(r.Embedding)
		if err != nil {
			return 0, fmt.Errorf("failed to serialize embedding: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO chunk_vectors (id, embedding) VALUES (?, ?)`, r.ID, blob)
		if err != nil {
			return 0, fmt.Errorf("failed to insert embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Search performs a KNN scan over chunk vectors.
func (s *VecStore) Search(ctx context.Context, q Query) ([]Result, error) {
	if len(q.Embedding) != s.dimension {
		return nil, fmt.Errorf("query embedding dimension %d, store expects %d", len(q.Embedding), s.dimension)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	blob, err := sqlite_vec.SerializeFloat32(q.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	// Over-fetch so post-scan filters still fill topK.
	k := topK
	if q.DocType != "" || q.Source != "" {
		k = topK * 4
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.id, c.content, c.source, c.heading, c.chunk_hash,
			c.heading_level, c.start_line, c.end_line, c.doc_type,
			v.distance
		FROM chunk_vectors v
		JOIN chunks c ON v.id = c.id
		WHERE v.embedding MATCH ?
		  AND k = ?
		ORDER BY v.distance
	`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var heading sql.NullString
		var distance float32

		err := rows.Scan(
			&r.ID, &r.Content, &r.Source, &heading, &r.Hash,
			&r.HeadingLevel, &r.StartLine, &r.EndLine, &r.DocType,
			&distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Heading = heading.String

		if q.DocType != "" && r.DocType != q.DocType {
			continue
		}
		if q.Source != "" && r.Source != q.Source {
			continue
		}

		// L2 distance, lower is better; normalize to a 0-1 score.
		if distance < 0 {
			distance = 0
		}
		r.Score = 1.0 / (1.0 + distance)

		results = append(results, r)
		if len(results) >= topK {
			break
		}
	}
	return results, rows.Err()
}

// List enumerates stored chunks, newest first.
func (s *VecStore) List(ctx context.Context, source string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10000
	}

	query := `
		SELECT id, content, source, heading, chunk_hash,
		       heading_level, start_line, end_line, doc_type
		FROM chunks`
	args := []any{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var heading sql.NullString
		err := rows.Scan(
			&r.ID, &r.Content, &r.Source, &heading, &r.Hash,
			&r.HeadingLevel, &r.StartLine, &r.EndLine, &r.DocType,
		)
		if err != nil {
			return nil, err
		}
		r.Heading = heading.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteBySource removes all chunks from one source file.
func (s *VecStore) DeleteBySource(ctx context.Context, source string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunk_vectors WHERE id IN (SELECT id FROM chunks WHERE source = ?)
	`, source); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", source); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteByHashes removes chunks by their content hashes.
func (s *VecStore) DeleteByHashes(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(hashes)), ",")
	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunk_vectors WHERE id IN (SELECT id FROM chunks WHERE chunk_hash IN ("+placeholders+"))",
		args...,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE chunk_hash IN ("+placeholders+")",
		args...,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Count returns the total number of stored chunks.
func (s *VecStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	return count, err
}

// Drop deletes the database file.
func (s *VecStore) Drop(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return err
	}
	return os.Remove(s.path)
}

// Close closes the database connection.
func (s *VecStore) Close() error {
	return s.db.Close()
}
