// Package cache provides a persistent embedding cache backed by SQLite.
// Embeddings are keyed by (content hash, model name) so unchanged content
// never has to be re-embedded.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Cache is a persistent embedding cache.
type Cache struct {
	db *sql.DB
}

// Open opens (and initializes if needed) the cache database at path, creating
// parent directories as required.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	c := &Cache{db: db}
	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	_, err := c.db.Exec(`
	CREATE TABLE IF NOT EXISTS embeddings (
		content_hash TEXT NOT NULL,
		model        TEXT NOT NULL,
		embedding    TEXT NOT NULL,
		created_at   REAL NOT NULL DEFAULT (unixepoch('now')),
		PRIMARY KEY (content_hash, model)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	return nil
}

// Get returns the cached embedding for (hash, model), or nil if absent.
func (c *Cache) Get(hash, model string) ([]float32, error) {
	var raw string
	err := c.db.QueryRow(
		"SELECT embedding FROM embeddings WHERE content_hash = ? AND model = ?",
		hash, model,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var embedding []float32
	if err := json.Unmarshal([]byte(raw), &embedding); err != nil {
		return nil, fmt.Errorf("corrupt cache entry for %s: %w", hash, err)
	}
	return embedding, nil
}

// GetBatch looks up multiple hashes for one model. The result maps every
// requested hash; missing entries map to nil.
func (c *Cache) GetBatch(hashes []string, model string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	for _, h := range hashes {
		out[h] = nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(hashes)), ",")
	args := make([]any, 0, len(hashes)+1)
	args = append(args, model)
	for _, h := range hashes {
		args = append(args, h)
	}

	rows, err := c.db.Query(
		"SELECT content_hash, embedding FROM embeddings WHERE model = ? AND content_hash IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var hash, raw string
		if err := rows.Scan(&hash, &raw); err != nil {
			return nil, err
		}
		var embedding []float32
		if err := json.Unmarshal([]byte(raw), &embedding); err != nil {
			continue // treat corrupt entries as misses
		}
		out[hash] = embedding
	}
	return out, rows.Err()
}

// Entry is one (hash, model, embedding) tuple for PutBatch.
type Entry struct {
	Hash      string
	Model     string
	Embedding []float32
}

// Put stores an embedding, replacing any existing entry for (hash, model).
func (c *Cache) Put(hash, model string, embedding []float32) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO embeddings (content_hash, model, embedding, created_at)
		VALUES (?, ?, ?, ?)
	`, hash, model, string(raw), float64(time.Now().Unix()))
	return err
}

// PutBatch stores multiple entries in one transaction.
func (c *Cache) PutBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO embeddings (content_hash, model, embedding, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := float64(time.Now().Unix())
	for _, e := range entries {
		raw, err := json.Marshal(e.Embedding)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(e.Hash, e.Model, string(raw), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Clear deletes cached entries. When model is non-empty, only entries for
// that model are removed. Returns the number of rows deleted.
func (c *Cache) Clear(model string) (int64, error) {
	var res sql.Result
	var err error
	if model != "" {
		res, err = c.db.Exec("DELETE FROM embeddings WHERE model = ?", model)
	} else {
		res, err = c.db.Exec("DELETE FROM embeddings")
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}
