// Package engine orchestrates indexing and search across the chunker,
// embedding cache, embedding providers and chunk stores.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"memsearch/internal/cache"
	"memsearch/internal/chunker"
	"memsearch/internal/embeddings"
	"memsearch/internal/flush"
	"memsearch/internal/scanner"
	"memsearch/internal/session"
	"memsearch/internal/store"
	"memsearch/internal/telemetry"
	"memsearch/internal/watcher"
)

// Engine ties the indexing pipeline together. The embedder and cache are only
// used when the store searches by vector; the Bleve backend leaves them nil.
type Engine struct {
	store      store.Store
	embedder   embeddings.Provider
	cache      *cache.Cache
	summarizer *flush.Summarizer
	log        *slog.Logger
}

// Config assembles an Engine. Store is required.
type Config struct {
	Store      store.Store
	Embedder   embeddings.Provider
	Cache      *cache.Cache
	Summarizer *flush.Summarizer
	Logger     *slog.Logger
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if cfg.Store.RequiresVectors() && cfg.Embedder == nil {
		return nil, fmt.Errorf("engine: store requires an embedding provider")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		store:      cfg.Store,
		embedder:   cfg.Embedder,
		cache:      cfg.Cache,
		summarizer: cfg.Summarizer,
		log:        log,
	}, nil
}

// IndexStats summarizes one indexing run.
type IndexStats struct {
	Files     int
	Chunks    int
	Embedded  int
	CacheHits int
}

func (s *IndexStats) add(o IndexStats) {
	s.Files += o.Files
	s.Chunks += o.Chunks
	s.Embedded += o.Embedded
	s.CacheHits += o.CacheHits
}

// Index scans paths for markdown files and indexes each one.
func (e *Engine) Index(ctx context.Context, paths []string) (IndexStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "index.run",
		attribute.Int("index.paths", len(paths)))
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	var files []scanner.ScannedFile
	files, err = scanner.Scan(paths, scanner.Options{})
	if err != nil {
		return IndexStats{}, err
	}

	var stats IndexStats
	for _, f := range files {
		fileStats, ferr := e.IndexFile(ctx, f.Path)
		if ferr != nil {
			err = ferr
			return stats, fmt.Errorf("indexing %s: %w", f.Path, ferr)
		}
		stats.add(fileStats)
	}
	span.SetAttributes(
		attribute.Int("index.files", stats.Files),
		attribute.Int("index.chunks", stats.Chunks),
	)
	return stats, nil
}

// IndexFile chunks and indexes a single markdown file. Stale chunks for the
// same source are removed so renamed or deleted headings do not linger.
func (e *Engine) IndexFile(ctx context.Context, path string) (IndexStats, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return IndexStats{}, err
	}

	chunks := chunker.ChunkMarkdown(string(data), abs)
	if len(chunks) == 0 {
		// File is empty now; drop whatever it used to contribute.
		if err := e.store.DeleteBySource(ctx, abs); err != nil {
			return IndexStats{}, err
		}
		return IndexStats{Files: 1}, nil
	}

	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		records[i] = store.Record{
			Content:      c.Content,
			Source:       c.Source,
			Heading:      c.Heading,
			Hash:         c.Hash,
			HeadingLevel: c.HeadingLevel,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			DocType:      store.DocTypeMarkdown,
		}
	}

	stats, err := e.indexRecords(ctx, abs, records)
	if err != nil {
		return stats, err
	}
	e.log.Debug("indexed file", "path", abs, "chunks", stats.Chunks)
	return stats, nil
}

// IndexSessions parses a JSONL session log and indexes each session as one
// document.
func (e *Engine) IndexSessions(ctx context.Context, path string) (IndexStats, error) {
	sessions, err := session.ParseFile(path)
	if err != nil {
		return IndexStats{}, err
	}

	var stats IndexStats
	for _, s := range sessions {
		source := "session://" + s.ID
		chunks := chunker.ChunkMarkdown(s.ToMarkdown(), source)
		records := make([]store.Record, len(chunks))
		for i, c := range chunks {
			records[i] = store.Record{
				Content:      c.Content,
				Source:       c.Source,
				Heading:      c.Heading,
				Hash:         c.Hash,
				HeadingLevel: c.HeadingLevel,
				StartLine:    c.StartLine,
				EndLine:      c.EndLine,
				DocType:      store.DocTypeSession,
			}
		}
		sessionStats, err := e.indexRecords(ctx, source, records)
		if err != nil {
			return stats, err
		}
		stats.add(sessionStats)
	}
	return stats, nil
}

// indexRecords embeds (when the backend needs vectors) and upserts records,
// then removes chunks of the same source that no longer exist.
func (e *Engine) indexRecords(ctx context.Context, source string, records []store.Record) (IndexStats, error) {
	stats := IndexStats{Files: 1, Chunks: len(records)}

	if e.store.RequiresVectors() {
		embedded, hits, err := e.embedRecords(ctx, records)
		if err != nil {
			return stats, err
		}
		stats.Embedded = embedded
		stats.CacheHits = hits
	}

	// Replace the source wholesale: chunks whose hash survives are
	// re-upserted, chunks that disappeared must go.
	if err := e.store.DeleteBySource(ctx, source); err != nil {
		return stats, err
	}
	if _, err := e.store.Upsert(ctx, records); err != nil {
		return stats, err
	}
	return stats, nil
}

// embedRecords fills in Embedding for each record, consulting the cache
// first. Returns (freshly embedded, cache hits).
func (e *Engine) embedRecords(ctx context.Context, records []store.Record) (int, int, error) {
	model := e.embedder.ModelName()

	var cached map[string][]float32
	if e.cache != nil {
		hashes := make([]string, len(records))
		for i, r := range records {
			hashes[i] = r.Hash
		}
		var err error
		cached, err = e.cache.GetBatch(hashes, model)
		if err != nil {
			e.log.Warn("embedding cache lookup failed", "error", err)
			cached = nil
		}
	}

	var missing []int
	hits := 0
	for i := range records {
		if vec := cached[records[i].Hash]; vec != nil {
			records[i].Embedding = vec
			hits++
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = records[i].Content
		}
		vecs, err := e.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, hits, fmt.Errorf("embedding %d chunks: %w", len(missing), err)
		}
		if len(vecs) != len(missing) {
			return 0, hits, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(missing))
		}

		entries := make([]cache.Entry, 0, len(missing))
		for j, i := range missing {
			records[i].Embedding = vecs[j]
			entries = append(entries, cache.Entry{Hash: records[i].Hash, Model: model, Embedding: vecs[j]})
		}
		if e.cache != nil {
			if err := e.cache.PutBatch(entries); err != nil {
				e.log.Warn("embedding cache write failed", "error", err)
			}
		}
	}
	return len(missing), hits, nil
}

// SearchOptions narrows a search.
type SearchOptions struct {
	TopK    int
	DocType string
	Source  string
}

// Search returns the most relevant chunks for a natural-language query.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]store.Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "search.run",
		attribute.Int("search.top_k", opts.TopK))
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	q := store.Query{
		Text:    query,
		TopK:    opts.TopK,
		DocType: opts.DocType,
		Source:  opts.Source,
	}
	if e.store.RequiresVectors() {
		vecs, eerr := e.embedder.Embed(ctx, []string{query})
		if eerr != nil {
			err = eerr
			return nil, fmt.Errorf("embedding query: %w", eerr)
		}
		q.Embedding = vecs[0]
	}

	results, serr := e.store.Search(ctx, q)
	if serr != nil {
		err = serr
		return nil, serr
	}
	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results, nil
}

// Flush condenses stored chunks into a summary and re-indexes it as a flush
// document under flush://memory, replacing the previous one. When source is
// non-empty only chunks from that source are condensed. Returns the summary
// markdown, empty when there was nothing worth flushing.
func (e *Engine) Flush(ctx context.Context, source string) (string, error) {
	if e.summarizer == nil {
		return "", fmt.Errorf("flush: no summarizer configured")
	}

	stored, err := e.store.List(ctx, source, 0)
	if err != nil {
		return "", err
	}
	if len(stored) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, r := range stored {
		if r.Heading != "" {
			fmt.Fprintf(&b, "## %s (%s)\n\n", r.Heading, r.Source)
		} else {
			fmt.Fprintf(&b, "## %s\n\n", r.Source)
		}
		b.WriteString(r.Content)
		b.WriteString("\n\n")
	}

	summary, err := e.summarizer.Summarize(ctx, b.String())
	if err == flush.ErrNothingToKeep {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	const flushSource = "flush://memory"
	chunks := chunker.ChunkMarkdown(summary, flushSource)
	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		records[i] = store.Record{
			Content:      c.Content,
			Source:       c.Source,
			Heading:      c.Heading,
			Hash:         c.Hash,
			HeadingLevel: c.HeadingLevel,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			DocType:      store.DocTypeFlush,
		}
	}
	if _, err := e.indexRecords(ctx, flushSource, records); err != nil {
		return "", err
	}
	e.log.Info("flushed chunks into summary", "chunks", len(stored))
	return summary, nil
}

// FlushSessions summarizes the sessions in a JSONL log and indexes each
// summary as a flush document, replacing any previous flush for the same
// session.
func (e *Engine) FlushSessions(ctx context.Context, path string) (int, error) {
	if e.summarizer == nil {
		return 0, fmt.Errorf("flush: no summarizer configured")
	}

	sessions, err := session.ParseFile(path)
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, s := range sessions {
		summary, err := e.summarizer.Summarize(ctx, s.ToMarkdown())
		if err == flush.ErrNothingToKeep {
			continue
		}
		if err != nil {
			return flushed, err
		}

		source := "flush://" + s.ID
		chunks := chunker.ChunkMarkdown(summary, source)
		records := make([]store.Record, len(chunks))
		for i, c := range chunks {
			records[i] = store.Record{
				Content:      c.Content,
				Source:       c.Source,
				Heading:      c.Heading,
				Hash:         c.Hash,
				HeadingLevel: c.HeadingLevel,
				StartLine:    c.StartLine,
				EndLine:      c.EndLine,
				DocType:      store.DocTypeFlush,
			}
		}
		if _, err := e.indexRecords(ctx, source, records); err != nil {
			return flushed, err
		}
		flushed++
	}
	return flushed, nil
}

// List enumerates indexed chunks, optionally filtered by source.
func (e *Engine) List(ctx context.Context, source string, limit int) ([]store.Result, error) {
	return e.store.List(ctx, source, limit)
}

// RemoveSource deletes every chunk indexed from one source.
func (e *Engine) RemoveSource(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return e.store.DeleteBySource(ctx, abs)
}

// Stats reports index size.
type Stats struct {
	Chunks int64
	Model  string
}

// Stats returns current index statistics.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	count, err := e.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Chunks: count}
	if e.embedder != nil {
		s.Model = e.embedder.ModelName()
	}
	return s, nil
}

// Reset drops all indexed data and clears the embedding cache.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.Drop(ctx); err != nil {
		return err
	}
	if e.cache != nil {
		if _, err := e.cache.Clear(""); err != nil {
			return err
		}
	}
	return nil
}

// Watch starts a filesystem watcher over paths and keeps the index current.
// Call Stop on the returned watcher to end it.
func (e *Engine) Watch(ctx context.Context, paths []string) (*watcher.Watcher, error) {
	return watcher.New(paths, func(ev watcher.Event) {
		switch ev.Op {
		case watcher.OpDeleted:
			if err := e.RemoveSource(ctx, ev.Path); err != nil {
				e.log.Warn("failed to remove deleted file from index", "path", ev.Path, "error", err)
				return
			}
			e.log.Info("removed from index", "path", ev.Path)
		default:
			if _, err := e.IndexFile(ctx, ev.Path); err != nil {
				e.log.Warn("failed to reindex changed file", "path", ev.Path, "error", err)
				return
			}
			e.log.Info("reindexed", "path", ev.Path)
		}
	}, watcher.Options{})
}

// Close releases the store and cache.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.store.Close(); err != nil {
		firstErr = err
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
