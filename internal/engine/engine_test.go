package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"memsearch/internal/cache"
	"memsearch/internal/embeddings"
	"memsearch/internal/flush"
	"memsearch/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newBleveEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := store.NewBleveStore(filepath.Join(t.TempDir(), "chunks.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(Config{Store: s})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine_IndexAndSearch(t *testing.T) {
	e := newBleveEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "decisions.md"), `# Decisions

## Caching
We use Redis for the session cache with a one hour TTL.

## Queue
Background jobs go through the postgres-backed queue.
`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not markdown, skip me")

	stats, err := e.Index(ctx, []string{dir})
	if err != nil {
		t.Fatalf("index failed: %v", err)
	}
	if stats.Files != 1 {
		t.Errorf("indexed %d files, want 1", stats.Files)
	}
	if stats.Chunks != 3 {
		t.Errorf("indexed %d chunks, want 3", stats.Chunks)
	}

	results, err := e.Search(ctx, "redis session cache", SearchOptions{TopK: 3})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Heading != "Caching" {
		t.Errorf("top heading = %q, want Caching", results[0].Heading)
	}
}

func TestEngine_ReindexReplacesSource(t *testing.T) {
	e := newBleveEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "## Old heading\nold content here\n\n## Keep\nkept content\n")
	if _, err := e.Index(ctx, []string{dir}); err != nil {
		t.Fatal(err)
	}

	// Drop one section, keep the other.
	writeFile(t, path, "## Keep\nkept content\n")
	if _, err := e.Index(ctx, []string{dir}); err != nil {
		t.Fatal(err)
	}

	st, err := e.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Chunks != 1 {
		t.Errorf("chunks after reindex = %d, want 1", st.Chunks)
	}

	results, err := e.Search(ctx, "old content", SearchOptions{TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Heading == "Old heading" {
			t.Error("stale chunk survived reindex")
		}
	}
}

func TestEngine_VectorBackendUsesEmbeddingCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	embedder := embeddings.NewMock(32)
	c, err := cache.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := store.NewVecStore(store.VecConfig{
		Path:      filepath.Join(dir, "chunks.db"),
		Dimension: 32,
	})
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(Config{Store: s, Embedder: embedder, Cache: c})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "## Topic\nsome stable content\n")

	stats, err := e.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("first index failed: %v", err)
	}
	if stats.Embedded != 1 || stats.CacheHits != 0 {
		t.Errorf("first index: embedded=%d hits=%d, want 1/0", stats.Embedded, stats.CacheHits)
	}
	callsAfterFirst := embedder.Calls

	stats, err = e.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("second index failed: %v", err)
	}
	if stats.CacheHits != 1 || stats.Embedded != 0 {
		t.Errorf("second index: embedded=%d hits=%d, want 0/1", stats.Embedded, stats.CacheHits)
	}
	if embedder.Calls != callsAfterFirst {
		t.Errorf("embedder called again despite cache hit")
	}
}

func TestEngine_RequiresEmbedderForVectorStore(t *testing.T) {
	s, err := store.NewVecStore(store.VecConfig{
		Path:      filepath.Join(t.TempDir(), "chunks.db"),
		Dimension: 32,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := New(Config{Store: s}); err == nil {
		t.Error("expected error for vector store without embedder")
	}
}

func TestEngine_IndexSessions(t *testing.T) {
	e := newBleveEngine(t)
	ctx := context.Background()

	lines := []map[string]any{
		{
			"type": "user", "sessionId": "abc-123",
			"message": map[string]any{"role": "user", "content": "how do we handle retries?"},
		},
		{
			"type": "assistant", "sessionId": "abc-123",
			"message": map[string]any{"role": "assistant", "content": "Retries use exponential backoff capped at five attempts."},
		},
	}
	path := filepath.Join(t.TempDir(), "session.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := json.NewEncoder(f)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()

	stats, err := e.IndexSessions(ctx, path)
	if err != nil {
		t.Fatalf("index sessions failed: %v", err)
	}
	if stats.Chunks == 0 {
		t.Fatal("expected session chunks")
	}

	results, err := e.Search(ctx, "exponential backoff retries", SearchOptions{TopK: 3, DocType: store.DocTypeSession})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Error("expected session search results")
	}
}

func newFlushEngine(t *testing.T, reply string) *Engine {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	s, err := store.NewBleveStore(filepath.Join(t.TempDir(), "chunks.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(Config{Store: s, Summarizer: flush.New(flush.Config{BaseURL: srv.URL})})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine_FlushCondensesStoredChunks(t *testing.T) {
	e := newFlushEngine(t, "- redis holds the session cache\n- deploys run from main")
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "decisions.md"), "## Caching\nWe use Redis for the session cache.\n")
	writeFile(t, filepath.Join(dir, "infra.md"), "## Deploys\nDeploys run from main.\n")
	if _, err := e.Index(ctx, []string{dir}); err != nil {
		t.Fatal(err)
	}

	summary, err := e.Flush(ctx, "")
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if summary == "" {
		t.Fatal("expected a summary")
	}

	results, err := e.Search(ctx, "redis session cache", SearchOptions{TopK: 5, DocType: store.DocTypeFlush})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected the flush summary to be searchable")
	}
	if results[0].Source != "flush://memory" {
		t.Errorf("flush source = %q, want flush://memory", results[0].Source)
	}

	// A second flush replaces the previous summary instead of stacking.
	if _, err := e.Flush(ctx, ""); err != nil {
		t.Fatal(err)
	}
	flushed, err := e.List(ctx, "flush://memory", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(flushed) != 1 {
		t.Errorf("flush://memory holds %d chunks after reflush, want 1", len(flushed))
	}
}

func TestEngine_FlushSourceFilter(t *testing.T) {
	e := newFlushEngine(t, "- only caching facts survive")
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.md")
	writeFile(t, path, "## Caching\nWe use Redis for the session cache.\n")
	writeFile(t, filepath.Join(dir, "infra.md"), "## Deploys\nDeploys run from main.\n")
	if _, err := e.Index(ctx, []string{dir}); err != nil {
		t.Fatal(err)
	}

	abs, _ := filepath.Abs(path)
	summary, err := e.Flush(ctx, abs)
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if summary == "" {
		t.Error("expected a summary for the filtered source")
	}

	// An unknown source has nothing to condense.
	summary, err = e.Flush(ctx, "/nowhere/else.md")
	if err != nil {
		t.Fatal(err)
	}
	if summary != "" {
		t.Errorf("empty source filter produced summary %q", summary)
	}
}

func TestEngine_FlushSessions(t *testing.T) {
	e := newFlushEngine(t, "- retries use exponential backoff")
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "session.jsonl")
	writeFile(t, path, `{"type":"user","sessionId":"s1","message":{"role":"user","content":"talk about retries"}}`+"\n")

	flushed, err := e.FlushSessions(ctx, path)
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if flushed != 1 {
		t.Errorf("flushed %d sessions, want 1", flushed)
	}

	results, err := e.Search(ctx, "exponential backoff", SearchOptions{TopK: 3, DocType: store.DocTypeFlush})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Error("expected the flush summary to be searchable")
	}
}

func TestEngine_List(t *testing.T) {
	e := newBleveEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "## One\nfirst section\n\n## Two\nsecond section\n")
	if _, err := e.IndexFile(ctx, path); err != nil {
		t.Fatal(err)
	}

	all, err := e.List(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("list returned %d chunks, want 2", len(all))
	}

	abs, _ := filepath.Abs(path)
	bySource, err := e.List(ctx, abs, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(bySource) != 2 {
		t.Errorf("source-filtered list returned %d chunks, want 2", len(bySource))
	}
}

func TestEngine_RemoveSource(t *testing.T) {
	e := newBleveEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "## Section\ncontent to forget\n")
	if _, err := e.IndexFile(ctx, path); err != nil {
		t.Fatal(err)
	}

	if err := e.RemoveSource(ctx, path); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	st, err := e.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Chunks != 0 {
		t.Errorf("chunks = %d after remove, want 0", st.Chunks)
	}
}
