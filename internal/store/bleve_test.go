package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newBleve(t *testing.T) *BleveStore {
	t.Helper()
	s, err := NewBleveStore(filepath.Join(t.TempDir(), "chunks.bleve"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecords() []Record {
	return []Record{
		{
			Content:      "We decided to use Redis for the session cache with a 1 hour TTL",
			Source:       "decisions.md",
			Heading:      "Caching",
			Hash:         "hash-cache",
			HeadingLevel: 2,
			StartLine:    10,
			EndLine:      14,
			DocType:      DocTypeMarkdown,
		},
		{
			Content: "The deployment pipeline runs on every push to main",
			Source:  "infra.md",
			Heading: "CI",
			Hash:    "hash-ci",
			DocType: DocTypeMarkdown,
		},
		{
			Content: "Summary of older memories about database migrations",
			Source:  "flush://memory",
			Hash:    "hash-flush",
			DocType: DocTypeFlush,
		},
	}
}

func TestBleveStore_UpsertAndSearch(t *testing.T) {
	s := newBleve(t)
	ctx := context.Background()

	n, err := s.Upsert(ctx, sampleRecords())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if n != 3 {
		t.Errorf("upserted %d records, want 3", n)
	}

	results, err := s.Search(ctx, Query{Text: "session cache Redis", TopK: 5})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least 1 result")
	}
	top := results[0]
	if top.Hash != "hash-cache" {
		t.Errorf("top result = %q, want the caching chunk", top.Content)
	}
	if top.Heading != "Caching" || top.HeadingLevel != 2 || top.StartLine != 10 {
		t.Errorf("metadata not round-tripped: %+v", top)
	}
	if top.Score <= 0 || top.Score > 1 {
		t.Errorf("score should be in (0,1], got %f", top.Score)
	}
}

func TestBleveStore_ScoresMonotonicWithRank(t *testing.T) {
	s := newBleve(t)
	ctx := context.Background()

	// Documents with strongly varied relevance to the query so raw BM25
	// scores spread across a wide range, including past 1.0.
	records := []Record{
		{Content: "redis session cache redis session cache redis", Source: "a.md", Hash: "h-a"},
		{Content: "the session cache lives in redis", Source: "b.md", Hash: "h-b"},
		{Content: "deployment notes mention a cache once", Source: "c.md", Hash: "h-c"},
		{Content: "completely unrelated gardening tips", Source: "d.md", Hash: "h-d"},
	}
	if _, err := s.Upsert(ctx, records); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, Query{Text: "redis session cache", TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) < 2 {
		t.Fatalf("got %d results, want at least 2", len(results))
	}
	for i, r := range results {
		if r.Score <= 0 || r.Score >= 1 {
			t.Errorf("result %d score %f outside (0,1)", i, r.Score)
		}
		if i > 0 && results[i-1].Score < r.Score {
			t.Errorf("scores not monotonic with rank: result %d has %f after %f",
				i, r.Score, results[i-1].Score)
		}
	}
}

func TestBleveStore_UpsertReplacesByHash(t *testing.T) {
	s := newBleve(t)
	ctx := context.Background()

	recs := sampleRecords()[:1]
	if _, err := s.Upsert(ctx, recs); err != nil {
		t.Fatal(err)
	}
	// Same hash again: must not duplicate
	recs[0].ID = ""
	if _, err := s.Upsert(ctx, recs); err != nil {
		t.Fatal(err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after re-upsert of same hash", count)
	}
}

func TestBleveStore_DocTypeFilter(t *testing.T) {
	s := newBleve(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, Query{Text: "memories migrations summary", TopK: 5, DocType: DocTypeFlush})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.DocType != DocTypeFlush {
			t.Errorf("filter leaked doc type %q", r.DocType)
		}
	}
	if len(results) == 0 {
		t.Error("expected the flush chunk to match")
	}
}

func TestBleveStore_DeleteBySource(t *testing.T) {
	s := newBleve(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteBySource(ctx, "decisions.md"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	count, _ := s.Count(ctx)
	if count != 2 {
		t.Errorf("count = %d, want 2 after source delete", count)
	}

	remaining, err := s.List(ctx, "decisions.md", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no chunks left for decisions.md, got %d", len(remaining))
	}
}

func TestBleveStore_List(t *testing.T) {
	s := newBleve(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("list returned %d records, want 3", len(all))
	}

	bySource, err := s.List(ctx, "infra.md", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(bySource) != 1 || bySource[0].Hash != "hash-ci" {
		t.Errorf("unexpected source listing: %+v", bySource)
	}
}

func TestBleveStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunks.bleve")
	ctx := context.Background()

	s, err := NewBleveStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBleveStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count after reopen = %d, want 3", count)
	}
}
