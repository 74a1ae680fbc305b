package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
)

// BleveStore implements Store using Bleve BM25 full-text search. It needs no
// embedding provider or API key, which makes it the keyless fallback backend.
type BleveStore struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

// chunkDocument is the stored form of a Record in the Bleve index.
type chunkDocument struct {
	Content      string `json:"content"`
	Source       string `json:"source"`
	Heading      string `json:"heading"`
	Hash         string `json:"chunk_hash"`
	HeadingLevel int    `json:"heading_level"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	DocType      string `json:"doc_type"`
}

// NewBleveStore opens (creating if needed) a Bleve chunk index at path.
func NewBleveStore(path string) (*BleveStore, error) {
	var index bleve.Index
	var err error

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create bleve index: %w", err)
		}
	} else {
		index, err = bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open bleve index: %w", err)
		}
	}

	return &BleveStore{index: index, path: path}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	numericFieldMapping := bleve.NewNumericFieldMapping()

	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("heading", textFieldMapping)
	docMapping.AddFieldMappingsAt("source", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("chunk_hash", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("doc_type", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("heading_level", numericFieldMapping)
	docMapping.AddFieldMappingsAt("start_line", numericFieldMapping)
	docMapping.AddFieldMappingsAt("end_line", numericFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// RequiresVectors reports that this backend searches by query text.
func (s *BleveStore) RequiresVectors() bool { return false }

// Upsert replaces any records sharing a chunk hash, then indexes the new ones.
func (s *BleveStore) Upsert(ctx context.Context, records []Record) (int, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.index.NewBatch()
	for i := range records {
		r := &records[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.DocType == "" {
			r.DocType = DocTypeMarkdown
		}
		doc := chunkDocument{
			Content:      r.Content,
			Source:       r.Source,
			Heading:      r.Heading,
			Hash:         r.Hash,
			HeadingLevel: r.HeadingLevel,
			StartLine:    r.StartLine,
			EndLine:      r.EndLine,
			DocType:      r.DocType,
		}
		if err := batch.Index(r.ID, doc); err != nil {
			return 0, fmt.Errorf("failed to index document: %w", err)
		}
	}

	if err := s.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to apply batch: %w", err)
	}
	return len(records), nil
}

// Search performs a BM25 match query over chunk content and headings.
func (s *BleveStore) Search(ctx context.Context, q Query) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	match := bleve.NewMatchQuery(q.Text)
	var searchQuery query.Query = match
	if q.DocType != "" || q.Source != "" {
		conj := []query.Query{match}
		if q.DocType != "" {
			tq := bleve.NewTermQuery(q.DocType)
			tq.SetField("doc_type")
			conj = append(conj, tq)
		}
		if q.Source != "" {
			tq := bleve.NewTermQuery(q.Source)
			tq.SetField("source")
			conj = append(conj, tq)
		}
		searchQuery = bleve.NewConjunctionQuery(conj...)
	}

	req := bleve.NewSearchRequest(searchQuery)
	req.Size = topK
	req.Fields = []string{"*"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var results []Result
	for _, hit := range res.Hits {
		r := hitToResult(hit.ID, hit.Fields)

		// BM25 scores are unbounded; squash into (0,1) monotonically so
		// better hits always carry higher scores.
		r.Score = float32(hit.Score / (1 + hit.Score))

		results = append(results, r)
	}
	return results, nil
}

// List enumerates stored chunks, optionally filtered by source.
func (s *BleveStore) List(ctx context.Context, source string, limit int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10000
	}

	var searchQuery query.Query = bleve.NewMatchAllQuery()
	if source != "" {
		tq := bleve.NewTermQuery(source)
		tq.SetField("source")
		searchQuery = tq
	}

	req := bleve.NewSearchRequest(searchQuery)
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, hit := range res.Hits {
		results = append(results, hitToResult(hit.ID, hit.Fields))
	}
	return results, nil
}

func hitToResult(id string, fields map[string]any) Result {
	var r Result
	r.ID = id
	r.Content, _ = fields["content"].(string)
	r.Source, _ = fields["source"].(string)
	r.Heading, _ = fields["heading"].(string)
	r.Hash, _ = fields["chunk_hash"].(string)
	r.DocType, _ = fields["doc_type"].(string)
	if v, ok := fields["heading_level"].(float64); ok {
		r.HeadingLevel = int(v)
	}
	if v, ok := fields["start_line"].(float64); ok {
		r.StartLine = int(v)
	}
	if v, ok := fields["end_line"].(float64); ok {
		r.EndLine = int(v)
	}
	return r
}

// DeleteBySource removes all chunks from one source file.
func (s *BleveStore) DeleteBySource(ctx context.Context, source string) error {
	tq := bleve.NewTermQuery(source)
	tq.SetField("source")
	return s.deleteMatching(ctx, tq)
}

// DeleteByHashes removes chunks by their content hashes.
func (s *BleveStore) DeleteByHashes(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	queries := make([]query.Query, len(hashes))
	for i, h := range hashes {
		tq := bleve.NewTermQuery(h)
		tq.SetField("chunk_hash")
		queries[i] = tq
	}
	return s.deleteMatching(ctx, bleve.NewDisjunctionQuery(queries...))
}

func (s *BleveStore) deleteMatching(ctx context.Context, q query.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := bleve.NewSearchRequest(q)
	req.Size = 10000

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return err
	}
	if len(res.Hits) == 0 {
		return nil
	}

	batch := s.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	return s.index.Batch(batch)
}

// Count returns the number of indexed chunks.
func (s *BleveStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.index.DocCount()
	return int64(n), err
}

// Drop closes and removes the index directory.
func (s *BleveStore) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return err
	}
	return os.RemoveAll(s.path)
}

// Close closes the index.
func (s *BleveStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}
