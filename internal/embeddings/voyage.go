package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultVoyageModel = "voyage-3-lite"

// Voyage is a Voyage AI embedding provider. Reads VOYAGE_API_KEY and
// optionally VOYAGE_BASE_URL from the environment.
type Voyage struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewVoyage creates a Voyage AI embedding provider.
func NewVoyage(model string) *Voyage {
	if model == "" {
		model = defaultVoyageModel
	}
	baseURL := os.Getenv("VOYAGE_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.voyageai.com/v1"
	}
	return &Voyage{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  os.Getenv("VOYAGE_API_KEY"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (v *Voyage) ModelName() string { return v.model }

func (v *Voyage) Dimension() int {
	switch v.model {
	case "voyage-3", "voyage-code-3":
		return 1024
	case "voyage-3-lite":
		return 512
	default:
		return 1024
	}
}

// Embed generates embeddings via the Voyage embeddings endpoint.
func (v *Voyage) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{"input": texts, "model": v.model})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voyage embeddings request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("voyage embeddings: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("voyage embeddings: decode response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("voyage embeddings: got %d embeddings for %d inputs", len(result.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("voyage embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
