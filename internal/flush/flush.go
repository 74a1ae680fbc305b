// Package flush condenses session transcripts into durable memory summaries.
package flush

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

const defaultModel = "gpt-4o-mini"

const summaryPrompt = `You distill project memory (notes, session transcripts,
prior summaries) into durable notes. Extract only information worth
remembering across sessions: decisions made, problems solved, important
facts, and open follow-ups. Write terse markdown bullet points. Omit
greetings, dead ends, and anything already obvious from the codebase. If
nothing is worth keeping, reply with exactly: NOTHING`

// Summarizer turns raw memory text into a compact summary using an
// OpenAI-compatible chat completion endpoint.
type Summarizer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// Config configures a Summarizer. Zero values fall back to the OPENAI_BASE_URL
// and OPENAI_API_KEY environment variables and a default model.
type Config struct {
	Model   string
	BaseURL string
	APIKey  string
}

// New creates a Summarizer.
func New(cfg Config) *Summarizer {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return &Summarizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrNothingToKeep is returned when the model judges the transcript to hold
// nothing worth remembering.
var ErrNothingToKeep = fmt.Errorf("transcript contains nothing worth keeping")

// Summarize condenses transcript text into markdown bullet points.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", ErrNothingToKeep
	}

	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: summaryPrompt},
			{Role: "user", Content: transcript},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("flush summarize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("flush summarize: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("flush summarize: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("flush summarize: empty response")
	}

	summary := strings.TrimSpace(result.Choices[0].Message.Content)
	if summary == "" || summary == "NOTHING" {
		return "", ErrNothingToKeep
	}
	return summary, nil
}
