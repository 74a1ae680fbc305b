// Package hook implements the prompt-submit decision logic: given the prompt
// a user just submitted, decide whether to stay silent, hint that memory
// search exists, or inject the most relevant memory snippets into the
// conversation context.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"memsearch/internal/telemetry"
)

// PromptEvent is the event the host runtime delivers on prompt submission.
// Only Prompt matters for the decision; the rest is carried for logging.
type PromptEvent struct {
	SessionID     string `json:"session_id"`
	CWD           string `json:"cwd"`
	HookEventName string `json:"hook_event_name"`
	Prompt        string `json:"prompt"`
}

// Response is returned to the host runtime. Both fields are omitted when
// empty; an all-empty response means "nothing to add". AdditionalContext is
// only ever set alongside a status note, and the host appends it to the model
// context verbatim.
type Response struct {
	StatusNote        string `json:"statusNote,omitempty"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// Snippet is one retrieved memory, ranked by relevance.
type Snippet struct {
	Content string
	Source  string
}

// Retriever answers ranked-snippet queries. Implementations may be slow or
// failing; the decider treats any error as "no memories found".
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// Options configures a Decider. Zero values fall back to defaults.
type Options struct {
	// AutoInject embeds retrieved snippets directly instead of hinting.
	AutoInject bool

	// TopK bounds how many snippets are requested. Default 3.
	TopK int

	// MinPromptLen filters out short prompts (greetings, acknowledgements)
	// before any retrieval work, measured in characters after trimming.
	// Default 10.
	MinPromptLen int

	// Timeout bounds the retrieval call. Default 5s.
	Timeout time.Duration
}

const (
	defaultTopK         = 3
	defaultMinPromptLen = 10
	defaultTimeout      = 5 * time.Second

	noteUnavailable = "Memory search is currently unavailable."
	noteHint        = "Project memory is available: run `memsearch search \"<topic>\"` to recall past decisions and context."

	contextHeader = "The following snippets come from long-term project memory and may be relevant to this prompt:"
)

// Decider makes the per-prompt context decision. A nil retriever means no
// retrieval service is available.
type Decider struct {
	retriever Retriever
	opts      Options
	log       *slog.Logger
}

// NewDecider creates a Decider, applying option defaults.
func NewDecider(retriever Retriever, opts Options, log *slog.Logger) *Decider {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.MinPromptLen <= 0 {
		opts.MinPromptLen = defaultMinPromptLen
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Decider{retriever: retriever, opts: opts, log: log}
}

// Decide produces exactly one response for the event. It never returns an
// error: retrieval failures degrade to the unavailable note, and a too-short
// or missing prompt yields an empty response.
func (d *Decider) Decide(ctx context.Context, ev PromptEvent) Response {
	prompt := strings.TrimSpace(ev.Prompt)
	if utf8.RuneCountInString(prompt) < d.opts.MinPromptLen {
		return Response{}
	}

	if d.retriever == nil {
		return Response{StatusNote: noteUnavailable}
	}

	if !d.opts.AutoInject {
		return Response{StatusNote: noteHint}
	}

	ctx, span := telemetry.StartSpan(ctx, "hook.retrieve",
		attribute.Int("hook.top_k", d.opts.TopK))
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	snippets, err := d.retriever.Retrieve(ctx, prompt, d.opts.TopK)
	telemetry.EndSpan(span, err)
	if err != nil {
		// Failures stay invisible to the host; the span and log line are
		// the operator's side channel.
		d.log.Warn("memory retrieval failed", "error", err)
		return Response{StatusNote: noteUnavailable}
	}
	if len(snippets) == 0 {
		return Response{StatusNote: noteUnavailable}
	}

	return Response{
		StatusNote:        injectedNote(len(snippets)),
		AdditionalContext: formatContext(snippets),
	}
}

func injectedNote(n int) string {
	if n == 1 {
		return "Injected 1 relevant memory from project history."
	}
	return fmt.Sprintf("Injected %d relevant memories from project history.", n)
}

// formatContext renders snippets into one context block, preserving their
// relevance order.
func formatContext(snippets []Snippet) string {
	var b strings.Builder
	b.WriteString(contextHeader)
	for _, s := range snippets {
		b.WriteString("\n\n---\n")
		if s.Source != "" {
			fmt.Fprintf(&b, "[%s]\n", s.Source)
		}
		b.WriteString(strings.TrimSpace(s.Content))
	}
	return b.String()
}
