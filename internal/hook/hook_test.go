package hook

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

// fakeRetriever counts calls and returns canned snippets or an error.
type fakeRetriever struct {
	calls    int
	lastQ    string
	lastK    int
	snippets []Snippet
	err      error
	delay    time.Duration
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, limit int) ([]Snippet, error) {
	f.calls++
	f.lastQ = query
	f.lastK = limit
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.snippets, f.err
}

const longPrompt = "What did we decide about the caching layer last week?"

func TestDecide_ShortPromptIsNoOp(t *testing.T) {
	ret := &fakeRetriever{snippets: []Snippet{{Content: "something"}}}
	for _, autoInject := range []bool{false, true} {
		d := NewDecider(ret, Options{AutoInject: autoInject}, nil)
		for _, prompt := range []string{"", "hi", "   hi   ", "thanks!", "\n\nok\n"} {
			resp := d.Decide(context.Background(), PromptEvent{Prompt: prompt})
			if resp != (Response{}) {
				t.Errorf("prompt %q autoInject=%v: got %+v, want empty response", prompt, autoInject, resp)
			}
		}
	}
	if ret.calls != 0 {
		t.Errorf("retriever called %d times for short prompts", ret.calls)
	}
}

func TestDecide_NoRetrieverIsUnavailable(t *testing.T) {
	d := NewDecider(nil, Options{AutoInject: true}, nil)
	resp := d.Decide(context.Background(), PromptEvent{Prompt: longPrompt})
	if resp.StatusNote == "" {
		t.Error("expected a status note")
	}
	if resp.AdditionalContext != "" {
		t.Errorf("additionalContext must be absent, got %q", resp.AdditionalContext)
	}
}

func TestDecide_HintOnlyNeverCallsRetriever(t *testing.T) {
	ret := &fakeRetriever{snippets: []Snippet{{Content: "irrelevant"}}}
	d := NewDecider(ret, Options{AutoInject: false}, nil)

	resp := d.Decide(context.Background(), PromptEvent{Prompt: longPrompt})
	if resp.StatusNote == "" {
		t.Error("expected a hint note")
	}
	if resp.AdditionalContext != "" {
		t.Error("hint response must carry no context")
	}
	if ret.calls != 0 {
		t.Errorf("retriever called %d times with autoInject off", ret.calls)
	}
}

func TestDecide_InjectsSnippetsInOrder(t *testing.T) {
	ret := &fakeRetriever{snippets: []Snippet{
		{Content: "Use Redis for session cache", Source: "decisions.md"},
		{Content: "Cache TTL set to 1 hour"},
	}}
	d := NewDecider(ret, Options{AutoInject: true, TopK: 3}, nil)

	resp := d.Decide(context.Background(), PromptEvent{Prompt: longPrompt})
	if ret.calls != 1 {
		t.Fatalf("retriever called %d times, want 1", ret.calls)
	}
	if ret.lastQ != longPrompt || ret.lastK != 3 {
		t.Errorf("retrieved (%q, %d), want (%q, 3)", ret.lastQ, ret.lastK, longPrompt)
	}
	if !strings.Contains(resp.StatusNote, "2") {
		t.Errorf("status note %q should report 2 snippets", resp.StatusNote)
	}

	first := strings.Index(resp.AdditionalContext, "Use Redis for session cache")
	second := strings.Index(resp.AdditionalContext, "Cache TTL set to 1 hour")
	if first < 0 || second < 0 {
		t.Fatalf("context missing snippets: %q", resp.AdditionalContext)
	}
	if first > second {
		t.Error("snippets out of relevance order")
	}
	if !strings.Contains(resp.AdditionalContext, "decisions.md") {
		t.Error("context should carry snippet sources")
	}
	if !strings.HasPrefix(resp.AdditionalContext, contextHeader) {
		t.Error("context must start with the memory header")
	}
}

func TestDecide_SingleSnippetNote(t *testing.T) {
	ret := &fakeRetriever{snippets: []Snippet{{Content: "only one"}}}
	d := NewDecider(ret, Options{AutoInject: true}, nil)

	resp := d.Decide(context.Background(), PromptEvent{Prompt: longPrompt})
	if !strings.Contains(resp.StatusNote, "1") {
		t.Errorf("status note %q should report 1 snippet", resp.StatusNote)
	}
}

func TestDecide_RetrievalErrorIsUnavailable(t *testing.T) {
	ret := &fakeRetriever{err: errors.New("index corrupted")}
	d := NewDecider(ret, Options{AutoInject: true}, nil)

	resp := d.Decide(context.Background(), PromptEvent{Prompt: longPrompt})
	if resp.AdditionalContext != "" {
		t.Error("failed retrieval must inject nothing")
	}
	if resp.StatusNote != noteUnavailable {
		t.Errorf("note = %q, want the unavailable note", resp.StatusNote)
	}
}

func TestDecide_ZeroResultsIsUnavailable(t *testing.T) {
	ret := &fakeRetriever{}
	d := NewDecider(ret, Options{AutoInject: true}, nil)

	resp := d.Decide(context.Background(), PromptEvent{Prompt: longPrompt})
	if resp.AdditionalContext != "" || resp.StatusNote != noteUnavailable {
		t.Errorf("zero results should degrade to unavailable, got %+v", resp)
	}
}

func TestDecide_TimeoutIsUnavailable(t *testing.T) {
	ret := &fakeRetriever{
		snippets: []Snippet{{Content: "too late"}},
		delay:    200 * time.Millisecond,
	}
	d := NewDecider(ret, Options{AutoInject: true, Timeout: 20 * time.Millisecond}, nil)

	resp := d.Decide(context.Background(), PromptEvent{Prompt: longPrompt})
	if resp.AdditionalContext != "" {
		t.Error("timed-out retrieval must inject nothing")
	}
	if resp.StatusNote != noteUnavailable {
		t.Errorf("note = %q, want the unavailable note", resp.StatusNote)
	}
}

func TestDecide_Idempotent(t *testing.T) {
	ret := &fakeRetriever{snippets: []Snippet{
		{Content: "Use Redis for session cache"},
		{Content: "Cache TTL set to 1 hour"},
	}}
	d := NewDecider(ret, Options{AutoInject: true}, nil)
	ev := PromptEvent{Prompt: longPrompt}

	a := d.Decide(context.Background(), ev)
	b := d.Decide(context.Background(), ev)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical inputs produced different responses:\n%+v\n%+v", a, b)
	}
}

func TestDecide_DefaultsApplied(t *testing.T) {
	ret := &fakeRetriever{snippets: []Snippet{{Content: "x"}}}
	d := NewDecider(ret, Options{AutoInject: true}, nil)

	d.Decide(context.Background(), PromptEvent{Prompt: longPrompt})
	if ret.lastK != defaultTopK {
		t.Errorf("topK = %d, want default %d", ret.lastK, defaultTopK)
	}

	// Nine characters trimmed: below the default threshold.
	ret.calls = 0
	resp := d.Decide(context.Background(), PromptEvent{Prompt: "123456789"})
	if resp != (Response{}) || ret.calls != 0 {
		t.Error("nine-character prompt should be filtered by the default threshold")
	}

	// Ten characters: passes.
	resp = d.Decide(context.Background(), PromptEvent{Prompt: "1234567890"})
	if resp == (Response{}) {
		t.Error("ten-character prompt should pass the default threshold")
	}
}
