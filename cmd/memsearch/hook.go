package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"memsearch/internal/engine"
	"memsearch/internal/hook"
)

// engineRetriever adapts the engine's search to the hook's retriever surface.
type engineRetriever struct {
	eng *engine.Engine
}

func (r engineRetriever) Retrieve(ctx context.Context, query string, limit int) ([]hook.Snippet, error) {
	results, err := r.eng.Search(ctx, query, engine.SearchOptions{TopK: limit})
	if err != nil {
		return nil, err
	}
	snippets := make([]hook.Snippet, len(results))
	for i, res := range results {
		snippets[i] = hook.Snippet{
			Content: res.Content,
			Source:  snippetSource(res.Source, res.Heading),
		}
	}
	return snippets, nil
}

func snippetSource(source, heading string) string {
	s := filepath.Base(source)
	if heading != "" {
		s += " > " + heading
	}
	return s
}

// Run reads a prompt-submit event from stdin and writes the decision to
// stdout. It always emits valid JSON and always returns nil: a hook that
// fails its host on every prompt is worse than one that stays silent.
func (c *HookCmd) Run(rc *runtimeCtx) error {
	var ev hook.PromptEvent
	if raw, err := io.ReadAll(os.Stdin); err == nil {
		if err := json.Unmarshal(raw, &ev); err != nil {
			rc.log.Warn("malformed hook event", "error", err)
		}
	}

	var retriever hook.Retriever
	if indexExists(rc.cfg) {
		if eng, err := buildEngine(rc.cfg, rc.log); err == nil {
			defer eng.Close()
			retriever = engineRetriever{eng}
		} else {
			rc.log.Warn("memory index unavailable", "error", err)
		}
	}

	d := hook.NewDecider(retriever, hook.Options{
		AutoInject:   rc.cfg.Hook.AutoInject,
		TopK:         rc.cfg.Hook.TopK,
		MinPromptLen: rc.cfg.Hook.MinPromptLen,
		Timeout:      time.Duration(rc.cfg.Hook.TimeoutSecs) * time.Second,
	}, rc.log)

	resp := d.Decide(context.Background(), ev)

	out, err := json.Marshal(resp)
	if err != nil {
		out = []byte("{}")
	}
	os.Stdout.Write(append(out, '\n'))
	return nil
}
