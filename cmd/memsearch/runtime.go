package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"memsearch/internal/cache"
	"memsearch/internal/config"
	"memsearch/internal/embeddings"
	"memsearch/internal/engine"
	"memsearch/internal/flush"
	"memsearch/internal/store"
)

// runtimeCtx carries shared state into command Run methods.
type runtimeCtx struct {
	cfg *config.Config
	log *slog.Logger
}

// buildEngine assembles the engine for the configured backend. The vec
// backend additionally needs an embedding provider and cache; bleve runs
// keyless.
func buildEngine(cfg *config.Config, log *slog.Logger) (*engine.Engine, error) {
	dir := cfg.StorageDir()

	ecfg := engine.Config{
		Summarizer: flush.New(flush.Config{
			Model:   cfg.Flush.Model,
			BaseURL: cfg.Flush.BaseURL,
		}),
		Logger: log,
	}

	switch cfg.Storage.Backend {
	case "bleve", "":
		s, err := store.NewBleveStore(filepath.Join(dir, "chunks.bleve"))
		if err != nil {
			return nil, err
		}
		ecfg.Store = s

	case "vec":
		embedder, err := embeddings.New(cfg.Embedding.Provider, cfg.Embedding.Model)
		if err != nil {
			return nil, err
		}
		c, err := cache.Open(filepath.Join(dir, "cache.db"))
		if err != nil {
			return nil, err
		}
		s, err := store.NewVecStore(store.VecConfig{
			Path:      filepath.Join(dir, "chunks.db"),
			Dimension: embedder.Dimension(),
		})
		if err != nil {
			c.Close()
			return nil, err
		}
		ecfg.Store = s
		ecfg.Embedder = embedder
		ecfg.Cache = c

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	return engine.New(ecfg)
}

// indexExists reports whether any index data has been created yet.
func indexExists(cfg *config.Config) bool {
	_, err := os.Stat(cfg.StorageDir())
	return err == nil
}

// Run indexes the given paths.
func (c *IndexCmd) Run(rc *runtimeCtx) error {
	eng, err := buildEngine(rc.cfg, rc.log)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	stats, err := eng.Index(ctx, c.Paths)
	if err != nil {
		return err
	}

	if c.Sessions != "" {
		sessionStats, err := eng.IndexSessions(ctx, c.Sessions)
		if err != nil {
			return err
		}
		stats.Files += sessionStats.Files
		stats.Chunks += sessionStats.Chunks
		stats.Embedded += sessionStats.Embedded
		stats.CacheHits += sessionStats.CacheHits
	}

	fmt.Printf("Indexed %d files (%d chunks", stats.Files, stats.Chunks)
	if stats.Embedded > 0 || stats.CacheHits > 0 {
		fmt.Printf(", %d embedded, %d cache hits", stats.Embedded, stats.CacheHits)
	}
	fmt.Println(")")
	return nil
}

// Run watches directories and reindexes on change until interrupted.
func (c *WatchCmd) Run(rc *runtimeCtx) error {
	eng, err := buildEngine(rc.cfg, rc.log)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bring the index current before waiting on events.
	if _, err := eng.Index(ctx, c.Paths); err != nil {
		return err
	}

	w, err := eng.Watch(ctx, c.Paths)
	if err != nil {
		return err
	}
	defer w.Stop()

	fmt.Printf("Watching %s (ctrl-c to stop)\n", strings.Join(c.Paths, ", "))
	<-ctx.Done()
	return nil
}

// Run condenses stored memories (or a session log) into flush documents.
func (c *FlushCmd) Run(rc *runtimeCtx) error {
	eng, err := buildEngine(rc.cfg, rc.log)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	if c.Sessions != "" {
		flushed, err := eng.FlushSessions(ctx, c.Sessions)
		if err != nil {
			return err
		}
		fmt.Printf("Flushed %d sessions into memory\n", flushed)
		return nil
	}

	summary, err := eng.Flush(ctx, c.Source)
	if err != nil {
		return err
	}
	if summary == "" {
		fmt.Println("No chunks to flush.")
		return nil
	}
	fmt.Println("Flush complete. Summary:")
	fmt.Println()
	fmt.Println(summary)
	return nil
}

// Run prints index statistics.
func (c *StatsCmd) Run(rc *runtimeCtx) error {
	eng, err := buildEngine(rc.cfg, rc.log)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Backend:  %s\n", rc.cfg.Storage.Backend)
	fmt.Printf("Storage:  %s\n", rc.cfg.StorageDir())
	fmt.Printf("Chunks:   %d\n", stats.Chunks)
	if stats.Model != "" {
		fmt.Printf("Model:    %s\n", stats.Model)
	}
	return nil
}

// Run deletes all indexed data after confirmation.
func (c *ResetCmd) Run(rc *runtimeCtx) error {
	if !c.Force {
		fmt.Printf("Delete all indexed data under %s? [y/N] ", rc.cfg.StorageDir())
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	eng, err := buildEngine(rc.cfg, rc.log)
	if err != nil {
		return err
	}

	if err := eng.Reset(context.Background()); err != nil {
		return err
	}
	fmt.Println("Index reset.")
	return nil
}

// Run prints version information.
func (c *VersionCmd) Run(rc *runtimeCtx) error {
	fmt.Printf("memsearch %s (commit %s, built %s)\n", version, commit, buildTime)
	return nil
}
