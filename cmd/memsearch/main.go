// Package main is the entry point for the memsearch CLI.
package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"memsearch/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for API keys and overrides
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("memsearch"),
		kong.Description("Semantic search over markdown knowledge bases and session memory."),
		kong.UsageOnError(),
		kongVars(),
	)

	// stdout carries command output (and the hook response); logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	rc := &runtimeCtx{
		cfg: loadConfig(cli.Config, log),
		log: log,
	}
	ctx.FatalIfErrorf(ctx.Run(rc))
}

// loadConfig loads the named config file, or the default chain when empty.
func loadConfig(path string, log *slog.Logger) *config.Config {
	if path == "" {
		return config.Load()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Warn("failed to load config, using defaults", "path", path, "error", err)
		return config.New()
	}
	return cfg
}
