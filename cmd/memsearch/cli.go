// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config string `help:"Config file path" type:"path"`

	Index   IndexCmd   `cmd:"" help:"Index markdown files into memory"`
	Search  SearchCmd  `cmd:"" help:"Search indexed memory"`
	List    ListCmd    `cmd:"" help:"List indexed chunks"`
	Watch   WatchCmd   `cmd:"" help:"Watch directories and keep the index current"`
	Flush   FlushCmd   `cmd:"" help:"Compress stored memories into a summary"`
	Stats   StatsCmd   `cmd:"" help:"Show index statistics"`
	Reset   ResetCmd   `cmd:"" help:"Delete all indexed data"`
	Hook    HookCmd    `cmd:"" help:"Run as a prompt-submit hook (reads event JSON on stdin)"`
	Setup   SetupCmd   `cmd:"" help:"Interactive setup wizard"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// IndexCmd indexes markdown files or directories.
type IndexCmd struct {
	Paths    []string `arg:"" help:"Files or directories to index"`
	Sessions string   `help:"Also index a JSONL session log" type:"path"`
}

// SearchCmd searches the index.
type SearchCmd struct {
	Query   string `arg:"" help:"Search query"`
	TopK    int    `short:"k" default:"10" help:"Maximum results"`
	DocType string `help:"Filter by document type (markdown, session, flush)"`
	Source  string `help:"Filter by source path"`
	JSON    bool   `help:"Emit results as JSON"`
}

// WatchCmd watches directories for markdown changes.
type WatchCmd struct {
	Paths []string `arg:"" help:"Directories to watch"`
}

// ListCmd lists indexed chunks.
type ListCmd struct {
	Source string `help:"Filter by source path"`
	Limit  int    `default:"50" help:"Maximum entries"`
	JSON   bool   `help:"Emit entries as JSON"`
}

// FlushCmd condenses stored chunks (or a session log) into flush memories.
type FlushCmd struct {
	Source   string `short:"s" help:"Only flush chunks from this source"`
	Sessions string `help:"Summarize a JSONL session log instead of stored chunks" type:"path"`
}

// StatsCmd shows index statistics.
type StatsCmd struct{}

// ResetCmd deletes the index and embedding cache.
type ResetCmd struct {
	Force bool `help:"Skip confirmation"`
}

// HookCmd runs the prompt-submit hook.
type HookCmd struct{}

// SetupCmd runs the interactive setup wizard.
type SetupCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
