package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"memsearch/internal/engine"
	"memsearch/internal/store"
)

// Result display styling.
var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")) // White bold - heading

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - source path

	scoreStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green - relevance

	docTypeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // Blue - doc type tag
)

const contentWidth = 80

// Run searches the index and renders results.
func (c *SearchCmd) Run(rc *runtimeCtx) error {
	eng, err := buildEngine(rc.cfg, rc.log)
	if err != nil {
		return err
	}
	defer eng.Close()

	results, err := eng.Search(context.Background(), c.Query, engine.SearchOptions{
		TopK:    c.TopK,
		DocType: c.DocType,
		Source:  c.Source,
	})
	if err != nil {
		return err
	}

	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range results {
		fmt.Println(renderResult(i+1, r))
	}
	return nil
}

// Run lists indexed chunks.
func (c *ListCmd) Run(rc *runtimeCtx) error {
	eng, err := buildEngine(rc.cfg, rc.log)
	if err != nil {
		return err
	}
	defer eng.Close()

	results, err := eng.List(context.Background(), c.Source, c.Limit)
	if err != nil {
		return err
	}

	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No chunks indexed.")
		return nil
	}

	for _, r := range results {
		fmt.Println(renderListEntry(r))
	}
	return nil
}

func renderListEntry(r store.Result) string {
	title := r.Heading
	if title == "" {
		title = "(no heading)"
	}
	loc := r.Source
	if r.StartLine > 0 {
		loc = fmt.Sprintf("%s:%d", r.Source, r.StartLine)
	}
	return fmt.Sprintf("%s  %s %s",
		headingStyle.Render(title),
		docTypeStyle.Render("["+r.DocType+"]"),
		sourceStyle.Render(loc))
}

func renderResult(rank int, r store.Result) string {
	var b strings.Builder

	title := r.Heading
	if title == "" {
		title = "(no heading)"
	}
	fmt.Fprintf(&b, "%d. %s  %s\n",
		rank,
		headingStyle.Render(title),
		scoreStyle.Render(fmt.Sprintf("%.2f", r.Score)))

	loc := r.Source
	if r.StartLine > 0 {
		loc = fmt.Sprintf("%s:%d", r.Source, r.StartLine)
	}
	fmt.Fprintf(&b, "   %s %s\n",
		docTypeStyle.Render("["+r.DocType+"]"),
		sourceStyle.Render(loc))

	content := wordwrap.String(r.Content, contentWidth)
	for _, line := range strings.Split(content, "\n") {
		b.WriteString("   " + line + "\n")
	}
	return b.String()
}
