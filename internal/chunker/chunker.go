// Package chunker splits markdown documents into heading-scoped chunks
// suitable for embedding and retrieval.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"gopkg.in/yaml.v3"
)

// Chunk is one heading-scoped section of a markdown document.
type Chunk struct {
	Content      string `json:"content"`
	Source       string `json:"source"`
	Heading      string `json:"heading,omitempty"`
	HeadingLevel int    `json:"heading_level"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Hash         string `json:"chunk_hash"`
}

// Frontmatter holds metadata parsed from a document's YAML frontmatter block.
type Frontmatter struct {
	Title       string   `yaml:"title"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// ChunkMarkdown splits text into chunks, one per heading section. Content
// before the first heading becomes its own chunk. Blank sections are dropped.
func ChunkMarkdown(text, source string) []Chunk {
	body, _ := SplitFrontmatter(text)
	lines := strings.Split(body, "\n")

	// Line numbers are relative to the original text, so offset by the
	// frontmatter length when one was stripped.
	offset := len(strings.Split(text, "\n")) - len(lines)

	var chunks []Chunk
	var cur []string
	curHeading := ""
	curLevel := 0
	curStart := 1

	flush := func(endLine int) {
		content := strings.TrimSpace(strings.Join(cur, "\n"))
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Content:      content,
			Source:       source,
			Heading:      curHeading,
			HeadingLevel: curLevel,
			StartLine:    curStart + offset,
			EndLine:      endLine + offset,
			Hash:         HashContent(content),
		})
	}

	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}

		if !inFence {
			if level, heading, ok := parseHeading(line); ok {
				flush(i)
				cur = cur[:0]
				curHeading = heading
				curLevel = level
				curStart = i + 1
			}
		}
		cur = append(cur, line)
	}
	flush(len(lines))

	return chunks
}

// SplitFrontmatter removes a leading YAML frontmatter fence from text and
// returns the remaining body plus the parsed metadata. Both LF and CRLF line
// endings are recognized. Documents without frontmatter (or with malformed
// YAML) are returned unchanged.
func SplitFrontmatter(text string) (string, *Frontmatter) {
	var rest string
	switch {
	case strings.HasPrefix(text, "---\r\n"):
		rest = text[len("---\r\n"):]
	case strings.HasPrefix(text, "---\n"):
		rest = text[len("---\n"):]
	default:
		return text, nil
	}

	end := strings.Index(rest, "\n---")
	if end < 0 {
		return text, nil
	}

	raw := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\r")
	body = strings.TrimPrefix(body, "\n")

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return text, nil
	}
	return body, &fm
}

// HashContent returns the hex sha256 of chunk content, used as the upsert key.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// parseHeading reports whether line is an ATX heading, returning its level
// and text.
func parseHeading(line string) (int, string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, "#") {
		return 0, "", false
	}
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level > 6 {
		return 0, "", false
	}
	rest := trimmed[level:]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return 0, "", false
	}
	return level, strings.TrimSpace(rest), true
}
