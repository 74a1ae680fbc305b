// Package session parses agent conversation logs in JSONL form so they can
// be indexed as memory.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Message is a single user or assistant message from a session log.
type Message struct {
	Role      string
	Content   string
	Timestamp string
}

// Session is one parsed conversation.
type Session struct {
	ID       string
	Messages []Message
	Source   string
}

// logLine mirrors one line of a session log. Content is either a plain
// string or a list of content blocks.
type logLine struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ParseFile parses a JSONL session log into sessions, grouped by session ID
// in first-seen order. Missing files and unparseable lines yield no error;
// they simply contribute nothing.
func ParseFile(path string) ([]Session, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	byID := make(map[string]*Session)
	var order []string

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var entry logLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry.Type != "user" && entry.Type != "assistant" {
			continue
		}

		content := decodeContent(entry.Message.Content)
		if strings.TrimSpace(content) == "" {
			continue
		}

		id := entry.SessionID
		if id == "" {
			id = "unknown"
		}
		role := entry.Message.Role
		if role == "" {
			role = entry.Type
		}

		s, ok := byID[id]
		if !ok {
			s = &Session{ID: id, Source: path}
			byID[id] = s
			order = append(order, id)
		}
		s.Messages = append(s.Messages, Message{
			Role:      role,
			Content:   content,
			Timestamp: entry.Timestamp,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading session log: %w", err)
	}

	sessions := make([]Session, 0, len(order))
	for _, id := range order {
		sessions = append(sessions, *byID[id])
	}
	return sessions, nil
}

// decodeContent extracts text from a message content field, which is either
// a string or a list of typed blocks.
func decodeContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}

	var parts []string
	for _, b := range blocks {
		var block contentBlock
		if err := json.Unmarshal(b, &block); err == nil && block.Type == "text" {
			parts = append(parts, block.Text)
			continue
		}
		var str string
		if err := json.Unmarshal(b, &str); err == nil {
			parts = append(parts, str)
		}
	}
	return strings.Join(parts, "\n")
}

// ToMarkdown renders the session as markdown for chunking and embedding.
func (s *Session) ToMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n", s.ID)
	for _, msg := range s.Messages {
		label := "Assistant"
		if msg.Role == "user" {
			label = "User"
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", label, msg.Content)
	}
	return b.String()
}
