// Package sessionlog rebuilds the conversation thread from the gateway's
// append-only JSONL session log.
package sessionlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolResult = "toolResult"

	defaultImageMime = "image/png"
	defaultToolName  = "tool"
)

// Message is one entry of the reconstructed thread. Tool results never appear
// on their own; they hang off the assistant message that preceded them.
type Message struct {
	Role        string          `json:"role"`
	Text        string          `json:"text"`
	Tools       []ToolCall      `json:"tools,omitempty"`
	ToolResults []ToolResult    `json:"toolResults,omitempty"`
	Timestamp   json.RawMessage `json:"timestamp"`
}

// MarshalJSON always writes "tools" for assistant messages, as an empty list
// when there were no tool calls. User messages carry no tools key.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	if m.Role != RoleAssistant {
		return json.Marshal(plain(m))
	}
	tools := m.Tools
	if tools == nil {
		tools = []ToolCall{}
	}
	return json.Marshal(struct {
		Role        string          `json:"role"`
		Text        string          `json:"text"`
		Tools       []ToolCall      `json:"tools"`
		ToolResults []ToolResult    `json:"toolResults,omitempty"`
		Timestamp   json.RawMessage `json:"timestamp"`
	}{m.Role, m.Text, tools, m.ToolResults, m.Timestamp})
}

type ToolCall struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type ToolResult struct {
	Text   string  `json:"text"`
	Images []Image `json:"images"`
}

type Image struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type logEntry struct {
	Type    string      `json:"type"`
	Message *logMessage `json:"message"`
}

type logMessage struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type contentItem struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Data      string          `json:"data"`
	MimeType  string          `json:"mimeType"`
	Name      string          `json:"name"`
	ToolName  string          `json:"toolName"`
	Input     json.RawMessage `json:"input"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParseFile reads the session log at path. A read failure is reported as an
// error alongside an empty, non-nil thread; callers should treat it as "no
// messages yet".
func ParseFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return []Message{}, fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	msgs, err := Parse(f)
	if err != nil {
		return []Message{}, fmt.Errorf("read session log %s: %w", path, err)
	}
	return msgs, nil
}

// Parse rebuilds the thread from JSONL records. Malformed records are skipped.
func Parse(r io.Reader) ([]Message, error) {
	msgs := []Message{}
	// index of the most recent assistant message in msgs, -1 when none
	lastAssistant := -1

	br := bufio.NewReader(r)
	lineNo := 0
	for {
		line, readErr := br.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return msgs, readErr
		}
		lineNo++
		line = bytes.TrimSpace(line)

		if len(line) > 0 {
			var e logEntry
			if err := json.Unmarshal(line, &e); err != nil {
				slog.Debug("session log: skipping malformed record", "line", lineNo, "error", err)
			} else if e.Type == "message" && e.Message != nil {
				lastAssistant = apply(&msgs, lastAssistant, e.Message, lineNo)
			}
		}

		if readErr != nil {
			return msgs, nil
		}
	}
}

// apply folds one message record into msgs and returns the updated
// assistant cursor.
func apply(msgs *[]Message, lastAssistant int, m *logMessage, lineNo int) int {
	items := decodeContent(m.Content)
	ts := timestamp(m.Timestamp)

	switch m.Role {
	case RoleUser:
		text := strings.TrimSpace(joinText(items))
		if text != "" {
			*msgs = append(*msgs, Message{Role: RoleUser, Text: text, Timestamp: ts})
		}

	case RoleAssistant:
		msg := Message{Role: RoleAssistant, Text: joinText(items), Tools: []ToolCall{}, Timestamp: ts}
		for _, it := range items {
			if it.Type != "toolCall" {
				continue
			}
			msg.Tools = append(msg.Tools, ToolCall{Name: toolName(it), Input: toolInput(it)})
		}
		*msgs = append(*msgs, msg)
		return len(*msgs) - 1

	case RoleToolResult:
		if lastAssistant < 0 {
			slog.Debug("session log: dropping tool result with no preceding assistant message", "line", lineNo)
			return lastAssistant
		}
		res := ToolResult{Text: joinText(items), Images: []Image{}}
		for _, it := range items {
			if it.Type != "image" {
				continue
			}
			mime := it.MimeType
			if mime == "" {
				mime = defaultImageMime
			}
			res.Images = append(res.Images, Image{Data: it.Data, MimeType: mime})
		}
		target := &(*msgs)[lastAssistant]
		target.ToolResults = append(target.ToolResults, res)
	}
	return lastAssistant
}

// decodeContent returns the content items of a message. Non-array content and
// individually malformed items are ignored.
func decodeContent(raw json.RawMessage) []contentItem {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil
	}
	items := make([]contentItem, 0, len(rawItems))
	for _, ri := range rawItems {
		var it contentItem
		if err := json.Unmarshal(ri, &it); err != nil {
			continue
		}
		items = append(items, it)
	}
	return items
}

func joinText(items []contentItem) string {
	var parts []string
	for _, it := range items {
		if it.Type == "text" {
			parts = append(parts, it.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func toolName(it contentItem) string {
	switch {
	case it.Name != "":
		return it.Name
	case it.ToolName != "":
		return it.ToolName
	}
	return defaultToolName
}

func toolInput(it contentItem) json.RawMessage {
	if present(it.Input) {
		return it.Input
	}
	if present(it.Arguments) {
		return it.Arguments
	}
	return json.RawMessage("{}")
}

// timestamp passes the record's timestamp through, dropping falsy values.
func timestamp(raw json.RawMessage) json.RawMessage {
	if !present(raw) {
		return nil
	}
	switch string(raw) {
	case "0", `""`, "false":
		return nil
	}
	return raw
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
