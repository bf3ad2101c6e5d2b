package ui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ehrlich-b/clawchat/internal/sessionlog"
	"github.com/ehrlich-b/clawchat/internal/watch"
)

const maxToolInput = 120

// Renderer handles ANSI-styled rendering of conversation messages for
// terminal output.
type Renderer struct {
	theme Theme
	cards bool
}

// NewRenderer creates a new ANSI renderer with the given theme. Assistant
// messages are drawn as bordered cards.
func NewRenderer(theme Theme) *Renderer {
	return &Renderer{theme: theme, cards: true}
}

// NewPlainRenderer renders without color or borders.
func NewPlainRenderer() *Renderer {
	return &Renderer{theme: PlainTheme()}
}

// Conversation renders a whole thread in order.
func (r *Renderer) Conversation(msgs []sessionlog.Message) string {
	if len(msgs) == 0 {
		return r.System("(no messages yet)")
	}
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(r.Message(m))
	}
	return b.String()
}

// Message renders one thread entry according to its role.
func (r *Renderer) Message(m sessionlog.Message) string {
	switch m.Role {
	case sessionlog.RoleUser:
		return r.User(m)
	case sessionlog.RoleAssistant:
		return r.Assistant(m)
	default:
		return r.System(m.Text)
	}
}

// User renders a user message with ANSI styling
func (r *Renderer) User(m sessionlog.Message) string {
	prefix := r.theme.UserMessage.Render("You:")
	if ts := r.stamp(m.Timestamp); ts != "" {
		prefix += " " + ts
	}
	message := r.theme.UserMessageContent.Render(m.Text)
	return prefix + "\n" + message + "\n\n"
}

// Assistant renders the assistant reply with its tool calls and their results.
func (r *Renderer) Assistant(m sessionlog.Message) string {
	header := r.theme.AgentHeader.Render("Assistant")
	if ts := r.stamp(m.Timestamp); ts != "" {
		header += " " + ts
	}

	var body strings.Builder
	if m.Text != "" {
		body.WriteString(r.theme.AgentMessage.Render(m.Text))
	}
	for _, t := range m.Tools {
		if body.Len() > 0 {
			body.WriteByte('\n')
		}
		body.WriteString(r.theme.ToolHeader.Render("● " + t.Name + "(" + toolInput(t.Input) + ")"))
	}
	for _, res := range m.ToolResults {
		for _, line := range strings.Split(res.Text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			body.WriteByte('\n')
			body.WriteString(r.theme.ToolOutput.Render(line))
		}
		for _, img := range res.Images {
			body.WriteByte('\n')
			body.WriteString(r.theme.ToolOutput.Render(fmt.Sprintf("[image %s, %d bytes base64]", img.MimeType, len(img.Data))))
		}
	}

	content := header
	if body.Len() > 0 {
		content += "\n" + body.String()
	}
	if !r.cards {
		return content + "\n\n"
	}
	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("13")).
		Padding(0, 1).
		MarginBottom(1)
	return cardStyle.Render(content) + "\n"
}

// System renders a system message
func (r *Renderer) System(content string) string {
	return r.theme.SystemMessage.Render(content) + "\n\n"
}

// Error renders an error line
func (r *Renderer) Error(err error) string {
	return r.theme.ErrorMessage.Render("error: "+err.Error()) + "\n"
}

// Event renders one change notification as a single line.
func (r *Renderer) Event(ev watch.Event) string {
	if ev.TS == 0 {
		return r.theme.SystemMessage.Render(ev.Type) + "\n"
	}
	at := time.UnixMilli(ev.TS).Format("15:04:05.000")
	return r.theme.Timestamp.Render(at) + " " + ev.Type + "\n"
}

// stamp formats a log timestamp, which is either epoch milliseconds or an
// ISO-8601 string.
func (r *Renderer) stamp(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return r.theme.Timestamp.Render(time.UnixMilli(ms).Format("2006-01-02 15:04"))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return r.theme.Timestamp.Render(t.Local().Format("2006-01-02 15:04"))
		}
		return r.theme.Timestamp.Render(s)
	}
	return ""
}

func toolInput(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "{}" || s == "null" {
		return ""
	}
	if r := []rune(s); len(r) > maxToolInput {
		s = string(r[:maxToolInput]) + "…"
	}
	return s
}
