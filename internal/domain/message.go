package domain

import (
	"strings"
	"time"
)

// Role constants for chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// Citation is a source reference attached to an assistant message.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ErrorDetail carries the structured detail of an error-role message.
type ErrorDetail struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// ChatMessage is a single message in a conversation. Content is always a
// sequence of lines (empty lines preserved) so that diffed persistence stays
// line-stable; it is never collapsed into one opaque string.
type ChatMessage struct {
	Timestamp time.Time    `json:"timestamp"`
	Role      string       `json:"role"`
	Model     string       `json:"model,omitempty"`
	Content   []string     `json:"content"`
	Citations []Citation   `json:"citations,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// NewUserMessage builds a user message from raw input text, split into lines.
func NewUserMessage(text string) ChatMessage {
	return ChatMessage{
		Timestamp: time.Now().UTC(),
		Role:      RoleUser,
		Content:   SplitLines(text),
	}
}

// NewAssistantMessage builds an assistant message stamped with the model that
// produced it.
func NewAssistantMessage(text, model string, citations []Citation) ChatMessage {
	return ChatMessage{
		Timestamp: time.Now().UTC(),
		Role:      RoleAssistant,
		Model:     model,
		Content:   SplitLines(text),
		Citations: citations,
	}
}

// NewErrorMessage builds an error-role message from a classified provider
// failure.
func NewErrorMessage(category, detail string) ChatMessage {
	return ChatMessage{
		Timestamp: time.Now().UTC(),
		Role:      RoleError,
		Content:   SplitLines(detail),
		Error:     &ErrorDetail{Category: category, Message: detail},
	}
}

// Text joins the message lines back into a single string.
func (m ChatMessage) Text() string {
	return strings.Join(m.Content, "\n")
}

// SplitLines splits text into lines, preserving interior empty lines and
// trimming exactly one trailing newline if present.
func SplitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}
