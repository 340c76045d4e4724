package domain

import "time"

// ChatMetadata holds the descriptive header of a persisted chat. SystemPrompt
// is stored verbatim and unresolved so user-supplied shorthand survives a
// round trip.
type ChatMetadata struct {
	Title        string    `json:"title,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChatDocument is the persisted conversation: metadata plus the ordered
// message sequence. While a session is open it is owned exclusively by the
// session state and mutated only by the orchestrator.
type ChatDocument struct {
	Metadata ChatMetadata  `json:"metadata"`
	Messages []ChatMessage `json:"messages"`
}

// NewChatDocument creates an empty document with both timestamps set to now.
func NewChatDocument() *ChatDocument {
	now := time.Now().UTC()
	return &ChatDocument{
		Metadata: ChatMetadata{CreatedAt: now, UpdatedAt: now},
		Messages: []ChatMessage{},
	}
}

// Append adds a message to the end of the document.
func (d *ChatDocument) Append(msg ...ChatMessage) {
	d.Messages = append(d.Messages, msg...)
}

// Empty reports whether the document has no messages.
func (d *ChatDocument) Empty() bool { return len(d.Messages) == 0 }

// Clone returns a deep copy of the document. Used to snapshot the committed
// state when secret mode is activated.
func (d *ChatDocument) Clone() *ChatDocument {
	cp := &ChatDocument{Metadata: d.Metadata}
	cp.Messages = CloneMessages(d.Messages)
	return cp
}

// CloneMessages deep-copies a message slice, including per-message line and
// citation slices.
func CloneMessages(msgs []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].Content = append([]string(nil), m.Content...)
		if m.Citations != nil {
			out[i].Citations = append([]Citation(nil), m.Citations...)
		}
		if m.Error != nil {
			detail := *m.Error
			out[i].Error = &detail
		}
	}
	return out
}
