package usecase

import "parley/internal/domain"

// SpanKind classifies the trailing interaction span of a chat, the unit that
// retry mode targets. The span is always a suffix of the message list.
type SpanKind int

const (
	// SpanNone means the tail is not classifiable (empty chat, or a shape
	// such as a dangling user message that retry cannot target).
	SpanNone SpanKind = iota
	// SpanUserAssistant is a completed exchange: (user, assistant).
	SpanUserAssistant
	// SpanUserError is a failed exchange: (user, error).
	SpanUserError
	// SpanErrorOnly is a standalone error with no preceding user turn.
	SpanErrorOnly
)

func (k SpanKind) String() string {
	switch k {
	case SpanUserAssistant:
		return "user+assistant"
	case SpanUserError:
		return "user+error"
	case SpanErrorOnly:
		return "error"
	default:
		return "none"
	}
}

// Len returns the number of messages the span covers.
func (k SpanKind) Len() int {
	switch k {
	case SpanUserAssistant, SpanUserError:
		return 2
	case SpanErrorOnly:
		return 1
	default:
		return 0
	}
}

// ClassifySpan inspects the tail of msgs and returns the span kind together
// with the index of the span's first message. For SpanNone the index is
// len(msgs).
func ClassifySpan(msgs []domain.ChatMessage) (SpanKind, int) {
	n := len(msgs)
	if n == 0 {
		return SpanNone, 0
	}

	last := msgs[n-1]
	switch last.Role {
	case domain.RoleAssistant:
		if n >= 2 && msgs[n-2].Role == domain.RoleUser {
			return SpanUserAssistant, n - 2
		}
	case domain.RoleError:
		if n >= 2 && msgs[n-2].Role == domain.RoleUser {
			return SpanUserError, n - 2
		}
		return SpanErrorOnly, n - 1
	}
	return SpanNone, n
}

// toProviderMessages converts committed chat messages to the provider wire
// shape. Error-role messages are part of the durable transcript but are never
// sent back to a provider.
func toProviderMessages(msgs []domain.ChatMessage) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleError {
			continue
		}
		out = append(out, domain.Message{Role: m.Role, Content: m.Text()})
	}
	return out
}
