package usecase

import "parley/internal/domain"

// RetryAttempt is one candidate replacement pair generated while retry mode
// is active. Attempts never touch the chat document until one is applied.
type RetryAttempt struct {
	UserText  string
	Assistant string
	Model     string
	Citations []domain.Citation
}

// RetryController holds the frozen context captured when retry mode was
// entered plus the candidate attempts generated since. The base never changes
// while the controller lives: every attempt is generated independently
// against the same frozen prefix, not against previous attempts.
type RetryController struct {
	base     []domain.ChatMessage // everything strictly before the target span
	kind     SpanKind
	attempts []RetryAttempt
}

// NewRetryController captures the base context (cloned, so later document
// mutations cannot leak in) and the target span kind.
func NewRetryController(base []domain.ChatMessage, kind SpanKind) *RetryController {
	return &RetryController{
		base: domain.CloneMessages(base),
		kind: kind,
	}
}

// Kind returns the shape of the span being retried.
func (r *RetryController) Kind() SpanKind { return r.kind }

// Context returns the outbound provider context for a retry send: the frozen
// base plus a single new user line. The target span is excluded by
// construction, since it was never captured.
func (r *RetryController) Context(newUser string) []domain.Message {
	msgs := toProviderMessages(r.base)
	return append(msgs, domain.Message{Role: domain.RoleUser, Content: newUser})
}

// Add records a successful candidate attempt.
func (r *RetryController) Add(attempt RetryAttempt) {
	r.attempts = append(r.attempts, attempt)
}

// Attempts returns the accumulated candidates in generation order.
func (r *RetryController) Attempts() []RetryAttempt { return r.attempts }

// Attempt returns the candidate with the given 1-based selection number.
func (r *RetryController) Attempt(selection int) (RetryAttempt, bool) {
	if selection < 1 || selection > len(r.attempts) {
		return RetryAttempt{}, false
	}
	return r.attempts[selection-1], true
}
