package usecase

import "parley/internal/domain"

// SecretController holds an off-the-record continuation of the chat: a base
// snapshot frozen at activation plus a growing transcript of secret turns.
// Nothing in here is ever persisted; switching secret mode off discards the
// transcript unconditionally. Commits to the real document made after
// activation are deliberately NOT reflected into the frozen base.
type SecretController struct {
	base       []domain.ChatMessage
	transcript []domain.ChatMessage
}

// NewSecretController snapshots the committed message list as the immutable
// base of the secret branch.
func NewSecretController(committed []domain.ChatMessage) *SecretController {
	return &SecretController{base: domain.CloneMessages(committed)}
}

// Context returns the outbound provider context for a secret send: frozen
// base, then every prior secret turn, then the new user line: a coherent
// sub-conversation in which later turns see earlier ones.
func (s *SecretController) Context(newUser string) []domain.Message {
	msgs := toProviderMessages(s.base)
	msgs = append(msgs, toProviderMessages(s.transcript)...)
	return append(msgs, domain.Message{Role: domain.RoleUser, Content: newUser})
}

// Append records a completed secret turn in the in-memory transcript.
func (s *SecretController) Append(user, assistant domain.ChatMessage) {
	s.transcript = append(s.transcript, user, assistant)
}

// Turns returns the number of messages in the secret transcript.
func (s *SecretController) Turns() int { return len(s.transcript) }
