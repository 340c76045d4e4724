package usecase

// Signal is the closed set of typed command signals the orchestrator accepts
// from the command layer. Each variant carries only the payload its
// transition needs; the orchestrator matches them exhaustively in one place.
type Signal interface {
	isSignal()
}

// ExitSignal ends the session.
type ExitSignal struct{}

// NewChatSignal creates and opens a fresh empty chat.
type NewChatSignal struct{}

// OpenChatSignal opens a persisted chat by id or unique id prefix.
type OpenChatSignal struct{ Ref string }

// CloseChatSignal closes the active chat.
type CloseChatSignal struct{}

// RenameChatSignal sets the active chat's title.
type RenameChatSignal struct{ Title string }

// DeleteChatSignal deletes a persisted chat by id or unique id prefix.
type DeleteChatSignal struct{ Ref string }

// ListChatsSignal lists persisted chats.
type ListChatsSignal struct{}

// EnterRetrySignal activates retry mode against the trailing span.
type EnterRetrySignal struct{}

// ApplyRetrySignal commits the selected attempt (1-based) and leaves retry mode.
type ApplyRetrySignal struct{ Selection int }

// CancelRetrySignal discards all attempts and leaves retry mode.
type CancelRetrySignal struct{}

// EnterSecretSignal activates secret mode over a snapshot of the committed chat.
type EnterSecretSignal struct{}

// ExitSecretSignal discards the secret transcript and leaves secret mode.
type ExitSecretSignal struct{}

// ToggleSearchSignal flips provider-side web search for subsequent sends.
type ToggleSearchSignal struct{}

// ToggleReasoningSignal flips extended reasoning for subsequent sends.
type ToggleReasoningSignal struct{}

// SwitchModelSignal changes the active provider/model pair. An empty Provider
// keeps the current one.
type SwitchModelSignal struct {
	Provider string
	Model    string
}

// ShowChatSignal lists the open chat's messages with their session hex ids,
// the handles that purge and rewind address.
type ShowChatSignal struct{}

// PurgeSignal removes a single message addressed by its session hex id.
type PurgeSignal struct{ HexID string }

// RewindSignal removes the addressed message and everything after it.
type RewindSignal struct{ HexID string }

// AcceptErrorSignal clears the pending-error gate, accepting the trailing
// error message as part of the transcript.
type AcceptErrorSignal struct{}

// StatusSignal prints session status (chat, provider/model, modes, tokens).
type StatusSignal struct{}

// TitleSignal regenerates the chat title with the helper model.
type TitleSignal struct{}

// SummarizeSignal regenerates the chat summary with the helper model.
type SummarizeSignal struct{}

// SystemPromptSignal sets (or with empty Ref clears) the chat's system-prompt
// reference, stored verbatim.
type SystemPromptSignal struct{ Ref string }

func (ExitSignal) isSignal()            {}
func (NewChatSignal) isSignal()         {}
func (OpenChatSignal) isSignal()        {}
func (CloseChatSignal) isSignal()       {}
func (RenameChatSignal) isSignal()      {}
func (DeleteChatSignal) isSignal()      {}
func (ListChatsSignal) isSignal()       {}
func (EnterRetrySignal) isSignal()      {}
func (ApplyRetrySignal) isSignal()      {}
func (CancelRetrySignal) isSignal()     {}
func (EnterSecretSignal) isSignal()     {}
func (ExitSecretSignal) isSignal()      {}
func (ToggleSearchSignal) isSignal()    {}
func (ToggleReasoningSignal) isSignal() {}
func (SwitchModelSignal) isSignal()     {}
func (ShowChatSignal) isSignal()        {}
func (PurgeSignal) isSignal()           {}
func (RewindSignal) isSignal()          {}
func (AcceptErrorSignal) isSignal()     {}
func (StatusSignal) isSignal()          {}
func (TitleSignal) isSignal()           {}
func (SummarizeSignal) isSignal()       {}
func (SystemPromptSignal) isSignal()    {}
