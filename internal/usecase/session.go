package usecase

import (
	"log/slog"

	"parley/internal/adapter/enrich"
	"parley/internal/adapter/llm"
	"parley/internal/domain"
	"parley/internal/infra/config"
	"parley/internal/store"
)

// Session is the single mutable state root for one process run: the active
// chat document, resolved configuration, provider/model selection, mode
// controllers, and shared collaborators. It is constructed once at startup
// and passed explicitly to the orchestrator and send pipeline; there is no
// ambient module-level state. All access happens from the single interactive
// control-flow goroutine.
type Session struct {
	Cfg       *config.Config
	Logger    *slog.Logger
	Providers *llm.Cache
	Store     *store.Store
	Enricher  *enrich.Enricher

	// Active chat. ChatID is empty when no chat is open. IDs holds the
	// session-scoped hex identifier for each message, aligned with
	// Doc.Messages.
	ChatID string
	Doc    *domain.ChatDocument
	IDs    []string
	hex    *HexIDAllocator

	// Provider/model selection.
	Provider       string
	Model          string
	HelperProvider string
	HelperModel    string

	// Chat-scoped mode state, reset whenever the chat is switched or closed.
	SearchEnabled    bool
	ReasoningEnabled bool
	PendingError     bool
	Retry            *RetryController  // non-nil while retry mode is active
	Secret           *SecretController // non-nil while secret mode is active
}

// NewSession builds the state root from resolved configuration and the shared
// collaborators.
func NewSession(cfg *config.Config, logger *slog.Logger, providers *llm.Cache, st *store.Store, enricher *enrich.Enricher) *Session {
	helperProvider := cfg.LLM.HelperProvider
	helperModel := cfg.LLM.HelperModel
	if helperProvider == "" {
		helperProvider = cfg.LLM.DefaultProvider
	}
	if helperModel == "" {
		helperModel = cfg.LLM.DefaultModel
	}

	return &Session{
		Cfg:            cfg,
		Logger:         logger,
		Providers:      providers,
		Store:          st,
		Enricher:       enricher,
		Provider:       cfg.LLM.DefaultProvider,
		Model:          cfg.LLM.DefaultModel,
		HelperProvider: helperProvider,
		HelperModel:    helperModel,
		hex:            NewHexIDAllocator(),
	}
}

// ChatOpen reports whether a chat is currently open.
func (s *Session) ChatOpen() bool { return s.Doc != nil }

// AttachChat installs a document as the active chat and recomputes hex IDs
// over its messages. Any previous chat-scoped state is reset first.
func (s *Session) AttachChat(id string, doc *domain.ChatDocument) {
	s.resetChatScoped()
	s.ChatID = id
	s.Doc = doc
	s.IDs = make([]string, len(doc.Messages))
	for i := range doc.Messages {
		s.IDs[i] = s.hex.Alloc()
	}
	// Pending-error is derived, not persisted: a reload of a chat whose last
	// message is a standalone error re-arms the gate.
	if kind, _ := ClassifySpan(doc.Messages); kind == SpanErrorOnly {
		s.PendingError = true
	}
}

// DetachChat closes the active chat, dropping all chat-scoped state.
func (s *Session) DetachChat() {
	if s.ChatID != "" {
		s.Store.Forget(s.ChatID)
	}
	s.ChatID = ""
	s.Doc = nil
	s.IDs = nil
	s.resetChatScoped()
}

func (s *Session) resetChatScoped() {
	s.PendingError = false
	s.Retry = nil
	s.Secret = nil
	s.hex.Reset()
}

// AppendCommitted appends messages to the document and assigns each a fresh
// hex identifier.
func (s *Session) AppendCommitted(msgs ...domain.ChatMessage) {
	s.Doc.Append(msgs...)
	for range msgs {
		s.IDs = append(s.IDs, s.hex.Alloc())
	}
}

// ReplaceTail replaces the trailing span of the document with replacement
// messages, pairing identifiers slot by slot: existing suffix slots keep
// their ids, and extra replacement slots (the standalone-error shape growing
// from one message to two) get fresh ids allocated at the front.
func (s *Session) ReplaceTail(start int, replacement ...domain.ChatMessage) {
	oldIDs := s.IDs[start:]
	newIDs := make([]string, len(replacement))

	// Align old ids to the END of the replacement so the slot that survives
	// (the error slot becoming the assistant slot) keeps its identity.
	offset := len(replacement) - len(oldIDs)
	for i := range replacement {
		if i >= offset {
			newIDs[i] = oldIDs[i-offset]
		} else {
			newIDs[i] = s.hex.Alloc()
		}
	}
	// Shrinking spans would strand ids; free the surplus.
	for i := 0; i < len(oldIDs)-len(replacement); i++ {
		s.hex.Free(oldIDs[i])
	}

	s.Doc.Messages = append(s.Doc.Messages[:start], replacement...)
	s.IDs = append(s.IDs[:start], newIDs...)
}

// IndexByHexID returns the index of the message with the given session id.
func (s *Session) IndexByHexID(id string) (int, bool) {
	for i, have := range s.IDs {
		if have == id {
			return i, true
		}
	}
	return 0, false
}

// RemoveAt purges a single message, freeing its identifier.
func (s *Session) RemoveAt(idx int) {
	s.hex.Free(s.IDs[idx])
	s.Doc.Messages = append(s.Doc.Messages[:idx], s.Doc.Messages[idx+1:]...)
	s.IDs = append(s.IDs[:idx], s.IDs[idx+1:]...)
}

// TruncateFrom rewinds the chat to just before idx, freeing the identifiers
// of every removed message.
func (s *Session) TruncateFrom(idx int) {
	for i := idx; i < len(s.IDs); i++ {
		s.hex.Free(s.IDs[i])
	}
	s.Doc.Messages = s.Doc.Messages[:idx]
	s.IDs = s.IDs[:idx]
}

// HexID returns the session identifier for the message at idx.
func (s *Session) HexID(idx int) string { return s.IDs[idx] }
