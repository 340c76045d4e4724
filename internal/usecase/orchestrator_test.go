package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/adapter/enrich"
	"parley/internal/adapter/llm"
	"parley/internal/domain"
	"parley/internal/store"
)

// captureUI records orchestrator notices for assertions.
type captureUI struct {
	infos  []string
	errors []string
}

func (u *captureUI) Info(format string, args ...any) {
	u.infos = append(u.infos, fmt.Sprintf(format, args...))
}

func (u *captureUI) Error(format string, args ...any) {
	u.errors = append(u.errors, fmt.Sprintf(format, args...))
}

type harness struct {
	orch    *Orchestrator
	session *Session
	store   *store.Store
	ui      *captureUI
	backend *fakeOpenAI
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := &fakeOpenAI{}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(srv.URL)
	dir := t.TempDir()
	cfg.Chats.Dir = dir

	st, err := store.New(dir, logger)
	require.NoError(t, err)

	providers := llm.NewCache(cfg, logger)
	enricher := enrich.New(0, logger)
	renderer := &captureRenderer{}
	pipeline := NewSendPipeline(cfg, providers, enricher, logger, renderer)
	session := NewSession(cfg, logger, providers, st, enricher)
	ui := &captureUI{}

	return &harness{
		orch:    NewOrchestrator(session, pipeline, ui),
		session: session,
		store:   st,
		ui:      ui,
		backend: backend,
		dir:     dir,
	}
}

func (h *harness) newChat(t *testing.T) {
	t.Helper()
	_, err := h.orch.HandleSignal(context.Background(), NewChatSignal{})
	require.NoError(t, err)
}

func (h *harness) send(t *testing.T, text string) error {
	t.Helper()
	return h.orch.HandleMessage(context.Background(), text)
}

func (h *harness) reload(t *testing.T) *domain.ChatDocument {
	t.Helper()
	doc, err := h.store.Load(h.session.ChatID)
	require.NoError(t, err)
	return doc
}

func TestSendRequiresOpenChat(t *testing.T) {
	h := newHarness(t)
	err := h.send(t, "hello")
	assert.ErrorIs(t, err, domain.ErrNoChatOpen)
}

func TestSuccessCommitsUserAndAssistant(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)

	require.NoError(t, h.send(t, "hello"))

	msgs := h.session.Doc.Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Text())
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "echo: hello", msgs[1].Text())
	assert.Equal(t, "test-model", msgs[1].Model)
	assert.Len(t, h.session.IDs, 2)

	// Committed state survives a reload.
	saved := h.reload(t)
	require.Len(t, saved.Messages, 2)
	assert.Equal(t, "echo: hello", saved.Messages[1].Text())
}

func TestAutoTitleAfterFirstExchange(t *testing.T) {
	h := newHarness(t)
	h.backend.reply = func(string) string { return "Greeting Exchange" }
	h.newChat(t)

	require.NoError(t, h.send(t, "hello"))

	assert.Equal(t, "Greeting Exchange", h.session.Doc.Metadata.Title)
	assert.Equal(t, "Greeting Exchange", h.reload(t).Metadata.Title)
}

func TestProviderFailureCommitsUserPlusError(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	h.backend.status = http.StatusServiceUnavailable

	require.NoError(t, h.send(t, "doomed"))

	msgs := h.session.Doc.Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "doomed", msgs[0].Text())
	assert.Equal(t, domain.RoleError, msgs[1].Role)
	require.NotNil(t, msgs[1].Error)
	assert.Equal(t, CategoryServerFault, msgs[1].Error.Category)
	assert.False(t, h.session.PendingError, "a failed exchange does not arm the pending-error gate")

	// The failed exchange is persisted.
	require.Len(t, h.reload(t).Messages, 2)
}

func TestPreflightFailureCommitsStandaloneErrorAndGates(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)

	h.session.Model = "ghost-model"
	require.NoError(t, h.send(t, "never sent"))

	msgs := h.session.Doc.Messages
	require.Len(t, msgs, 1, "no phantom user turn on a preflight failure")
	assert.Equal(t, domain.RoleError, msgs[0].Role)
	assert.True(t, h.session.PendingError)

	// The gate blocks further normal sends until resolved.
	h.session.Model = "test-model"
	err := h.send(t, "blocked")
	assert.ErrorIs(t, err, domain.ErrPendingError)

	// Accepting the error unblocks.
	_, err = h.orch.HandleSignal(context.Background(), AcceptErrorSignal{})
	require.NoError(t, err)
	require.NoError(t, h.send(t, "flows again"))
	assert.Len(t, h.session.Doc.Messages, 3)
}

func TestPendingErrorRearmsOnReopen(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	h.session.Model = "ghost-model"
	require.NoError(t, h.send(t, "x"))
	id := h.session.ChatID

	_, err := h.orch.HandleSignal(context.Background(), CloseChatSignal{})
	require.NoError(t, err)
	_, err = h.orch.HandleSignal(context.Background(), OpenChatSignal{Ref: id})
	require.NoError(t, err)

	assert.True(t, h.session.PendingError, "gate must be re-derived from the trailing standalone error")
}

func TestRetryFlow(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	require.NoError(t, h.send(t, "first"))
	require.NoError(t, h.send(t, "flawed question"))
	require.Len(t, h.session.Doc.Messages, 4)
	idUser, idAsst := h.session.IDs[2], h.session.IDs[3]

	ctx := context.Background()
	_, err := h.orch.HandleSignal(ctx, EnterRetrySignal{})
	require.NoError(t, err)
	require.NotNil(t, h.session.Retry)

	// Attempts go to the provider against the frozen base; the document is
	// untouched until one is applied.
	require.NoError(t, h.send(t, "better question"))
	require.NoError(t, h.send(t, "even better question"))
	assert.Len(t, h.session.Doc.Messages, 4)
	assert.Len(t, h.session.Retry.Attempts(), 2)

	_, err = h.orch.HandleSignal(ctx, ApplyRetrySignal{Selection: 2})
	require.NoError(t, err)
	assert.Nil(t, h.session.Retry)

	msgs := h.session.Doc.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "even better question", msgs[2].Text())
	assert.Equal(t, "echo: even better question", msgs[3].Text())
	assert.Equal(t, idUser, h.session.IDs[2], "user slot id survives apply")
	assert.Equal(t, idAsst, h.session.IDs[3], "assistant slot id survives apply")

	// Applied replacement is persisted.
	assert.Equal(t, "echo: even better question", h.reload(t).Messages[3].Text())
}

func TestRetryCancelDiscardsAttempts(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	require.NoError(t, h.send(t, "q"))

	ctx := context.Background()
	_, err := h.orch.HandleSignal(ctx, EnterRetrySignal{})
	require.NoError(t, err)
	require.NoError(t, h.send(t, "candidate"))

	before := len(h.session.Doc.Messages)
	_, err = h.orch.HandleSignal(ctx, CancelRetrySignal{})
	require.NoError(t, err)
	assert.Nil(t, h.session.Retry)
	assert.Len(t, h.session.Doc.Messages, before, "cancel must not touch the document")
}

func TestRetryRequiresClassifiableSpan(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)

	_, err := h.orch.HandleSignal(context.Background(), EnterRetrySignal{})
	assert.ErrorIs(t, err, domain.ErrChatEmpty)
}

func TestRetryTargetsFailedExchange(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	require.NoError(t, h.send(t, "ok"))
	h.backend.status = http.StatusInternalServerError
	require.NoError(t, h.send(t, "fails"))
	require.Len(t, h.session.Doc.Messages, 4)

	h.backend.status = 0
	ctx := context.Background()
	_, err := h.orch.HandleSignal(ctx, EnterRetrySignal{})
	require.NoError(t, err)
	require.NoError(t, h.send(t, "fixed"))
	_, err = h.orch.HandleSignal(ctx, ApplyRetrySignal{Selection: 1})
	require.NoError(t, err)

	msgs := h.session.Doc.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.RoleAssistant, msgs[3].Role, "error replaced by assistant")
	assert.Equal(t, "echo: fixed", msgs[3].Text())
}

func TestSecretModeNeverPersists(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	require.NoError(t, h.send(t, "committed"))

	ctx := context.Background()
	_, err := h.orch.HandleSignal(ctx, EnterSecretSignal{})
	require.NoError(t, err)

	require.NoError(t, h.send(t, "off the record"))
	require.NoError(t, h.send(t, "also secret"))
	assert.Equal(t, 4, h.session.Secret.Turns())
	assert.Len(t, h.session.Doc.Messages, 2, "secret turns never reach the document")

	_, err = h.orch.HandleSignal(ctx, ExitSecretSignal{})
	require.NoError(t, err)
	assert.Nil(t, h.session.Secret)

	saved := h.reload(t)
	require.Len(t, saved.Messages, 2)
	for _, m := range saved.Messages {
		assert.NotContains(t, m.Text(), "secret")
		assert.NotContains(t, m.Text(), "off the record")
	}
}

func TestModeConflicts(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	require.NoError(t, h.send(t, "q"))

	ctx := context.Background()
	_, err := h.orch.HandleSignal(ctx, EnterRetrySignal{})
	require.NoError(t, err)

	_, err = h.orch.HandleSignal(ctx, EnterSecretSignal{})
	assert.ErrorIs(t, err, domain.ErrModeConflict, "secret mode rejected while retrying")
	_, err = h.orch.HandleSignal(ctx, EnterRetrySignal{})
	assert.ErrorIs(t, err, domain.ErrModeConflict, "retry mode is not reentrant")
	_, err = h.orch.HandleSignal(ctx, PurgeSignal{HexID: h.session.IDs[0]})
	assert.ErrorIs(t, err, domain.ErrModeConflict, "message surgery rejected while a mode is active")
}

func TestPurgeAndRewind(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	require.NoError(t, h.send(t, "one"))
	require.NoError(t, h.send(t, "two"))
	require.NoError(t, h.send(t, "three"))
	require.Len(t, h.session.Doc.Messages, 6)

	ctx := context.Background()

	// Purge the second user message.
	_, err := h.orch.HandleSignal(ctx, PurgeSignal{HexID: h.session.IDs[2]})
	require.NoError(t, err)
	require.Len(t, h.session.Doc.Messages, 5)
	assert.Equal(t, "echo: two", h.session.Doc.Messages[2].Text())

	// Rewind from the now-dangling assistant answer.
	_, err = h.orch.HandleSignal(ctx, RewindSignal{HexID: h.session.IDs[2]})
	require.NoError(t, err)
	require.Len(t, h.session.Doc.Messages, 2)

	// Both mutations persisted.
	assert.Len(t, h.reload(t).Messages, 2)

	_, err = h.orch.HandleSignal(ctx, PurgeSignal{HexID: "fff"})
	assert.Error(t, err, "unknown hex id must be rejected")
}

func TestSwitchModelValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.HandleSignal(ctx, SwitchModelSignal{Provider: "ghost", Model: "m"})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	_, err = h.orch.HandleSignal(ctx, SwitchModelSignal{Model: "unlisted"})
	assert.ErrorIs(t, err, domain.ErrModelNotFound)

	_, err = h.orch.HandleSignal(ctx, SwitchModelSignal{Model: "test-model"})
	require.NoError(t, err)
	assert.Equal(t, "test", h.session.Provider)
	assert.Equal(t, "test-model", h.session.Model)
}

func TestRenameAndSystemPromptPersist(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)

	ctx := context.Background()
	_, err := h.orch.HandleSignal(ctx, RenameChatSignal{Title: "My Chat"})
	require.NoError(t, err)
	_, err = h.orch.HandleSignal(ctx, SystemPromptSignal{Ref: "file:prompts/terse.md"})
	require.NoError(t, err)

	saved := h.reload(t)
	assert.Equal(t, "My Chat", saved.Metadata.Title)
	assert.Equal(t, "file:prompts/terse.md", saved.Metadata.SystemPrompt,
		"system prompt reference stored verbatim")
}

func TestDeleteChat(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	id := h.session.ChatID

	_, err := h.orch.HandleSignal(context.Background(), DeleteChatSignal{Ref: id})
	require.NoError(t, err)
	assert.False(t, h.session.ChatOpen(), "deleting the open chat closes it")

	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, id+".json", e.Name())
	}
}

func TestNonMutatingSaveSkipsWrite(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	require.NoError(t, h.send(t, "hello"))

	path := filepath.Join(h.dir, h.session.ChatID+".json")
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	stamp := h.session.Doc.Metadata.UpdatedAt

	// Renaming to the current title changes nothing.
	_, err = h.orch.HandleSignal(context.Background(), RenameChatSignal{Title: h.session.Doc.Metadata.Title})
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, stamp, h.session.Doc.Metadata.UpdatedAt)
}

func TestExitSignal(t *testing.T) {
	h := newHarness(t)
	quit, err := h.orch.HandleSignal(context.Background(), ExitSignal{})
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestShowListsMessagesWithHexIDs(t *testing.T) {
	h := newHarness(t)
	h.newChat(t)
	require.NoError(t, h.send(t, "first question"))
	require.NoError(t, h.send(t, "second question"))

	h.ui.infos = nil
	_, err := h.orch.HandleSignal(context.Background(), ShowChatSignal{})
	require.NoError(t, err)

	require.Len(t, h.ui.infos, 4)
	for i, line := range h.ui.infos {
		assert.Contains(t, line, "["+h.session.HexID(i)+"]", "line %d must carry the message's handle", i)
	}
	assert.Contains(t, h.ui.infos[0], "first question")
	assert.Contains(t, h.ui.infos[1], "test-model")

	// The displayed handle addresses message surgery directly.
	shown := h.session.HexID(3)
	_, err = h.orch.HandleSignal(context.Background(), PurgeSignal{HexID: shown})
	require.NoError(t, err)
	assert.Len(t, h.session.Doc.Messages, 3)
}

func TestShowRequiresOpenChat(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.HandleSignal(context.Background(), ShowChatSignal{})
	assert.ErrorIs(t, err, domain.ErrNoChatOpen)
}

func TestStatusShowsBreakerState(t *testing.T) {
	h := newHarness(t)
	h.session.Cfg.LLM.CircuitBreaker.Enabled = true

	_, err := h.orch.HandleSignal(context.Background(), StatusSignal{})
	require.NoError(t, err)

	assert.Contains(t, h.ui.infos, "breaker: closed")
}
