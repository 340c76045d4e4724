package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parley/internal/adapter/llm"
	"parley/internal/domain"
	"parley/internal/store"
)

// titleTimeout bounds the best-effort helper-model calls for title and
// summary generation so they cannot stall the interactive loop for long.
const titleTimeout = 15 * time.Second

// UI is the orchestrator's output surface for notices and errors. Streaming
// text goes through the pipeline's Renderer instead.
type UI interface {
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Orchestrator is the mode/transition state machine. It classifies input,
// decides what to send and in which mode, and folds every send outcome back
// into session state, commit or rollback. It is the only writer of the chat
// document.
type Orchestrator struct {
	s        *Session
	pipeline *SendPipeline
	ui       UI
}

// NewOrchestrator wires the state machine over the session root.
func NewOrchestrator(s *Session, pipeline *SendPipeline, ui UI) *Orchestrator {
	return &Orchestrator{s: s, pipeline: pipeline, ui: ui}
}

// HandleMessage processes a plain (non-command) input line: one send in the
// currently active mode.
func (o *Orchestrator) HandleMessage(ctx context.Context, text string) error {
	if !o.s.ChatOpen() {
		return domain.NewDomainError("Orchestrator.HandleMessage", domain.ErrNoChatOpen,
			"start one with /new or /open")
	}

	switch {
	case o.s.Retry != nil:
		return o.sendRetry(ctx, text)
	case o.s.Secret != nil:
		return o.sendSecret(ctx, text)
	default:
		return o.sendNormal(ctx, text)
	}
}

// sendNormal drives a committed send. The commit rules are the load-bearing
// contract: success commits user+assistant; a preflight failure commits a
// standalone error with no phantom user message; a failure during or after
// the provider call commits the user turn plus one error message.
func (o *Orchestrator) sendNormal(ctx context.Context, text string) error {
	if o.s.PendingError {
		return domain.NewDomainError("Orchestrator.sendNormal", domain.ErrPendingError,
			"retry it (/retry) or accept it (/accept) first")
	}

	messages := append(toProviderMessages(o.s.Doc.Messages),
		domain.Message{Role: domain.RoleUser, Content: text})

	outcome := o.pipeline.Send(ctx, o.request(messages))

	switch outcome.Kind {
	case OutcomeSuccess:
		o.s.AppendCommitted(
			domain.NewUserMessage(text),
			domain.NewAssistantMessage(outcome.Text, outcome.Model, outcome.Citations),
		)
		o.s.PendingError = false
		if err := o.save(); err != nil {
			return err
		}
		o.maybeGenerateTitle(ctx)
		return nil

	case OutcomeError:
		errMsg := domain.NewErrorMessage(outcome.Category, outcome.Err.Error())
		if outcome.Preflight {
			o.s.AppendCommitted(errMsg)
		} else {
			o.s.AppendCommitted(domain.NewUserMessage(text), errMsg)
		}
		o.s.PendingError = outcome.Preflight
		if err := o.save(); err != nil {
			return err
		}
		o.ui.Error("%s error: %v", outcome.Category, outcome.Err)
		if outcome.Preflight {
			o.ui.Info("normal sends are blocked until the error is retried or accepted")
		}
		return nil

	default: // OutcomeCancelled
		o.ui.Info("cancelled; nothing was committed")
		return nil
	}
}

// sendRetry generates one more candidate attempt against the frozen base.
// No outcome mutates the chat document.
func (o *Orchestrator) sendRetry(ctx context.Context, text string) error {
	outcome := o.pipeline.Send(ctx, o.request(o.s.Retry.Context(text)))

	switch outcome.Kind {
	case OutcomeSuccess:
		o.s.Retry.Add(RetryAttempt{
			UserText:  text,
			Assistant: outcome.Text,
			Model:     outcome.Model,
			Citations: outcome.Citations,
		})
		n := len(o.s.Retry.Attempts())
		o.ui.Info("attempt %d recorded; apply it with /apply %d or keep going", n, n)
	case OutcomeError:
		o.ui.Error("%s error: %v (previous attempts kept)", outcome.Category, outcome.Err)
	default:
		o.ui.Info("cancelled; previous attempts kept")
	}
	return nil
}

// sendSecret extends the off-the-record transcript. Nothing here is ever
// persisted.
func (o *Orchestrator) sendSecret(ctx context.Context, text string) error {
	outcome := o.pipeline.Send(ctx, o.request(o.s.Secret.Context(text)))

	switch outcome.Kind {
	case OutcomeSuccess:
		o.s.Secret.Append(
			domain.NewUserMessage(text),
			domain.NewAssistantMessage(outcome.Text, outcome.Model, outcome.Citations),
		)
	case OutcomeError:
		o.ui.Error("%s error: %v", outcome.Category, outcome.Err)
	default:
		o.ui.Info("cancelled")
	}
	return nil
}

func (o *Orchestrator) request(messages []domain.Message) SendRequest {
	var system string
	if o.s.Doc != nil {
		system = o.s.Doc.Metadata.SystemPrompt
	}
	return SendRequest{
		Provider:     o.s.Provider,
		Model:        o.s.Model,
		Messages:     messages,
		SystemPrompt: system,
		Search:       o.s.SearchEnabled,
		Reasoning:    o.s.ReasoningEnabled,
	}
}

// HandleSignal validates and executes one typed command signal. It reports
// whether the session should end. Invalid state/signal combinations are
// rejected with a descriptive error and no state change.
func (o *Orchestrator) HandleSignal(ctx context.Context, sig Signal) (quit bool, err error) {
	switch sig := sig.(type) {
	case ExitSignal:
		return true, nil

	case NewChatSignal:
		return false, o.newChat()
	case OpenChatSignal:
		return false, o.openChat(sig.Ref)
	case CloseChatSignal:
		return false, o.closeChat()
	case RenameChatSignal:
		return false, o.renameChat(sig.Title)
	case DeleteChatSignal:
		return false, o.deleteChat(sig.Ref)
	case ListChatsSignal:
		return false, o.listChats()

	case EnterRetrySignal:
		return false, o.enterRetry()
	case ApplyRetrySignal:
		return false, o.applyRetry(sig.Selection)
	case CancelRetrySignal:
		return false, o.cancelRetry()

	case EnterSecretSignal:
		return false, o.enterSecret()
	case ExitSecretSignal:
		return false, o.exitSecret()

	case ToggleSearchSignal:
		o.s.SearchEnabled = !o.s.SearchEnabled
		o.ui.Info("web search %s", onOff(o.s.SearchEnabled))
		return false, nil
	case ToggleReasoningSignal:
		o.s.ReasoningEnabled = !o.s.ReasoningEnabled
		o.ui.Info("extended reasoning %s", onOff(o.s.ReasoningEnabled))
		return false, nil

	case SwitchModelSignal:
		return false, o.switchModel(sig.Provider, sig.Model)
	case ShowChatSignal:
		return false, o.showChat()
	case PurgeSignal:
		return false, o.purge(sig.HexID)
	case RewindSignal:
		return false, o.rewind(sig.HexID)
	case AcceptErrorSignal:
		return false, o.acceptError()
	case StatusSignal:
		return false, o.status()
	case TitleSignal:
		return false, o.generateTitle(ctx, true)
	case SummarizeSignal:
		return false, o.generateSummary(ctx)
	case SystemPromptSignal:
		return false, o.setSystemPrompt(sig.Ref)

	default:
		return false, fmt.Errorf("unhandled signal %T", sig)
	}
}

func (o *Orchestrator) newChat() error {
	if o.s.ChatOpen() {
		o.s.DetachChat()
	}
	id := store.NewID()
	o.s.AttachChat(id, domain.NewChatDocument())
	if err := o.save(); err != nil {
		return err
	}
	o.ui.Info("new chat %s", id)
	return nil
}

func (o *Orchestrator) openChat(ref string) error {
	id, err := o.s.Store.Resolve(ref)
	if err != nil {
		return err
	}
	doc, err := o.s.Store.Load(id)
	if err != nil {
		return err
	}
	if o.s.ChatOpen() {
		o.s.DetachChat()
	}
	o.s.AttachChat(id, doc)
	title := doc.Metadata.Title
	if title == "" {
		title = "(untitled)"
	}
	o.ui.Info("opened %s: %s (%d messages)", id, title, len(doc.Messages))
	if o.s.PendingError {
		o.ui.Info("this chat ends in an unresolved error; retry or accept it before sending")
	}
	return nil
}

func (o *Orchestrator) closeChat() error {
	if !o.s.ChatOpen() {
		return domain.NewDomainError("Orchestrator.closeChat", domain.ErrNoChatOpen, "")
	}
	o.s.DetachChat()
	o.ui.Info("chat closed")
	return nil
}

func (o *Orchestrator) renameChat(title string) error {
	if !o.s.ChatOpen() {
		return domain.NewDomainError("Orchestrator.renameChat", domain.ErrNoChatOpen, "")
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("rename: title must not be empty")
	}
	o.s.Doc.Metadata.Title = title
	return o.save()
}

func (o *Orchestrator) deleteChat(ref string) error {
	id, err := o.s.Store.Resolve(ref)
	if err != nil {
		return err
	}
	if id == o.s.ChatID {
		o.s.DetachChat()
	}
	if err := o.s.Store.Delete(id); err != nil {
		return err
	}
	o.ui.Info("deleted %s", id)
	return nil
}

func (o *Orchestrator) listChats() error {
	infos, err := o.s.Store.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		o.ui.Info("no chats yet")
		return nil
	}
	for _, info := range infos {
		title := info.Title
		if title == "" {
			title = "(untitled)"
		}
		marker := " "
		if info.ID == o.s.ChatID {
			marker = "*"
		}
		o.ui.Info("%s %s  %-40s %3d msgs  %s", marker, info.ID, title,
			info.Messages, info.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func (o *Orchestrator) enterRetry() error {
	const op = "Orchestrator.enterRetry"
	if !o.s.ChatOpen() {
		return domain.NewDomainError(op, domain.ErrNoChatOpen, "")
	}
	if o.s.Retry != nil || o.s.Secret != nil {
		return domain.NewDomainError(op, domain.ErrModeConflict, "already in retry or secret mode")
	}
	if o.s.Doc.Empty() {
		return domain.NewDomainError(op, domain.ErrChatEmpty, "nothing to retry")
	}

	kind, start := ClassifySpan(o.s.Doc.Messages)
	if kind == SpanNone {
		return domain.NewDomainError(op, domain.ErrModeConflict,
			"trailing messages do not form a retryable interaction")
	}

	o.s.Retry = NewRetryController(o.s.Doc.Messages[:start], kind)
	o.ui.Info("retry mode: targeting trailing %s; type a replacement message, then /apply N or /cancel", kind)
	return nil
}

// applyRetry atomically replaces the target span with the selected attempt.
// Identifier slots are preserved where the shape provides them; only the
// standalone-error shape allocates a fresh id (for its new user slot).
func (o *Orchestrator) applyRetry(selection int) error {
	const op = "Orchestrator.applyRetry"
	if o.s.Retry == nil {
		return domain.NewDomainError(op, domain.ErrModeConflict, "retry mode is not active")
	}
	attempt, ok := o.s.Retry.Attempt(selection)
	if !ok {
		return fmt.Errorf("apply: no attempt %d (have %d)", selection, len(o.s.Retry.Attempts()))
	}

	// The document is untouched while retry mode is active, so the span
	// classified now is the same one captured at entry.
	_, start := ClassifySpan(o.s.Doc.Messages)

	o.s.ReplaceTail(start,
		domain.NewUserMessage(attempt.UserText),
		domain.NewAssistantMessage(attempt.Assistant, attempt.Model, attempt.Citations),
	)
	o.s.Retry = nil
	o.s.PendingError = false
	if err := o.save(); err != nil {
		return err
	}
	o.ui.Info("attempt %d applied", selection)
	return nil
}

func (o *Orchestrator) cancelRetry() error {
	if o.s.Retry == nil {
		return domain.NewDomainError("Orchestrator.cancelRetry", domain.ErrModeConflict, "retry mode is not active")
	}
	n := len(o.s.Retry.Attempts())
	o.s.Retry = nil
	o.ui.Info("retry cancelled; %d attempt(s) discarded", n)
	return nil
}

func (o *Orchestrator) enterSecret() error {
	const op = "Orchestrator.enterSecret"
	if !o.s.ChatOpen() {
		return domain.NewDomainError(op, domain.ErrNoChatOpen, "")
	}
	if o.s.Retry != nil || o.s.Secret != nil {
		return domain.NewDomainError(op, domain.ErrModeConflict, "already in retry or secret mode")
	}
	o.s.Secret = NewSecretController(o.s.Doc.Messages)
	o.ui.Info("secret mode: turns from here are off the record and never saved")
	return nil
}

func (o *Orchestrator) exitSecret() error {
	if o.s.Secret == nil {
		return domain.NewDomainError("Orchestrator.exitSecret", domain.ErrModeConflict, "secret mode is not active")
	}
	n := o.s.Secret.Turns()
	o.s.Secret = nil
	o.ui.Info("secret mode off; %d message(s) discarded", n)
	return nil
}

func (o *Orchestrator) switchModel(provider, model string) error {
	if provider == "" {
		provider = o.s.Provider
	}
	if !o.s.Cfg.HasModel(provider, model) {
		if _, ok := o.s.Cfg.Provider(provider); !ok {
			return domain.NewDomainError("Orchestrator.switchModel", domain.ErrProviderNotFound, provider)
		}
		return domain.NewDomainError("Orchestrator.switchModel", domain.ErrModelNotFound, provider+"/"+model)
	}
	o.s.Provider = provider
	o.s.Model = model
	o.ui.Info("now using %s/%s", provider, model)
	return nil
}

// showChat lists the open chat's messages with their session hex ids. This is
// how an operator learns the handles that /purge and /rewind take.
func (o *Orchestrator) showChat() error {
	if !o.s.ChatOpen() {
		return domain.NewDomainError("Orchestrator.showChat", domain.ErrNoChatOpen, "")
	}
	if o.s.Doc.Empty() {
		o.ui.Info("chat is empty")
		return nil
	}
	for i, msg := range o.s.Doc.Messages {
		label := msg.Role
		switch {
		case msg.Role == domain.RoleAssistant && msg.Model != "":
			label = msg.Model
		case msg.Role == domain.RoleError && msg.Error != nil:
			label = "error/" + msg.Error.Category
		}
		o.ui.Info("[%s] %-12s %s", o.s.HexID(i), label, preview(msg))
	}
	return nil
}

// preview is the first line of a message, truncated for one-line display.
func preview(msg domain.ChatMessage) string {
	const max = 60
	line := msg.Content[0]
	if r := []rune(line); len(r) > max {
		return string(r[:max]) + "..."
	}
	if len(msg.Content) > 1 {
		return line + " ..."
	}
	return line
}

func (o *Orchestrator) purge(hexID string) error {
	idx, err := o.addressable("Orchestrator.purge", hexID)
	if err != nil {
		return err
	}
	o.s.RemoveAt(idx)
	o.refreshPendingError()
	return o.save()
}

func (o *Orchestrator) rewind(hexID string) error {
	idx, err := o.addressable("Orchestrator.rewind", hexID)
	if err != nil {
		return err
	}
	removed := len(o.s.Doc.Messages) - idx
	o.s.TruncateFrom(idx)
	o.refreshPendingError()
	if err := o.save(); err != nil {
		return err
	}
	o.ui.Info("rewound %d message(s)", removed)
	return nil
}

// addressable validates a hex-id-addressed mutation: chat open, no mode
// active (the frozen retry/secret bases must not drift from the document),
// and the id resolves.
func (o *Orchestrator) addressable(op, hexID string) (int, error) {
	if !o.s.ChatOpen() {
		return 0, domain.NewDomainError(op, domain.ErrNoChatOpen, "")
	}
	if o.s.Retry != nil || o.s.Secret != nil {
		return 0, domain.NewDomainError(op, domain.ErrModeConflict, "leave retry/secret mode first")
	}
	idx, ok := o.s.IndexByHexID(hexID)
	if !ok {
		return 0, fmt.Errorf("%s: no message with id %q", op, hexID)
	}
	return idx, nil
}

// refreshPendingError re-derives the pending-error gate after message surgery.
func (o *Orchestrator) refreshPendingError() {
	kind, _ := ClassifySpan(o.s.Doc.Messages)
	o.s.PendingError = kind == SpanErrorOnly
}

func (o *Orchestrator) acceptError() error {
	if !o.s.PendingError {
		return fmt.Errorf("accept: no pending error")
	}
	o.s.PendingError = false
	o.ui.Info("error accepted; normal sends unblocked")
	return nil
}

func (o *Orchestrator) status() error {
	o.ui.Info("provider: %s/%s", o.s.Provider, o.s.Model)
	if p, err := o.s.Providers.Get(o.s.Provider); err == nil {
		if cb, ok := p.(*llm.CircuitBreakerProvider); ok {
			o.ui.Info("breaker: %s", cb.State())
		}
	}
	o.ui.Info("search: %s   reasoning: %s", onOff(o.s.SearchEnabled), onOff(o.s.ReasoningEnabled))
	if !o.s.ChatOpen() {
		o.ui.Info("no chat open")
		return nil
	}

	title := o.s.Doc.Metadata.Title
	if title == "" {
		title = "(untitled)"
	}
	o.ui.Info("chat: %s: %s (%d messages)", o.s.ChatID, title, len(o.s.Doc.Messages))
	switch {
	case o.s.Retry != nil:
		o.ui.Info("mode: retry (%s span, %d attempts)", o.s.Retry.Kind(), len(o.s.Retry.Attempts()))
	case o.s.Secret != nil:
		o.ui.Info("mode: secret (%d off-the-record messages)", o.s.Secret.Turns())
	default:
		o.ui.Info("mode: normal")
	}
	if o.s.PendingError {
		o.ui.Info("pending error: normal sends blocked")
	}
	o.ui.Info("context: ~%d tokens", EstimateTokens(o.s.Model, toProviderMessages(o.s.Doc.Messages)))
	return nil
}

func (o *Orchestrator) setSystemPrompt(ref string) error {
	if !o.s.ChatOpen() {
		return domain.NewDomainError("Orchestrator.setSystemPrompt", domain.ErrNoChatOpen, "")
	}
	o.s.Doc.Metadata.SystemPrompt = ref
	return o.save()
}

// maybeGenerateTitle fires the automatic helper-model title generation after
// the first committed exchange of an untitled chat. Best-effort only.
func (o *Orchestrator) maybeGenerateTitle(ctx context.Context) {
	if o.s.Doc.Metadata.Title != "" || len(o.s.Doc.Messages) != 2 {
		return
	}
	if err := o.generateTitle(ctx, false); err != nil {
		o.s.Logger.Debug("auto title generation failed", "error", err)
	}
}

func (o *Orchestrator) generateTitle(ctx context.Context, explicit bool) error {
	text, err := o.helperComplete(ctx,
		"Reply with a short title (at most six words) for this conversation. Reply with the title only.")
	if err != nil {
		return err
	}
	o.s.Doc.Metadata.Title = strings.Trim(strings.TrimSpace(text), `"`)
	if err := o.save(); err != nil {
		return err
	}
	if explicit {
		o.ui.Info("title: %s", o.s.Doc.Metadata.Title)
	}
	return nil
}

func (o *Orchestrator) generateSummary(ctx context.Context) error {
	text, err := o.helperComplete(ctx,
		"Summarize this conversation in two or three sentences. Reply with the summary only.")
	if err != nil {
		return err
	}
	o.s.Doc.Metadata.Summary = strings.TrimSpace(text)
	if err := o.save(); err != nil {
		return err
	}
	o.ui.Info("summary updated")
	return nil
}

// helperComplete runs one non-streaming helper-model call over the committed
// transcript.
func (o *Orchestrator) helperComplete(ctx context.Context, instruction string) (string, error) {
	if !o.s.ChatOpen() {
		return "", domain.NewDomainError("Orchestrator.helperComplete", domain.ErrNoChatOpen, "")
	}
	if o.s.Doc.Empty() {
		return "", domain.NewDomainError("Orchestrator.helperComplete", domain.ErrChatEmpty, "")
	}

	provider, err := o.s.Providers.Get(o.s.HelperProvider)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	messages := append(toProviderMessages(o.s.Doc.Messages),
		domain.Message{Role: domain.RoleUser, Content: instruction})
	resp, err := provider.Chat(ctx, domain.ChatRequest{
		Model:    o.s.HelperModel,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// save persists the active chat idempotently: an unchanged document performs
// no write and no timestamp bump.
func (o *Orchestrator) save() error {
	_, err := o.s.Store.Save(o.s.ChatID, o.s.Doc)
	return err
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
