package usecase

import (
	"testing"

	"parley/internal/domain"
)

func TestRetryContextExcludesTargetSpan(t *testing.T) {
	history := []domain.ChatMessage{
		user("q1"), assistant("a1"),
		user("bad question"), assistant("bad answer"),
	}
	kind, start := ClassifySpan(history)
	if kind != SpanUserAssistant {
		t.Fatalf("setup: kind = %s", kind)
	}

	rc := NewRetryController(history[:start], kind)
	ctx := rc.Context("better question")

	if len(ctx) != 3 {
		t.Fatalf("context has %d messages, want 3 (base pair + new user)", len(ctx))
	}
	for _, m := range ctx {
		if m.Content == "bad question" || m.Content == "bad answer" {
			t.Errorf("target span leaked into retry context: %q", m.Content)
		}
	}
	last := ctx[len(ctx)-1]
	if last.Role != domain.RoleUser || last.Content != "better question" {
		t.Errorf("last message = %+v", last)
	}
}

func TestRetryBaseIsFrozen(t *testing.T) {
	history := []domain.ChatMessage{user("q1"), assistant("a1"), user("q2"), assistant("a2")}
	rc := NewRetryController(history[:2], SpanUserAssistant)

	// Mutating the source slice must not affect the captured base.
	history[0].Content[0] = "mutated"

	ctx := rc.Context("x")
	if ctx[0].Content != "q1" {
		t.Errorf("base not frozen: %q", ctx[0].Content)
	}
}

func TestRetryAttemptsAreIndependent(t *testing.T) {
	rc := NewRetryController([]domain.ChatMessage{user("q1"), assistant("a1")}, SpanUserAssistant)

	rc.Add(RetryAttempt{UserText: "first", Assistant: "answer one", Model: "gpt-4o"})
	ctx := rc.Context("second")

	// The second attempt's context must not include the first attempt.
	for _, m := range ctx {
		if m.Content == "first" || m.Content == "answer one" {
			t.Errorf("previous attempt leaked into context: %q", m.Content)
		}
	}
}

func TestRetryAttemptSelection(t *testing.T) {
	rc := NewRetryController(nil, SpanUserError)
	rc.Add(RetryAttempt{UserText: "u1"})
	rc.Add(RetryAttempt{UserText: "u2"})

	if a, ok := rc.Attempt(1); !ok || a.UserText != "u1" {
		t.Errorf("Attempt(1) = %+v, %v", a, ok)
	}
	if a, ok := rc.Attempt(2); !ok || a.UserText != "u2" {
		t.Errorf("Attempt(2) = %+v, %v", a, ok)
	}
	if _, ok := rc.Attempt(0); ok {
		t.Error("Attempt(0) must not resolve")
	}
	if _, ok := rc.Attempt(3); ok {
		t.Error("out-of-range attempt must not resolve")
	}
}
