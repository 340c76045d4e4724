package usecase

import (
	"testing"

	"parley/internal/domain"
)

func TestSecretContextLayersTranscript(t *testing.T) {
	committed := []domain.ChatMessage{user("q1"), assistant("a1")}
	sc := NewSecretController(committed)

	ctx := sc.Context("secret question")
	if len(ctx) != 3 {
		t.Fatalf("first context has %d messages, want 3", len(ctx))
	}

	sc.Append(user("secret question"), assistant("secret answer"))

	ctx = sc.Context("followup")
	if len(ctx) != 5 {
		t.Fatalf("second context has %d messages, want 5 (base + turn + new user)", len(ctx))
	}
	if ctx[2].Content != "secret question" || ctx[3].Content != "secret answer" {
		t.Error("earlier secret turn missing from later context")
	}
	if ctx[4].Content != "followup" {
		t.Errorf("last message = %q", ctx[4].Content)
	}
}

func TestSecretBaseFrozenAtActivation(t *testing.T) {
	committed := []domain.ChatMessage{user("q1"), assistant("a1")}
	sc := NewSecretController(committed)

	// A commit made to the real document after activation must not appear.
	committed = append(committed, user("q2"), assistant("a2"))
	_ = committed

	ctx := sc.Context("x")
	if len(ctx) != 3 {
		t.Errorf("context has %d messages, want 3: later commits must not leak in", len(ctx))
	}
}

func TestSecretTurns(t *testing.T) {
	sc := NewSecretController(nil)
	if sc.Turns() != 0 {
		t.Errorf("fresh controller has %d turns", sc.Turns())
	}
	sc.Append(user("a"), assistant("b"))
	if sc.Turns() != 2 {
		t.Errorf("Turns = %d, want 2", sc.Turns())
	}
}
