package domain

import (
	"errors"
	"fmt"
)

// Provider error sentinels. Every provider adapter failure wraps exactly one
// of these so the send pipeline can classify it into a terminal category.
var (
	ErrAuthInvalid      = fmt.Errorf("authentication failed")
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrMalformedRequest = fmt.Errorf("malformed request")
	ErrServerFault      = fmt.Errorf("provider server fault")
)

// Validation and lifecycle sentinels.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrModelNotFound    = fmt.Errorf("model not known to provider")
	ErrNoChatOpen       = fmt.Errorf("no chat open")
	ErrChatEmpty        = fmt.Errorf("chat is empty")
	ErrChatNotFound     = fmt.Errorf("chat not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrSecretResolve    = fmt.Errorf("failed to resolve credential")
	ErrSchema           = fmt.Errorf("chat file schema invalid")
	ErrModeConflict     = fmt.Errorf("operation not valid in current mode")
	ErrPendingError     = fmt.Errorf("last interaction ended in an unresolved error")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g. "Orchestrator.EnterRetry")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsProviderError reports whether err wraps one of the five provider error
// sentinels, as opposed to a validation or lifecycle failure.
func IsProviderError(err error) bool {
	return errors.Is(err, ErrAuthInvalid) ||
		errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrMalformedRequest) ||
		errors.Is(err, ErrServerFault)
}
