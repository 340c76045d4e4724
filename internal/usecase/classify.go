package usecase

import (
	"errors"

	"parley/internal/domain"
)

// Error categories recorded on error-role messages and shown to the operator.
const (
	CategoryAuth        = "authentication"
	CategoryRateLimit   = "rate_limit"
	CategoryTimeout     = "timeout"
	CategoryMalformed   = "malformed_request"
	CategoryServerFault = "server_fault"
	CategoryValidation  = "validation"
)

// Categorize maps an error from the send path to its category. Provider
// errors carry one of the five sentinel classes; resolution and credential
// failures are validation. Anything unrecognized is treated as a server
// fault, the retryable default.
func Categorize(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthInvalid):
		return CategoryAuth
	case errors.Is(err, domain.ErrRateLimit):
		return CategoryRateLimit
	case errors.Is(err, domain.ErrTimeout):
		return CategoryTimeout
	case errors.Is(err, domain.ErrMalformedRequest):
		return CategoryMalformed
	case errors.Is(err, domain.ErrServerFault):
		return CategoryServerFault
	case errors.Is(err, domain.ErrProviderNotFound),
		errors.Is(err, domain.ErrModelNotFound),
		errors.Is(err, domain.ErrSecretResolve):
		return CategoryValidation
	default:
		return CategoryServerFault
	}
}
