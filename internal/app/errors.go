package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"journal/api/internal/ai"
	"journal/api/internal/archive"
	"journal/api/internal/auth"
	"journal/api/internal/authpw"
	"journal/api/internal/envelope"
	"journal/api/internal/export"
	"journal/api/internal/gitrepo"
	"journal/api/internal/store"
)

type DomainError struct {
	Kind    envelope.Kind
	Message string
	Details string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func domainError(kind envelope.Kind, message, details string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Message: message,
		Details: details,
	}
}

const (
	msgEntryNotFound   = "Journal entry not found"
	msgInvalidProvider = "Invalid provider. Must be one of: openai, gemini, ollama"
)

var errEntryNotFound = domainError(envelope.KindNotFound, msgEntryNotFound, "")

// mapError reduces err to a failure envelope. category is the public error
// text used when nothing more specific is known about err.
func mapError(err error, category string) envelope.Result {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return envelope.Fail(domainErr.Kind, domainErr.Message, domainErr.Details)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return envelope.Fail(envelope.KindTimeout, category, "operation timed out")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return envelope.Fail(envelope.KindUnauthorized, "Unauthorized", "")
	case errors.Is(err, ai.ErrInvalidProvider):
		return envelope.Fail(envelope.KindInvalidProvider, msgInvalidProvider, "")
	case errors.Is(err, store.ErrNotFound):
		return envelope.Fail(envelope.KindNotFound, msgEntryNotFound, "")
	case errors.Is(err, gitrepo.ErrRevisionNotFound), errors.Is(err, gitrepo.ErrInvalidID):
		return envelope.Fail(envelope.KindNotFound, "Revision not found", "")
	case errors.Is(err, export.ErrUnsupportedFormat):
		return envelope.Fail(envelope.KindValidation, "Unsupported export format", err.Error())
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return envelope.Fail(envelope.KindNotImplemented, "PDF export is not available on this server", "")
	case errors.Is(err, archive.ErrNotConfigured):
		return envelope.Fail(envelope.KindUnavailable, "Archive storage is not configured", "")
	case errors.Is(err, authpw.ErrEmailTaken):
		return envelope.Fail(envelope.KindConflict, "Email already registered", "")
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return envelope.Fail(envelope.KindUnauthorized, "Invalid email or password", "")
	case errors.Is(err, authpw.ErrInvalidInput):
		return envelope.Fail(envelope.KindValidation, strings.TrimPrefix(err.Error(), authpw.ErrInvalidInput.Error()+": "), "")
	case errors.Is(err, authpw.ErrInvalidToken):
		return envelope.Fail(envelope.KindValidation, "Invalid or expired token", "")
	}
	return envelope.Fail(envelope.KindUpstream, category, errorDetails(err))
}

func errorDetails(err error) string {
	if err == nil || err.Error() == "" {
		return envelope.UnknownError
	}
	return err.Error()
}
