package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"journal/api/internal/ai"
	"journal/api/internal/archive"
	"journal/api/internal/auth"
	"journal/api/internal/authpw"
	"journal/api/internal/envelope"
	"journal/api/internal/export"
	"journal/api/internal/gitrepo"
	"journal/api/internal/store"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		kind    envelope.Kind
		message string
	}{
		{"domain", domainError(envelope.KindForbidden, "nope", ""), http.StatusForbidden, envelope.KindForbidden, "nope"},
		{"wrapped domain", fmt.Errorf("outer: %w", errEntryNotFound), http.StatusNotFound, envelope.KindNotFound, msgEntryNotFound},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, envelope.KindTimeout, "Failed to do it"},
		{"token", auth.ErrExpiredToken, http.StatusUnauthorized, envelope.KindUnauthorized, "Unauthorized"},
		{"provider", fmt.Errorf("%w: bogus", ai.ErrInvalidProvider), http.StatusBadRequest, envelope.KindInvalidProvider, msgInvalidProvider},
		{"store not found", store.ErrNotFound, http.StatusNotFound, envelope.KindNotFound, msgEntryNotFound},
		{"revision", gitrepo.ErrRevisionNotFound, http.StatusNotFound, envelope.KindNotFound, "Revision not found"},
		{"format", export.ErrUnsupportedFormat, http.StatusBadRequest, envelope.KindValidation, "Unsupported export format"},
		{"pdf", export.ErrPDFDependencyMissing, http.StatusNotImplemented, envelope.KindNotImplemented, "PDF export is not available on this server"},
		{"archive", archive.ErrNotConfigured, http.StatusServiceUnavailable, envelope.KindUnavailable, "Archive storage is not configured"},
		{"email taken", authpw.ErrEmailTaken, http.StatusConflict, envelope.KindConflict, "Email already registered"},
		{"credentials", authpw.ErrInvalidCredentials, http.StatusUnauthorized, envelope.KindUnauthorized, "Invalid email or password"},
		{"input", fmt.Errorf("%w: password too short", authpw.ErrInvalidInput), http.StatusBadRequest, envelope.KindValidation, "password too short"},
		{"reset token", authpw.ErrInvalidToken, http.StatusBadRequest, envelope.KindValidation, "Invalid or expired token"},
		{"unknown", errors.New("socket closed"), http.StatusInternalServerError, envelope.KindUpstream, "Failed to do it"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mapError(tt.err, "Failed to do it")
			assert.False(t, result.Success())
			assert.Equal(t, tt.status, result.Status())
			assert.Equal(t, tt.kind, result.Kind())
			assert.Equal(t, tt.message, result.Error())
		})
	}
}

func TestErrorDetails(t *testing.T) {
	assert.Equal(t, "Unknown error", errorDetails(nil))
	assert.Equal(t, "Unknown error", errorDetails(errors.New("")))
	assert.Equal(t, "boom", errorDetails(errors.New("boom")))
}

func TestRequiredMessage(t *testing.T) {
	assert.Equal(t, "", requiredMessage(nil))
	assert.Equal(t, "model is required", requiredMessage([]string{"model"}))
	assert.Equal(t, "summary and model are required", requiredMessage([]string{"summary", "model"}))
	assert.Equal(t, "entryId, summary, and model are required", requiredMessage([]string{"entryId", "summary", "model"}))
}
