package app

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"journal/api/internal/envelope"
)

// Debug routes are only mounted when JOURNAL_DEBUG_ROUTES is set. They may
// expose stack traces and must stay off in production.

func (s *HTTPServer) handleDebugSession(w http.ResponseWriter, _ *http.Request, session Session) {
	envelope.Write(w, envelope.OK(map[string]any{
		"userId":    session.UserID,
		"email":     session.Email,
		"userName":  session.UserName,
		"jti":       session.JTI,
		"expiresAt": session.ExpiresAt,
	}))
}

func (s *HTTPServer) handleDebugError(w http.ResponseWriter, r *http.Request) {
	err := errors.New("deliberate failure from debug route")
	log.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("debug error")
	envelope.Write(w, envelope.Fail(envelope.KindInternal, err.Error(), string(debug.Stack())))
}

func (s *HTTPServer) handleDebugDependencies(w http.ResponseWriter, r *http.Request) {
	envelope.Write(w, envelope.OK(s.service.Dependencies(r.Context())))
}
