package app

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"journal/api/internal/envelope"
)

// handleAIStatus always answers: a failure while building the report is
// returned as an envelope rather than left to the panic middleware.
func (s *HTTPServer) handleAIStatus(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("request_id", requestID(r.Context())).Msg("ai status failed")
			envelope.Write(w, envelope.Fail(envelope.KindInternal, "Failed to check AI service status", fmt.Sprint(rec)))
		}
	}()

	status := s.service.AIStatus(r.Context())
	envelope.Write(w, envelope.OK(status))
}

// handleAIProbe health checks the named provider. A failed check is still a
// successful response; only a bad provider name is an error.
func (s *HTTPServer) handleAIProbe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider string `json:"provider"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err, "Failed to probe AI provider")
		return
	}

	health, err := s.service.ProbeProvider(r.Context(), body.Provider)
	if err != nil {
		s.fail(w, r, err, "Failed to probe AI provider")
		return
	}

	message := fmt.Sprintf("%s is reachable", health.Provider)
	if !health.Healthy {
		message = fmt.Sprintf("%s health check failed", health.Provider)
	}
	envelope.Write(w, envelope.OK(health).WithMessage(message))
}
