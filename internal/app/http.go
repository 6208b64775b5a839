package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"journal/api/internal/envelope"
	"journal/api/internal/gate"
	"journal/api/internal/util"
)

const accessCookie = "journal_access"

type HTTPServer struct {
	service     *Service
	corsOrigin  string
	policy      gate.Policy
	signInPath  string
	webDir      string
	secure      bool
	debugRoutes bool
}

func NewHTTPServer(service *Service) *HTTPServer {
	cfg := service.cfg
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	signInPath := cfg.SignInPath
	if signInPath == "" {
		signInPath = "/auth/signin"
	}
	protected, exempt := cfg.Protected, cfg.PublicPrefix
	if len(protected) == 0 {
		protected = gate.DefaultProtected
	}
	if len(exempt) == 0 {
		exempt = gate.DefaultExempt
	}
	return &HTTPServer{
		service:     service,
		corsOrigin:  corsOrigin,
		policy:      gate.NewPolicy(protected, exempt),
		signInPath:  signInPath,
		webDir:      cfg.WebDir,
		secure:      cfg.CookieSecure,
		debugRoutes: cfg.DebugRoutes,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	api := s.routes()
	pages := s.pages()
	return s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			api.ServeHTTP(w, r)
			return
		}
		pages.ServeHTTP(w, r)
	}))
}

func (s *HTTPServer) routes() *mux.Router {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		envelope.Write(w, envelope.Fail(envelope.KindNotFound, "Not found", ""))
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		envelope.Write(w, envelope.Fail(envelope.KindMethodNotAllowed, "Method not allowed", req.Method+" "+req.URL.Path))
	})

	r := mux.NewRouter()
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = methodNotAllowed

	// Mismatches inside the subrouter are answered by its own handlers.
	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)

	api.HandleFunc("/auth/signup", s.handleAuthSignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", s.handleAuthSignIn).Methods(http.MethodPost)
	api.HandleFunc("/auth/verify-email", s.handleAuthVerifyEmail).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset-password/request", s.handleAuthRequestReset).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset-password", s.handleAuthResetPassword).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleAuthRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/signout", s.handleAuthSignOut).Methods(http.MethodPost)

	api.HandleFunc("/ai/status", s.handleAIStatus).Methods(http.MethodGet)
	api.HandleFunc("/ai/status", s.handleAIProbe).Methods(http.MethodPost)

	api.HandleFunc("/journal/entries", s.withSession(s.handleListEntries)).Methods(http.MethodGet)
	api.HandleFunc("/journal/entries", s.withSession(s.handleCreateEntry)).Methods(http.MethodPost)
	api.HandleFunc("/journal/entries/{id}", s.withSession(s.handleGetEntry)).Methods(http.MethodGet)
	api.HandleFunc("/journal/entries/{id}", s.withSession(s.handleUpdateEntry)).Methods(http.MethodPut)
	api.HandleFunc("/journal/entries/{id}", s.withSession(s.handleDeleteEntry)).Methods(http.MethodDelete)
	api.HandleFunc("/journal/entries/{id}/analyze", s.withSession(s.handleAnalyzeEntry)).Methods(http.MethodPost)
	api.HandleFunc("/journal/entries/{id}/history", s.withSession(s.handleEntryHistory)).Methods(http.MethodGet)
	api.HandleFunc("/journal/entries/{id}/history/{rev}", s.withSession(s.handleEntryRevision)).Methods(http.MethodGet)
	api.HandleFunc("/journal/entries/{id}/export", s.withSession(s.handleExportEntry)).Methods(http.MethodGet)
	api.HandleFunc("/journal/entries/{id}/archive", s.withSession(s.handleArchiveEntry)).Methods(http.MethodPost)
	api.HandleFunc("/journal/entries-with-analysis", s.withSession(s.handleEntriesWithAnalysis)).Methods(http.MethodGet)
	api.HandleFunc("/journal/ai-analysis", s.withSession(s.handleCreateAnalysis)).Methods(http.MethodPost)
	api.HandleFunc("/journal/search", s.withSession(s.handleSearch)).Methods(http.MethodGet)

	if s.debugRoutes {
		api.HandleFunc("/debug/session", s.withSession(s.handleDebugSession)).Methods(http.MethodGet)
		api.HandleFunc("/debug/error", s.handleDebugError).Methods(http.MethodGet)
		api.HandleFunc("/debug/dependencies", s.handleDebugDependencies).Methods(http.MethodGet)
	}
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	envelope.Write(w, envelope.OK(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}))
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	checks, ready := s.service.Ready(r.Context())
	if !ready {
		var failed []string
		for name, c := range checks {
			if c.Status != "ok" {
				failed = append(failed, name+": "+c.Error)
			}
		}
		log.Warn().Strs("checks", failed).Msg("readiness check failed")
		envelope.Write(w, envelope.Fail(envelope.KindUnavailable, "not_ready", strings.Join(failed, "; ")))
		return
	}
	envelope.Write(w, envelope.OK(map[string]any{
		"ok":     true,
		"status": "ready",
		"checks": checks,
	}))
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := requestToken(r)
	if token == "" {
		envelope.Write(w, envelope.OK(map[string]any{"authenticated": false}))
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		envelope.Write(w, envelope.OK(map[string]any{"authenticated": false}))
		return
	}
	envelope.Write(w, envelope.OK(map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":          session.UserID,
			"email":       session.Email,
			"displayName": session.UserName,
		},
		"expiresAt": session.ExpiresAt.Unix(),
	}))
}

type sessionHandler func(http.ResponseWriter, *http.Request, Session)

// withSession resolves the caller before running next. Requests without a
// usable token get a 401 envelope.
func (s *HTTPServer) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		next(w, r, session)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := requestToken(r)
	if token == "" {
		envelope.Write(w, envelope.Fail(envelope.KindUnauthorized, "Unauthorized", ""))
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		s.fail(w, r, err, "Session lookup failed")
		return Session{}, false
	}
	return session, true
}

// fail logs err and writes its envelope.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error, category string) {
	result := mapError(err, category)
	event := log.Warn()
	if result.Status() >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("request_id", requestID(r.Context())).
		Str("path", r.URL.Path).
		Str("kind", string(result.Kind())).
		Msg(category)
	envelope.Write(w, result)
}

// Pages

// pages runs the access gate for every non-API path and then serves the web
// build, if one is configured.
func (s *HTTPServer) pages() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if !s.policy.IsExempt(p) {
			hasToken := false
			if s.policy.Protects(p) {
				hasToken = s.validToken(r)
			}
			if s.policy.Decide(p, hasToken) == gate.Deny {
				target := s.signInPath + "?redirectTo=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
		}
		s.serveWeb(w, r)
	})
}

func (s *HTTPServer) validToken(r *http.Request) bool {
	token := requestToken(r)
	if token == "" {
		return false
	}
	_, err := s.service.SessionFromToken(r.Context(), token)
	return err == nil
}

func (s *HTTPServer) serveWeb(w http.ResponseWriter, r *http.Request) {
	if s.webDir == "" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		envelope.Write(w, envelope.Fail(envelope.KindNotFound, "Not found", ""))
		return
	}
	name := filepath.Join(s.webDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)
		return
	}
	index := filepath.Join(s.webDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		envelope.Write(w, envelope.Fail(envelope.KindNotFound, "Not found", ""))
		return
	}
	http.ServeFile(w, r, index)
}

// Middleware

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", reqID)

		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Str("request_id", reqID).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				if !writer.wroteHeader {
					envelope.Write(writer, envelope.Fail(envelope.KindInternal, "Internal server error", ""))
				}
			}
			log.Info().
				Str("request_id", reqID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", writer.status).
				Int64("duration_ms", time.Since(started).Milliseconds()).
				Msg("request")
		}()

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(writer, r)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,HEAD,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID, X-Total-Count")
	header.Set("Cache-Control", "no-store")
}

// Helpers

var errInvalidBody = domainError(envelope.KindValidation, "Invalid JSON body", "")

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return errInvalidBody
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// requestToken prefers the Authorization header and falls back to the
// access cookie set at sign-in.
func requestToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(accessCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func (s *HTTPServer) setAccessCookie(w http.ResponseWriter, session Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearAccessCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func requiredMessage(fields []string) string {
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0] + " is required"
	case 2:
		return fmt.Sprintf("%s and %s are required", fields[0], fields[1])
	}
	return fmt.Sprintf("%s, and %s are required", strings.Join(fields[:len(fields)-1], ", "), fields[len(fields)-1])
}
