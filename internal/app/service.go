package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"journal/api/internal/ai"
	"journal/api/internal/archive"
	"journal/api/internal/auth"
	"journal/api/internal/authpw"
	"journal/api/internal/config"
	"journal/api/internal/envelope"
	"journal/api/internal/export"
	"journal/api/internal/gitrepo"
	"journal/api/internal/search"
	"journal/api/internal/store"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	ListEntries(context.Context, string) ([]store.JournalEntry, error)
	GetEntry(context.Context, string, string) (*store.JournalEntry, error)
	CreateEntry(context.Context, string, string, string) (store.JournalEntry, error)
	UpdateEntry(context.Context, string, string, store.EntryUpdate) (store.JournalEntry, error)
	DeleteEntry(context.Context, string, string) error
	CreateAnalysis(context.Context, string, store.AnalysisInput) (store.AIAnalysis, error)
	LatestAnalysis(context.Context, string, string) (*store.AIAnalysis, error)
	ListEntriesWithAnalysis(context.Context, string) ([]store.EntryWithAnalysis, error)
}

// sessionStore is satisfied by both session.RedisStore and store.PostgresStore.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type passwordAuth interface {
	SignUp(context.Context, authpw.SignUpRequest) (*authpw.SignUpResponse, error)
	SignIn(context.Context, authpw.SignInRequest) (*authpw.SignInResponse, error)
	VerifyEmail(context.Context, string) error
	RequestPasswordReset(context.Context, string) (string, error)
	ResetPassword(context.Context, authpw.ResetPasswordRequest) error
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type searchService interface {
	Search(context.Context, search.Query) (search.Response, error)
	IndexEntry(store.JournalEntry)
	DeleteEntry(string)
	Healthy() bool
}

type historyService interface {
	Record(entryID string, content gitrepo.Content, author, message string) (store.CommitInfo, error)
	History(entryID string, limit int) ([]store.CommitInfo, error)
	Revision(entryID, hash string) (gitrepo.Revision, error)
	Remove(entryID string) error
}

type aiService interface {
	Status(context.Context) ai.Status
	Probe(context.Context, string) (ai.Health, error)
	Analyze(ctx context.Context, title, content string) (ai.Analysis, error)
}

type exporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

type archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (archive.Object, error)
	Ping(context.Context) error
}

type pinger interface {
	Ping(context.Context) error
}

// Dependencies are the collaborators behind the service. Store, Sessions,
// Auth and AI are required; the rest are optional and leave their features
// disabled when nil.
type Dependencies struct {
	Store    dataStore
	Sessions sessionStore
	Auth     passwordAuth
	AI       aiService
	Mail     mailer
	Search   searchService
	History  historyService
	Exporter exporter
	Archive  archiver
	Redis    pinger
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	auth     passwordAuth
	ai       aiService
	mail     mailer
	search   searchService
	history  historyService
	exporter exporter
	archive  archiver
	redis    pinger
	now      func() time.Time
}

func New(cfg config.Config, deps Dependencies) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		if fallback, ok := deps.Store.(sessionStore); ok {
			sessions = fallback
		}
	}
	exp := deps.Exporter
	if exp == nil {
		exp = export.NewService()
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: sessions,
		auth:     deps.Auth,
		ai:       deps.AI,
		mail:     deps.Mail,
		search:   deps.Search,
		history:  deps.History,
		exporter: exp,
		archive:  deps.Archive,
		redis:    deps.Redis,
		now:      time.Now,
	}
}

// call bounds a single collaborator call.
func (s *Service) call(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.CallTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// Sessions

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	claims := auth.NewClaims(user.ID, user.Email, user.DisplayName, s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh := auth.NewTokenID()
	ctx, cancel := s.call(ctx)
	defer cancel()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		UserName:     user.DisplayName,
		JTI:          claims.ID,
		ExpiresAt:    claims.ExpiresAtTime(),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	ctx, cancel := s.call(ctx)
	defer cancel()
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		UserName:  user.DisplayName,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)

	callCtx, cancel := s.call(ctx)
	defer cancel()
	userID, err := s.sessions.LookupRefreshSession(callCtx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(callCtx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(callCtx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			log.Warn().Err(err).Str("user", session.UserID).Msg("revoke access token")
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			log.Warn().Err(err).Str("user", session.UserID).Msg("revoke refresh token")
		}
	}
}

// Password authentication

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	resp, err := s.auth.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.SMTPConfigured() {
		link := s.publicLink("/auth/verify-email", resp.VerificationToken)
		if err := s.mail.SendVerificationEmail(resp.Email, req.DisplayName, link); err != nil {
			log.Error().Err(err).Str("user", resp.UserID).Msg("send verification email")
		}
	}
	return resp, nil
}

// SignIn checks credentials and opens a session. Unverified accounts are
// refused even with the right password.
func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, store.User, error) {
	callCtx, cancel := s.call(ctx)
	defer cancel()
	resp, err := s.auth.SignIn(callCtx, req)
	if err != nil {
		return Session{}, store.User{}, err
	}
	if resp.RequiresVerify {
		return Session{}, store.User{}, domainError(envelope.KindForbidden, "Please verify your email before signing in", "")
	}
	session, err := s.issueSession(ctx, resp.User)
	if err != nil {
		return Session{}, store.User{}, err
	}
	return session, resp.User, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	ctx, cancel := s.call(ctx)
	defer cancel()
	return s.auth.VerifyEmail(ctx, token)
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	token, err := s.auth.RequestPasswordReset(ctx, email)
	if err != nil || token == "" {
		return token, err
	}
	if s.SMTPConfigured() {
		addr := strings.ToLower(strings.TrimSpace(email))
		if err := s.mail.SendPasswordResetEmail(addr, addr, s.publicLink("/auth/reset-password", token)); err != nil {
			log.Error().Err(err).Msg("send password reset email")
		}
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, req authpw.ResetPasswordRequest) error {
	ctx, cancel := s.call(ctx)
	defer cancel()
	return s.auth.ResetPassword(ctx, req)
}

func (s *Service) publicLink(path, token string) string {
	return strings.TrimRight(s.cfg.PublicURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// Journal entries

func (s *Service) ListEntries(ctx context.Context, userID string) ([]store.JournalEntry, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	return s.store.ListEntries(ctx, userID)
}

// GetEntry returns nil without error when the entry does not exist.
func (s *Service) GetEntry(ctx context.Context, userID, entryID string) (*store.JournalEntry, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	return s.store.GetEntry(ctx, userID, entryID)
}

func (s *Service) requireEntry(ctx context.Context, userID, entryID string) (store.JournalEntry, error) {
	entry, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return store.JournalEntry{}, err
	}
	if entry == nil {
		return store.JournalEntry{}, errEntryNotFound
	}
	return *entry, nil
}

func (s *Service) CreateEntry(ctx context.Context, session Session, title, content string) (store.JournalEntry, error) {
	callCtx, cancel := s.call(ctx)
	defer cancel()
	entry, err := s.store.CreateEntry(callCtx, session.UserID, title, content)
	if err != nil {
		return store.JournalEntry{}, err
	}
	s.afterSave(entry, session, "Create entry")
	return entry, nil
}

func (s *Service) UpdateEntry(ctx context.Context, session Session, entryID string, update store.EntryUpdate) (store.JournalEntry, error) {
	if _, err := s.requireEntry(ctx, session.UserID, entryID); err != nil {
		return store.JournalEntry{}, err
	}
	callCtx, cancel := s.call(ctx)
	defer cancel()
	entry, err := s.store.UpdateEntry(callCtx, session.UserID, entryID, update)
	if err != nil {
		return store.JournalEntry{}, err
	}
	s.afterSave(entry, session, "Update entry")
	return entry, nil
}

func (s *Service) DeleteEntry(ctx context.Context, userID, entryID string) error {
	if _, err := s.requireEntry(ctx, userID, entryID); err != nil {
		return err
	}
	callCtx, cancel := s.call(ctx)
	defer cancel()
	if err := s.store.DeleteEntry(callCtx, userID, entryID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteEntry(entryID)
	}
	if s.history != nil {
		if err := s.history.Remove(entryID); err != nil {
			log.Warn().Err(err).Str("entry", entryID).Msg("remove entry history")
		}
	}
	return nil
}

// afterSave indexes the entry and commits a revision. Failures are logged
// and never reach the caller.
func (s *Service) afterSave(entry store.JournalEntry, session Session, message string) {
	if s.search != nil {
		s.search.IndexEntry(entry)
	}
	if s.history == nil {
		return
	}
	author := session.UserName
	if author == "" {
		author = session.Email
	}
	if _, err := s.history.Record(entry.ID, gitrepo.Content{Title: entry.Title, Content: entry.Content}, author, message); err != nil {
		log.Warn().Err(err).Str("entry", entry.ID).Msg("record entry revision")
	}
}

func (s *Service) CreateAnalysis(ctx context.Context, userID string, input store.AnalysisInput) (store.AIAnalysis, error) {
	if _, err := s.requireEntry(ctx, userID, input.EntryID); err != nil {
		return store.AIAnalysis{}, err
	}
	ctx, cancel := s.call(ctx)
	defer cancel()
	return s.store.CreateAnalysis(ctx, userID, input)
}

func (s *Service) ListEntriesWithAnalysis(ctx context.Context, userID string) ([]store.EntryWithAnalysis, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	return s.store.ListEntriesWithAnalysis(ctx, userID)
}

// AnalyzeEntry asks the active AI provider to reflect on an entry and
// stores the result.
func (s *Service) AnalyzeEntry(ctx context.Context, userID, entryID string) (store.AIAnalysis, error) {
	entry, err := s.requireEntry(ctx, userID, entryID)
	if err != nil {
		return store.AIAnalysis{}, err
	}

	analysis, err := s.ai.Analyze(ctx, entry.Title, entry.Content)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return store.AIAnalysis{}, domainError(envelope.KindTimeout, "AI analysis timed out", err.Error())
		}
		return store.AIAnalysis{}, domainError(envelope.KindBadGateway, "AI analysis failed", err.Error())
	}

	callCtx, cancel := s.call(ctx)
	defer cancel()
	return s.store.CreateAnalysis(callCtx, userID, store.AnalysisInput{
		EntryID:     entry.ID,
		Summary:     analysis.Summary,
		Emotions:    analysis.Emotions,
		Suggestions: analysis.Suggestions,
		Model:       analysis.Model,
	})
}

// Search, history, export

func (s *Service) Search(ctx context.Context, userID, text string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	ctx, cancel := s.call(ctx)
	defer cancel()
	return s.search.Search(ctx, search.Query{UserID: userID, Text: text, Limit: limit, Offset: offset})
}

func (s *Service) EntryHistory(ctx context.Context, userID, entryID string, limit int) ([]store.CommitInfo, error) {
	if _, err := s.requireEntry(ctx, userID, entryID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []store.CommitInfo{}, nil
	}
	return s.history.History(entryID, limit)
}

func (s *Service) EntryRevision(ctx context.Context, userID, entryID, hash string) (gitrepo.Revision, error) {
	if _, err := s.requireEntry(ctx, userID, entryID); err != nil {
		return gitrepo.Revision{}, err
	}
	if s.history == nil {
		return gitrepo.Revision{}, gitrepo.ErrRevisionNotFound
	}
	return s.history.Revision(entryID, hash)
}

// ExportEntry renders an entry together with its latest analysis.
func (s *Service) ExportEntry(ctx context.Context, session Session, entryID string, format export.Format) (*export.Result, error) {
	entry, err := s.requireEntry(ctx, session.UserID, entryID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.call(ctx)
	latest, err := s.store.LatestAnalysis(callCtx, session.UserID, entryID)
	cancel()
	if err != nil {
		return nil, err
	}

	req := export.Request{
		Title:     entry.Title,
		Content:   entry.Content,
		Author:    session.UserName,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
		Format:    format,
	}
	if latest != nil {
		req.Analysis = &export.Analysis{
			Summary:     latest.Summary,
			Emotions:    latest.Emotions,
			Suggestions: latest.Suggestions,
			Model:       latest.Model,
		}
	}
	return s.exporter.Export(ctx, req)
}

// ArchiveEntry exports an entry and uploads the file to archive storage.
func (s *Service) ArchiveEntry(ctx context.Context, session Session, entryID string, format export.Format) (archive.Object, error) {
	if s.archive == nil {
		return archive.Object{}, archive.ErrNotConfigured
	}
	result, err := s.ExportEntry(ctx, session, entryID, format)
	if err != nil {
		return archive.Object{}, err
	}
	key := archive.Key(session.UserID, entryID, result.Filename, s.now())
	callCtx, cancel := s.call(ctx)
	defer cancel()
	return s.archive.Put(callCtx, key, result.Data, result.MimeType)
}

// AI provider

func (s *Service) AIStatus(ctx context.Context) ai.Status {
	return s.ai.Status(ctx)
}

func (s *Service) ProbeProvider(ctx context.Context, name string) (ai.Health, error) {
	return s.ai.Probe(ctx, name)
}

// Readiness

type Check struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

func (s *Service) check(ctx context.Context, ping func(context.Context) error) Check {
	ctx, cancel := s.call(ctx)
	defer cancel()
	started := s.now()
	err := ping(ctx)
	c := Check{Status: "ok", LatencyMs: s.now().Sub(started).Milliseconds()}
	if err != nil {
		c.Status = "error"
		c.Error = err.Error()
	}
	return c
}

// Ready checks the dependencies a request cannot be served without.
func (s *Service) Ready(ctx context.Context) (map[string]Check, bool) {
	checks := map[string]Check{"database": s.check(ctx, s.store.Ping)}
	if s.redis != nil {
		checks["redis"] = s.check(ctx, s.redis.Ping)
	}
	for _, c := range checks {
		if c.Status != "ok" {
			return checks, false
		}
	}
	return checks, true
}

// Dependencies reports every configured collaborator, optional ones
// included.
func (s *Service) Dependencies(ctx context.Context) map[string]Check {
	checks, _ := s.Ready(ctx)
	if s.archive != nil {
		checks["archive"] = s.check(ctx, s.archive.Ping)
	}
	if s.search != nil {
		checks["search"] = s.check(ctx, func(context.Context) error {
			if !s.search.Healthy() {
				return search.ErrIndexUnavailable
			}
			return nil
		})
	}
	health := s.ai.Status(ctx).Health
	aiCheck := Check{Status: "ok", LatencyMs: health.LatencyMs}
	if !health.Healthy {
		aiCheck.Status = "error"
		aiCheck.Error = health.Error
	}
	checks["ai"] = aiCheck
	return checks
}
