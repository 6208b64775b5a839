package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"journal/api/internal/ai"
	"journal/api/internal/app"
	"journal/api/internal/archive"
	"journal/api/internal/authpw"
	"journal/api/internal/config"
	"journal/api/internal/email"
	"journal/api/internal/export"
	"journal/api/internal/gitrepo"
	"journal/api/internal/search"
	"journal/api/internal/session"
	"journal/api/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}

	dataStore := store.NewPostgresStore(db)
	searchService, closeSearch := newSearch(db, cfg)
	defer closeSearch()

	deps := app.Dependencies{
		Store:    dataStore,
		Auth:     authpw.NewService(dataStore),
		AI:       ai.NewClient(cfg.AI()),
		Mail:     newMailer(cfg),
		Search:   searchService,
		History:  gitrepo.New(cfg.ReposDir),
		Exporter: export.NewService(),
	}

	// Refresh sessions live in Postgres unless Redis is configured.
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		log.Info().Msg("using redis for session storage")
		deps.Sessions = redisStore
		deps.Redis = redisStore
	} else {
		log.Info().Msg("using postgres for session storage")
	}

	if bucket := newArchive(ctx, cfg); bucket != nil {
		deps.Archive = bucket
	}

	service := app.New(cfg, deps)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("ai_provider", cfg.AIProvider).Msg("journal api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	return db, nil
}

// newSearch prefers Meilisearch when configured and always keeps Postgres
// full text search as the fallback.
func newSearch(db *sql.DB, cfg config.Config) (*search.Service, func()) {
	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return search.NewService(nil, search.NewPgFTS(db)), func() {}
	}
	meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	return search.NewService(meili, search.NewPgFTS(db)), meili.Close
}

func newMailer(cfg config.Config) *email.Service {
	return email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		AppName:  "Journal",
	})
}

// newArchive returns nil when archive storage is disabled or unreachable;
// the archive route then answers 503.
func newArchive(ctx context.Context, cfg config.Config) *archive.Store {
	acfg := archive.Config{
		Endpoint:  cfg.ArchiveEndpoint,
		AccessKey: cfg.ArchiveAccessKey,
		SecretKey: cfg.ArchiveSecretKey,
		Bucket:    cfg.ArchiveBucket,
		UseSSL:    cfg.ArchiveUseSSL,
	}
	if !acfg.Enabled() {
		return nil
	}
	bucket, err := archive.New(acfg)
	if err != nil {
		log.Warn().Err(err).Msg("archive storage disabled")
		return nil
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := bucket.EnsureBucket(ensureCtx); err != nil {
		log.Warn().Err(err).Str("bucket", acfg.Bucket).Msg("archive bucket check failed")
	}
	return bucket
}
