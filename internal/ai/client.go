package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrMissingAPIKey       = errors.New("api key not configured")
	ErrUnsupportedProvider = errors.New("no backend for provider")
)

// Backend is the transport for one provider family.
type Backend interface {
	Ping(ctx context.Context, s Settings) error
	Complete(ctx context.Context, s Settings, system, prompt string) (string, error)
}

// Client holds an immutable configuration snapshot and the backends that
// serve each provider.
type Client struct {
	cfg      Config
	backends map[ProviderName]Backend
	now      func() time.Time
}

func NewClient(cfg Config) *Client {
	oa := newOpenAIBackend()
	return NewClientWithBackends(cfg, map[ProviderName]Backend{
		ProviderOpenAI: oa,
		ProviderGemini: oa,
		ProviderOllama: newOllamaBackend(),
	})
}

func NewClientWithBackends(cfg Config, backends map[ProviderName]Backend) *Client {
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 60 * time.Second
	}
	return &Client{cfg: cfg, backends: backends, now: time.Now}
}

// Config returns the process configuration. It is a copy.
func (c *Client) Config() Config {
	return c.cfg
}

type Health struct {
	Provider  ProviderName `json:"provider"`
	Healthy   bool         `json:"healthy"`
	Endpoint  string       `json:"endpoint"`
	Model     string       `json:"model"`
	LatencyMs int64        `json:"latencyMs"`
	Error     string       `json:"error,omitempty"`
	CheckedAt time.Time    `json:"checkedAt"`
}

// HealthCheck pings the active provider of cfg. Failures, including panics
// inside a backend, are reported in the result rather than returned.
func (c *Client) HealthCheck(ctx context.Context, cfg Config) (h Health) {
	settings := cfg.Active()
	h = Health{
		Provider:  cfg.Provider,
		Endpoint:  settings.Endpoint,
		Model:     settings.Model,
		CheckedAt: c.now().UTC(),
	}

	start := c.now()
	defer func() {
		h.LatencyMs = c.now().Sub(start).Milliseconds()
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("provider", string(cfg.Provider)).Msg("ai health check panicked")
			h.Healthy = false
			h.Error = fmt.Sprintf("health check panicked: %v", r)
		}
	}()

	backend, ok := c.backends[cfg.Provider]
	if !ok {
		h.Error = fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider).Error()
		return h
	}

	timeout := cfg.HealthTimeout
	if timeout <= 0 {
		timeout = c.cfg.HealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := backend.Ping(ctx, settings); err != nil {
		log.Warn().Err(err).Str("provider", string(cfg.Provider)).Msg("ai health check failed")
		h.Error = err.Error()
		return h
	}
	h.Healthy = true
	return h
}

type ProviderInfo struct {
	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`
}

// Status is the diagnostic report for GET /api/ai/status.
type Status struct {
	Provider ProviderName                  `json:"provider"`
	Health   Health                        `json:"health"`
	Config   map[ProviderName]ProviderInfo `json:"config"`
	APIKeys  map[ProviderName]bool         `json:"apiKeys"`
}

// Status describes every known provider and health checks the active one.
// Key values never leave the process; only their presence is reported.
func (c *Client) Status(ctx context.Context) Status {
	cfg := c.cfg
	out := Status{
		Provider: cfg.Provider,
		Config:   make(map[ProviderName]ProviderInfo, len(Providers)),
		APIKeys:  make(map[ProviderName]bool, len(Providers)),
	}
	for _, p := range Providers {
		s := cfg.Settings(p)
		out.Config[p] = ProviderInfo{Endpoint: s.Endpoint, Model: s.Model}
		out.APIKeys[p] = s.APIKey != ""
	}
	out.Health = c.HealthCheck(ctx, cfg)
	return out
}

// Probe health checks another provider without touching the process
// configuration.
func (c *Client) Probe(ctx context.Context, name string) (Health, error) {
	provider, err := ParseProvider(name)
	if err != nil {
		return Health{}, err
	}
	return c.HealthCheck(ctx, c.cfg.With(provider)), nil
}
