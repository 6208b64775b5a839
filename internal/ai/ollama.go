package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ollama/ollama/api"
)

var ErrModelNotPulled = errors.New("model not available on ollama host")

type ollamaBackend struct {
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
}

func newOllamaBackend() *ollamaBackend {
	return &ollamaBackend{httpClient: http.DefaultClient, attempts: 3, delay: time.Second}
}

func (b *ollamaBackend) client(s Settings) (*api.Client, error) {
	base, err := url.Parse(s.Endpoint)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama endpoint %q", s.Endpoint)
	}
	httpClient := b.httpClient
	if s.APIKey != "" {
		httpClient = &http.Client{
			Timeout:   b.httpClient.Timeout,
			Transport: bearerTransport{key: s.APIKey, next: transportOf(b.httpClient)},
		}
	}
	return api.NewClient(base, httpClient), nil
}

// Ping requires the host to answer and the configured model to be pulled.
func (b *ollamaBackend) Ping(ctx context.Context, s Settings) error {
	client, err := b.client(s)
	if err != nil {
		return err
	}
	if err := client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if s.Model == "" {
		return nil
	}
	models, err := client.List(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models.Models {
		if sameModel(m.Name, s.Model) || sameModel(m.Model, s.Model) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrModelNotPulled, s.Model)
}

func (b *ollamaBackend) Complete(ctx context.Context, s Settings, system, prompt string) (string, error) {
	client, err := b.client(s)
	if err != nil {
		return "", err
	}
	stream := false
	request := &api.ChatRequest{
		Model: s.Model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream: &stream,
		Format: json.RawMessage(`"json"`),
	}

	var out strings.Builder
	err = retry.Do(func() error {
		out.Reset()
		err := client.Chat(ctx, request, func(resp api.ChatResponse) error {
			out.WriteString(resp.Message.Content)
			return nil
		})
		var statusErr api.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			return retry.Unrecoverable(err)
		}
		return err
	},
		retry.Attempts(b.attempts),
		retry.Delay(b.delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

// sameModel treats "llama3.1" and "llama3.1:latest" as the same model.
func sameModel(have, want string) bool {
	if have == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return have == want+":latest"
	}
	return false
}

type bearerTransport struct {
	key  string
	next http.RoundTripper
}

func (t bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+t.key)
	return t.next.RoundTrip(r)
}

func transportOf(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}
