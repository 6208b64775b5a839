package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"
)

// openAIBackend serves OpenAI and any OpenAI-compatible endpoint, which is
// how Gemini is reached.
type openAIBackend struct {
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
}

func newOpenAIBackend() *openAIBackend {
	return &openAIBackend{httpClient: http.DefaultClient, attempts: 3, delay: time.Second}
}

func (b *openAIBackend) client(s Settings) *openai.Client {
	config := openai.DefaultConfig(s.APIKey)
	if s.Endpoint != "" {
		config.BaseURL = s.Endpoint
	}
	config.HTTPClient = b.httpClient
	return openai.NewClientWithConfig(config)
}

// Ping lists models, which exercises both reachability and the key.
func (b *openAIBackend) Ping(ctx context.Context, s Settings) error {
	if s.APIKey == "" {
		return ErrMissingAPIKey
	}
	_, err := b.client(s).ListModels(ctx)
	return err
}

func (b *openAIBackend) Complete(ctx context.Context, s Settings, system, prompt string) (string, error) {
	if s.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	client := b.client(s)
	request := openai.ChatCompletionRequest{
		Model: s.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var resp openai.ChatCompletionResponse
	err := retry.Do(func() error {
		var err error
		resp, err = client.CreateChatCompletion(ctx, request)
		if err != nil && openAIUnauthorized(err) {
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
	if len(resp.Choices) == 0 {
		return "", ErrMalformedAnalysis
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIUnauthorized(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized {
		return true
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusUnauthorized
}
