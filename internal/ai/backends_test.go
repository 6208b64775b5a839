package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOpenAI() *openAIBackend {
	b := newOpenAIBackend()
	b.delay = time.Millisecond
	return b
}

func fastOllama() *ollamaBackend {
	b := newOllamaBackend()
	b.delay = time.Millisecond
	return b
}

func TestOpenAIBackendPing(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o-mini","object":"model"}]}`))
	}))
	defer srv.Close()

	err := fastOpenAI().Ping(context.Background(), Settings{Endpoint: srv.URL + "/v1", Model: "gpt-4o-mini", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", auth)
}

func TestOpenAIBackendPingWithoutKey(t *testing.T) {
	err := fastOpenAI().Ping(context.Background(), Settings{Endpoint: "http://127.0.0.1:1"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestOpenAIBackendComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"summary\":\"ok\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	out, err := fastOpenAI().Complete(context.Background(), Settings{Endpoint: srv.URL + "/v1", Model: "gpt-4o-mini", APIKey: "k"}, "sys", "hi")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, out)
}

func TestOpenAIBackendDoesNotRetryUnauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := fastOpenAI().Complete(context.Background(), Settings{Endpoint: srv.URL + "/v1", Model: "m", APIKey: "bad"}, "sys", "hi")
	require.Error(t, err)
	assert.True(t, openAIUnauthorized(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestOpenAIBackendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"done"}}]}`))
	}))
	defer srv.Close()

	out, err := fastOpenAI().Complete(context.Background(), Settings{Endpoint: srv.URL + "/v1", Model: "m", APIKey: "k"}, "sys", "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.EqualValues(t, 3, calls.Load())
}

func ollamaServer(t *testing.T, models string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/" && r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/api/tags":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(models))
		case r.URL.Path == "/api/chat":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":"{\"summary\":\"fine\"}"},"done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaBackendPing(t *testing.T) {
	srv := ollamaServer(t, `{"models":[{"name":"llama3.1:latest","model":"llama3.1:latest"}]}`)

	err := fastOllama().Ping(context.Background(), Settings{Endpoint: srv.URL, Model: "llama3.1"})
	assert.NoError(t, err)
}

func TestOllamaBackendPingModelMissing(t *testing.T) {
	srv := ollamaServer(t, `{"models":[{"name":"mistral:latest","model":"mistral:latest"}]}`)

	err := fastOllama().Ping(context.Background(), Settings{Endpoint: srv.URL, Model: "llama3.1"})
	assert.ErrorIs(t, err, ErrModelNotPulled)
}

func TestOllamaBackendPingUnreachable(t *testing.T) {
	srv := ollamaServer(t, `{"models":[]}`)
	url := srv.URL
	srv.Close()

	err := fastOllama().Ping(context.Background(), Settings{Endpoint: url, Model: "llama3.1"})
	assert.Error(t, err)
}

func TestOllamaBackendInvalidEndpoint(t *testing.T) {
	err := fastOllama().Ping(context.Background(), Settings{Endpoint: "::not a url"})
	assert.Error(t, err)
}

func TestOllamaBackendComplete(t *testing.T) {
	srv := ollamaServer(t, `{"models":[]}`)

	out, err := fastOllama().Complete(context.Background(), Settings{Endpoint: srv.URL, Model: "llama3.1"}, "sys", "hi")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"fine"}`, out)
}

func TestOllamaBackendSendsBearerKey(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, fastOllama().Ping(context.Background(), Settings{Endpoint: srv.URL, APIKey: "secret"}))
	assert.Equal(t, "Bearer secret", auth)
}

func TestSameModel(t *testing.T) {
	assert.True(t, sameModel("llama3.1", "llama3.1"))
	assert.True(t, sameModel("llama3.1:latest", "llama3.1"))
	assert.False(t, sameModel("llama3.1:8b", "llama3.1:70b"))
	assert.False(t, sameModel("mistral:latest", "llama3.1"))
}
