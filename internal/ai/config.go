// Package ai reports on and talks to the configured AI provider.
//
// Config is a value. Probing another provider copies it with With and hands
// the copy to HealthCheck, so concurrent probes never observe each other and
// the active provider of the running process never changes.
package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ProviderName string

const (
	ProviderOpenAI ProviderName = "openai"
	ProviderGemini ProviderName = "gemini"
	ProviderOllama ProviderName = "ollama"
)

// Providers lists every supported provider in display order.
var Providers = []ProviderName{ProviderOpenAI, ProviderGemini, ProviderOllama}

var ErrInvalidProvider = errors.New("invalid provider")

// ParseProvider accepts only the three known provider names.
func ParseProvider(s string) (ProviderName, error) {
	name := ProviderName(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range Providers {
		if p == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q (expected one of openai, gemini, ollama)", ErrInvalidProvider, s)
}

// Settings describes how to reach one provider.
type Settings struct {
	Endpoint string
	Model    string
	APIKey   string
}

type Config struct {
	Provider ProviderName
	OpenAI   Settings
	Gemini   Settings
	Ollama   Settings

	HealthTimeout   time.Duration
	AnalysisTimeout time.Duration
}

// With returns a copy of c with another active provider.
func (c Config) With(name ProviderName) Config {
	c.Provider = name
	return c
}

func (c Config) Settings(name ProviderName) Settings {
	switch name {
	case ProviderOpenAI:
		return c.OpenAI
	case ProviderGemini:
		return c.Gemini
	case ProviderOllama:
		return c.Ollama
	}
	return Settings{}
}

func (c Config) Active() Settings {
	return c.Settings(c.Provider)
}
