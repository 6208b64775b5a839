package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedAnalysis = errors.New("provider returned malformed analysis")

const analysisSystemPrompt = `You are a gentle journaling companion. Read the journal entry and reply with a single JSON object and nothing else:
{"summary": "<two or three sentences>", "emotions": ["<emotion>", ...], "suggestions": ["<short reflective suggestion>", ...]}
Use between one and five emotions and between one and three suggestions.`

// Analysis is a generated reflection on one entry.
type Analysis struct {
	Summary     string   `json:"summary"`
	Emotions    []string `json:"emotions"`
	Suggestions []string `json:"suggestions"`
	Model       string   `json:"model"`
}

// Analyze asks the active provider to reflect on an entry.
func (c *Client) Analyze(ctx context.Context, title, content string) (Analysis, error) {
	cfg := c.cfg
	backend, ok := c.backends[cfg.Provider]
	if !ok {
		return Analysis{}, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.AnalysisTimeout)
	defer cancel()

	settings := cfg.Active()
	prompt := fmt.Sprintf("Title: %s\n\n%s", title, content)
	raw, err := backend.Complete(ctx, settings, analysisSystemPrompt, prompt)
	if err != nil {
		return Analysis{}, fmt.Errorf("%s completion: %w", cfg.Provider, err)
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		return Analysis{}, err
	}
	analysis.Model = fmt.Sprintf("%s:%s", cfg.Provider, settings.Model)
	return analysis, nil
}

// parseAnalysis tolerates code fences and prose around the JSON object.
func parseAnalysis(raw string) (Analysis, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Analysis{}, fmt.Errorf("%w: no JSON object", ErrMalformedAnalysis)
	}

	var out Analysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		return Analysis{}, fmt.Errorf("%w: empty summary", ErrMalformedAnalysis)
	}
	out.Emotions = compact(out.Emotions)
	out.Suggestions = compact(out.Suggestions)
	return out, nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
