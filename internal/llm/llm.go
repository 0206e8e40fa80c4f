// Package llm provides document summarization over interchangeable model
// backends: a hosted OpenAI-compatible API and a local Ollama server.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Mode selects the summary style.
type Mode string

const (
	ModeBrief    Mode = "brief"
	ModeDetailed Mode = "detailed"
	ModeBullets  Mode = "bullets"
)

// ParseMode validates a mode string, defaulting empty input to brief.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeBrief, nil
	case ModeBrief, ModeDetailed, ModeBullets:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown summary mode %q", s)
}

// ErrEmptyText is returned when there is nothing to summarize.
var ErrEmptyText = errors.New("cannot summarize empty text")

// ModelInfo describes the backend a summary came from.
type ModelInfo struct {
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

// Summarizer produces a summary of text in the given mode. Implementations
// may retry transient upstream failures internally; the error they return
// is final from the pipeline's point of view.
type Summarizer interface {
	Summarize(ctx context.Context, text string, mode Mode) (string, error)
	ModelInfo() ModelInfo
}

// Options configures backend construction.
type Options struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OllamaBaseURL string
	OllamaModel   string
}

// Backends returns the backend names New accepts.
func Backends() []string { return []string{"openai", "ollama"} }

// New selects a Summarizer by backend name. The pipeline stays agnostic to
// which variant is bound.
func New(backend string, opts Options) (Summarizer, error) {
	switch backend {
	case "openai":
		if opts.OpenAIAPIKey == "" {
			return nil, errors.New("openai backend requires an API key")
		}
		return NewOpenAI(opts.OpenAIAPIKey, opts.OpenAIBaseURL, opts.OpenAIModel), nil
	case "ollama":
		return NewOllama(opts.OllamaBaseURL, opts.OllamaModel), nil
	}
	return nil, fmt.Errorf("unknown llm backend %q", backend)
}
