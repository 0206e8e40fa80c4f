package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3.2"
)

// Ollama is a Summarizer backed by a local Ollama server.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllama creates an Ollama summarizer. Empty baseURL and model fall back
// to the localhost defaults.
func NewOllama(baseURL, model string) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 0, // local generation can be slow; bound by ctx instead
		},
	}
}

func (o *Ollama) ModelInfo() ModelInfo {
	return ModelInfo{Backend: "ollama", Model: o.model}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

// Summarize sends a non-streaming chat request to /api/chat.
func (o *Ollama) Summarize(ctx context.Context, text string, mode Mode) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(text, mode)},
		},
		Stream: false,
		Options: map[string]any{
			"temperature": 0.3,
			"num_predict": maxTokens(mode),
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error
		if msg == "" {
			msg = "unknown error"
		}
		return "", fmt.Errorf("ollama HTTP %d: %s", resp.StatusCode, msg)
	}
	return strings.TrimSpace(parsed.Message.Content), nil
}

// IsRunning reports whether the Ollama server answers within 2 seconds.
// Used by the serve command for a startup readiness hint.
func (o *Ollama) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
