// Package openaicompat adapts any OpenAI-compatible chat-completion server
// as an inference engine. It is the development path for machines without
// the platform-native model: point it at a local llama.cpp server, Ollama,
// or the real OpenAI API.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"

	"libai/backend"
)

// Config holds the adapter settings.
type Config struct {
	// BaseURL is the server endpoint (e.g., "http://localhost:8080/v1").
	// Empty means the official OpenAI endpoint.
	BaseURL string

	// Model is the model identifier sent with every request.
	Model string

	// APIKey authenticates against the server. Local servers usually
	// accept any value.
	APIKey string
}

// Engine is the OpenAI-compatible backend.Engine implementation.
type Engine struct {
	client *openai.Client
	model  string

	mu     sync.Mutex
	closed bool
}

// New creates an Engine from the given configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Model == "" {
		return nil, errors.New("openaicompat: model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Engine{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

// Kind returns "openai".
func (e *Engine) Kind() string { return "openai" }

// Probe issues a minimal models request to verify the server is reachable.
// Reachable means Available; any transport or auth failure reports
// Unavailable with the error text as reason.
func (e *Engine) Probe(ctx context.Context) (backend.Availability, string) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return backend.Unavailable, "backend closed"
	}

	if _, err := e.client.ListModels(ctx); err != nil {
		return backend.Unavailable, fmt.Sprintf("server not reachable: %v", err)
	}
	return backend.Available, ""
}

// Respond sends the transcript as a chat-completion request and returns
// the first choice's content.
func (e *Engine) Respond(ctx context.Context, transcript []backend.Turn, opts backend.ResolvedOptions) (string, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return "", errors.New("backend closed")
	}

	messages := buildMessages(transcript, opts)
	if len(messages) == 0 {
		return "", errors.New("transcript is empty")
	}

	req := openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: messages,
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

// Close marks the engine closed. The underlying HTTP client has no
// resources to release.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// buildMessages translates a transcript into chat-completion messages.
// A system prompt from the options is prepended unless the transcript
// already starts with a system turn.
func buildMessages(transcript []backend.Turn, opts backend.ResolvedOptions) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(transcript)+1)

	hasSystem := len(transcript) > 0 && transcript[0].Role == backend.RoleSystem
	if opts.SystemPrompt != "" && !hasSystem {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}

	for _, turn := range transcript {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Text,
		})
	}
	return messages
}
