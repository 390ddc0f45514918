package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"antbot/internal/domain"
)

const (
	Temperature    = 0.7
	MaxTokens      = 1000
	DefaultTimeout = 60 * time.Second
)

// Generator asks the chat completion service for an answer and never propagates its failures.
type Generator struct {
	llm       domain.ChatCompleter
	model     string
	timeout   time.Duration
	onFailure func(error) string
	logger    *slog.Logger
}

// New creates a generator. onFailure renders the degraded answer for a failed call.
func New(llm domain.ChatCompleter, model string, timeout time.Duration, onFailure func(error) string, logger *slog.Logger) *Generator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if onFailure == nil {
		onFailure = func(err error) string { return "error generating response: " + err.Error() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: llm, model: model, timeout: timeout, onFailure: onFailure, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (answer string) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("completion panicked: %v", r)
			g.logger.Error("answer generation failed", "error", err)
			answer = g.onFailure(err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.llm.Complete(ctx, domain.CompletionRequest{
		Model: g.model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: prompt.System},
			{Role: domain.RoleUser, Content: prompt.User},
		},
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
	})
	if err != nil {
		g.logger.Error("answer generation failed", "model", g.model, "elapsed", time.Since(start), "error", err)
		return g.onFailure(err)
	}
	g.logger.Debug("answer generated", "model", g.model, "elapsed", time.Since(start), "chars", len(text))
	return text
}
