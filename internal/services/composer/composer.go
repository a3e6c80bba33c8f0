// Package composer selects the AI reply backend named in configuration.
package composer

import (
	"context"
	"fmt"

	"murmur/internal/config"
	"murmur/internal/services/gemini"
	"murmur/internal/services/llm"
)

// Composer is an AI backend that can also report its own health.
type Composer interface {
	Compose(ctx context.Context, text, styleHint string, maxLength int) (string, error)
	HealthCheck(ctx context.Context) error
}

// FromConfig returns the configured backend, or nil when AI is disabled.
func FromConfig(ctx context.Context, cfg *config.Config, opts ...llm.Option) (Composer, error) {
	if cfg == nil || !cfg.AI.Enabled {
		return nil, nil
	}
	switch cfg.AI.Provider {
	case config.ProviderGemini:
		c, err := gemini.New(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderOpenRouter:
		return llm.NewClient(llm.Config{
			APIKey:         cfg.AI.APIKey,
			BaseURL:        cfg.AI.BaseURL,
			Model:          cfg.AI.Model,
			Referer:        cfg.AI.Referer,
			Title:          cfg.AI.Title,
			TimeoutSeconds: cfg.AI.TimeoutSeconds,
		}, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.AI.Provider)
	}
}
