package providers

import (
	"context"
	"fmt"

	"doc-reader/internal/claude"
	"doc-reader/internal/completion"
	"doc-reader/internal/config"
	"doc-reader/internal/geministore"
	"doc-reader/internal/openaicompat"
)

// NewCompleter builds the completion client for the configured provider.
func NewCompleter(ctx context.Context, cfg *config.Config) (completion.Completer, error) {
	switch cfg.Provider {
	case config.ProviderZhipu:
		return openaicompat.New(openaicompat.Options{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, RawBase64: true}), nil
	case config.ProviderOpenAI:
		return openaicompat.New(openaicompat.Options{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}), nil
	case config.ProviderGemini:
		return geministore.New(ctx, cfg.APIKey, cfg.BaseURL)
	case config.ProviderAnthropic:
		return claude.New(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
