package provider

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tripbot/internal/config"
	"tripbot/internal/domain"
)

// Constructor builds a streaming provider from the llm config section.
type Constructor func(cfg config.LLMConfig, logger *slog.Logger) domain.StreamingProvider

const deepSeekDefaultBase = "https://api.deepseek.com/v1"

var (
	constructorsMu sync.RWMutex
	constructors   = map[string]Constructor{
		"openai": func(cfg config.LLMConfig, logger *slog.Logger) domain.StreamingProvider {
			return NewOpenAI(openAIConfig("openai", cfg, logger))
		},
		"deepseek": func(cfg config.LLMConfig, logger *slog.Logger) domain.StreamingProvider {
			if cfg.APIBase == "" {
				cfg.APIBase = deepSeekDefaultBase
			}
			return NewOpenAI(openAIConfig("deepseek", cfg, logger))
		},
		"ollama": func(cfg config.LLMConfig, logger *slog.Logger) domain.StreamingProvider {
			return NewOllama(OllamaConfig{
				APIBase:      cfg.APIBase,
				DefaultModel: cfg.Model,
				Timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
				MaxRetries:   cfg.MaxRetries,
				Logger:       logger,
			})
		},
	}
)

func openAIConfig(name string, cfg config.LLMConfig, logger *slog.Logger) OpenAIConfig {
	return OpenAIConfig{
		Name:       name,
		APIKey:     cfg.APIKey,
		APIBase:    cfg.APIBase,
		Model:      cfg.Model,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	}
}

// RegisterConstructor adds (or replaces) a provider constructor by name.
func RegisterConstructor(name string, ctor Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	constructors[name] = ctor
}

// New builds the provider named by cfg.Provider. Names without a
// registered constructor are treated as OpenAI-compatible endpoints and
// need an apiBase.
func New(cfg config.LLMConfig, logger *slog.Logger) (domain.StreamingProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	constructorsMu.RLock()
	ctor, ok := constructors[cfg.Provider]
	constructorsMu.RUnlock()
	if ok {
		return ctor(cfg, logger), nil
	}
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("provider %q: no constructor registered and no apiBase configured", cfg.Provider)
	}
	return NewOpenAI(openAIConfig(cfg.Provider, cfg, logger)), nil
}
