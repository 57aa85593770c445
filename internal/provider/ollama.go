package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tripbot/internal/domain"
)

const (
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultModel = "qwen2.5:7b"
)

// Ollama streams chat replies from a local or remote Ollama server.
type Ollama struct {
	apiBase      string
	defaultModel string
	client       *http.Client
	retry        retryPolicy
	logger       *slog.Logger
}

type OllamaConfig struct {
	APIBase      string
	DefaultModel string
	Timeout      time.Duration
	MaxRetries   int
	RetryWait    time.Duration
	Logger       *slog.Logger
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.APIBase == "" {
		cfg.APIBase = ollamaDefaultBase
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ollamaDefaultModel
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ollama{
		apiBase:      strings.TrimRight(cfg.APIBase, "/"),
		defaultModel: cfg.DefaultModel,
		client:       SharedHTTPClient(cfg.Timeout),
		retry:        retryPolicy{maxRetries: cfg.MaxRetries, wait: cfg.RetryWait},
		logger:       cfg.Logger,
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// ollamaRequest matches the Ollama /api/chat request body.
type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []wireMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChunk struct {
	Message    wireMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason"`
	Error      string      `json:"error"`
}

func (o *Ollama) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return collect(ctx, o, req)
}

// ChatStream reads Ollama's newline-delimited JSON stream.
func (o *Ollama) ChatStream(ctx context.Context, req domain.ChatRequest, out chan<- domain.StreamEvent) error {
	defer close(out)

	body := ollamaRequest{
		Model:    req.Model,
		Messages: toWire(req.Messages),
		Stream:   true,
	}
	if body.Model == "" {
		body.Model = o.defaultModel
	}
	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		body.Options = opts
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fail(ctx, out, fmt.Errorf("marshal request: %w", err))
	}

	resp, err := doWithRetry(ctx, o.client, o.retry, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/api/chat", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	}, o.logger)
	if err != nil {
		return fail(ctx, out, fmt.Errorf("ollama request: %w", err))
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk ollamaChunk
		if err := decoder.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return emit(ctx, out, domain.StreamEvent{Type: domain.StreamDone})
			}
			return fail(ctx, out, fmt.Errorf("ollama stream decode: %w", err))
		}
		if chunk.Error != "" {
			return fail(ctx, out, fmt.Errorf("ollama: %s", chunk.Error))
		}
		if chunk.Message.Content != "" {
			if err := emit(ctx, out, domain.StreamEvent{Type: domain.StreamToken, Content: chunk.Message.Content}); err != nil {
				return err
			}
		}
		if chunk.Done {
			o.logger.Debug("ollama stream done", "reason", chunk.DoneReason)
			return emit(ctx, out, domain.StreamEvent{Type: domain.StreamDone})
		}
	}
}
