package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tripbot/internal/domain"
)

// wireMessage is the role/content pair both chat APIs accept.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// toWire converts memory entries for a chat API. Tool entries carry no
// tool-call id, which both APIs require for the tool role, so they are
// sent as system notes naming the tool.
func toWire(msgs []domain.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		w := wireMessage{Role: m.Role, Content: m.Content}
		if m.Role == domain.RoleTool {
			w.Role = domain.RoleSystem
			w.Content = fmt.Sprintf("Tool %s returned: %s", m.Name, m.Content)
		}
		out = append(out, w)
	}
	return out
}

// emit delivers ev unless ctx is done.
func emit(ctx context.Context, out chan<- domain.StreamEvent, ev domain.StreamEvent) error {
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail reports err on out and returns it.
func fail(ctx context.Context, out chan<- domain.StreamEvent, err error) error {
	_ = emit(ctx, out, domain.StreamEvent{Type: domain.StreamError, Content: err.Error()})
	return err
}

// collect runs a stream to completion and joins its fragments.
func collect(ctx context.Context, p domain.StreamingProvider, req domain.ChatRequest) (*domain.ChatResponse, error) {
	start := time.Now()
	ch := make(chan domain.StreamEvent, 64)
	errc := make(chan error, 1)
	go func() { errc <- p.ChatStream(ctx, req, ch) }()

	var sb strings.Builder
	var streamErr string
	for ev := range ch {
		switch ev.Type {
		case domain.StreamToken:
			sb.WriteString(ev.Content)
		case domain.StreamError:
			streamErr = ev.Content
		}
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	if streamErr != "" {
		return nil, errors.New(streamErr)
	}
	return &domain.ChatResponse{
		Content:      sb.String(),
		FinishReason: "stop",
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}
