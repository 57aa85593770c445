package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbot/internal/config"
	"tripbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func drain(t *testing.T, p domain.StreamingProvider, req domain.ChatRequest) ([]domain.StreamEvent, error) {
	t.Helper()
	ch := make(chan domain.StreamEvent, 16)
	errc := make(chan error, 1)
	go func() { errc <- p.ChatStream(context.Background(), req, ch) }()
	var events []domain.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events, <-errc
}

func tokens(events []domain.StreamEvent) string {
	var s string
	for _, ev := range events {
		if ev.Type == domain.StreamToken {
			s += ev.Content
		}
	}
	return s
}

var conversation = []domain.Message{
	{Role: domain.RoleSystem, Content: "你是旅行助手"},
	{Role: domain.RoleUser, Content: "北京今天天气怎么样"},
	{Role: domain.RoleTool, Name: "get_current_temperature", Content: `{"temperature":18}`},
}

func TestToWire(t *testing.T) {
	wire := toWire(conversation)
	require.Len(t, wire, 3)
	assert.Equal(t, wireMessage{Role: "user", Content: "北京今天天气怎么样"}, wire[1])
	assert.Equal(t, wireMessage{Role: "system", Content: `Tool get_current_temperature returned: {"temperature":18}`}, wire[2])
}

func TestOpenAI_ChatStream(t *testing.T) {
	var got oaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frag := range []string{"北京", "今天晴，", "18°C。"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", frag)
		}
		io.WriteString(w, ": keep-alive\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "sk-test", APIBase: srv.URL + "/", Model: "m1", Logger: testLogger()})
	events, err := drain(t, p, domain.ChatRequest{Messages: conversation, Temperature: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "北京今天晴，18°C。", tokens(events))
	assert.Equal(t, domain.StreamDone, events[len(events)-1].Type)

	assert.Equal(t, "m1", got.Model)
	assert.True(t, got.Stream)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.5, *got.Temperature)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[2].Role)
}

func TestOpenAI_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"你好\"}}]}\n\n")
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: srv.URL, Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{Messages: conversation})
	require.NoError(t, err)
	assert.Equal(t, "你好", resp.Content)
}

func TestOpenAI_ClientErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: srv.URL, MaxRetries: 3, RetryWait: time.Millisecond, Logger: testLogger()})
	events, err := drain(t, p, domain.ChatRequest{Messages: conversation})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	require.NotEmpty(t, events)
	assert.Equal(t, domain.StreamError, events[len(events)-1].Type)
}

func TestOpenAI_ServerErrorRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: srv.URL, MaxRetries: 2, RetryWait: time.Millisecond, Logger: testLogger()})
	events, err := drain(t, p, domain.ChatRequest{Messages: conversation})
	require.NoError(t, err)
	assert.Equal(t, "ok", tokens(events))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestOpenAI_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"半\"}}]}\n\n")
		io.WriteString(w, "data: {\"error\":{\"message\":\"overloaded\"}}\n\n")
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: srv.URL, Logger: testLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{Messages: conversation})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestOllama_ChatStream(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"message":{"role":"assistant","content":"明天"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":"有雨"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`+"\n")
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{APIBase: srv.URL, DefaultModel: "qwen", Logger: testLogger()})
	events, err := drain(t, p, domain.ChatRequest{Messages: conversation, MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, "明天有雨", tokens(events))
	assert.Equal(t, domain.StreamDone, events[len(events)-1].Type)
	assert.Equal(t, "qwen", got.Model)
	assert.Equal(t, 256.0, got.Options["num_predict"])
}

func TestOllama_ErrorChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":"model not found"}`+"\n")
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{APIBase: srv.URL, Logger: testLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{Messages: conversation})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models", "/api/tags":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	assert.NoError(t, NewOpenAI(OpenAIConfig{APIBase: srv.URL}).Healthy(context.Background()))
	assert.NoError(t, NewOllama(OllamaConfig{APIBase: srv.URL}).Healthy(context.Background()))
}

func TestNew(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: "ollama", TimeoutSeconds: 5}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = New(config.LLMConfig{Provider: "deepseek", TimeoutSeconds: 5}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "deepseek", p.Name())
	assert.Equal(t, deepSeekDefaultBase, p.(*OpenAI).apiBase)

	p, err = New(config.LLMConfig{Provider: "vllm", APIBase: "http://localhost:8000/v1"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "vllm", p.Name())

	_, err = New(config.LLMConfig{Provider: "mystery"}, testLogger())
	assert.Error(t, err)
}
