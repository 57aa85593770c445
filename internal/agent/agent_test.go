package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tripbot/internal/domain"
	"tripbot/internal/intent"
	"tripbot/internal/tool"
)

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.Local)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedProvider streams a fixed reply and records every request.
type scriptedProvider struct {
	mu       sync.Mutex
	reply    []string
	err      error
	panics   bool
	requests []domain.ChatRequest
}

func (p *scriptedProvider) Name() string                      { return "scripted" }
func (p *scriptedProvider) Healthy(ctx context.Context) error { return nil }
func (p *scriptedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return nil, errors.New("not used")
}
func (p *scriptedProvider) ChatStream(ctx context.Context, req domain.ChatRequest, out chan<- domain.StreamEvent) error {
	defer close(out)
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.panics {
		panic("provider exploded")
	}
	for _, frag := range p.reply {
		out <- domain.StreamEvent{Type: domain.StreamToken, Content: frag}
	}
	if p.err != nil {
		out <- domain.StreamEvent{Type: domain.StreamError, Content: p.err.Error()}
		return p.err
	}
	out <- domain.StreamEvent{Type: domain.StreamDone}
	return nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// fakeTool records its arguments and returns a canned value or error.
type fakeTool struct {
	name   string
	result any
	err    error
	panics bool
	log    *[]string
	args   map[string]any
}

func (f *fakeTool) Name() string               { return f.name }
func (f *fakeTool) Description() string        { return "fake " + f.name }
func (f *fakeTool) Parameters() map[string]any { return tool.ToolParameters(nil, nil) }
func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	f.args = args
	if f.log != nil {
		*f.log = append(*f.log, f.name)
	}
	if f.panics {
		panic("tool exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type harness struct {
	dispatcher *Dispatcher
	provider   *scriptedProvider
	registry   *tool.Registry
	profiles   *fakeProfiles
	tools      map[string]*fakeTool
	order      []string
}

var toolNames = []string{
	"get_current_temperature", "get_temperature_date", "get_traffic_status", "get_route_traffic",
	"find_nearby_facilities", "get_scenic_spot_info", "generate_travel_itinerary", "generate_packing_list",
	"analyze_travel_photo", "generate_social_media_post", "collect_user_info", "get_user_info",
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	classifier, err := intent.New(intent.DefaultRules())
	require.NoError(t, err)

	h := &harness{
		provider: &scriptedProvider{reply: []string{"好的，", "这是回复。"}},
		registry: tool.NewRegistry(testLogger()),
		profiles: &fakeProfiles{profiles: map[string]domain.Profile{}},
		tools:    map[string]*fakeTool{},
	}
	for _, name := range toolNames {
		ft := &fakeTool{name: name, result: map[string]any{"tool": name}, log: &h.order}
		h.tools[name] = ft
		h.registry.Register(ft)
	}
	h.dispatcher = NewDispatcher(DispatcherConfig{
		Provider:   h.provider,
		Classifier: classifier,
		Tools:      h.registry,
		Profiles:   h.profiles,
		Logger:     testLogger(),
		Now:        func() time.Time { return testNow },
	})
	return h
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	err      error
}

func (f *fakeProfiles) Get(ctx context.Context, userID string) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Profile{}, f.err
	}
	return f.profiles[userID].Clone(), nil
}

func (f *fakeProfiles) Update(ctx context.Context, userID string, u domain.ProfileUpdate) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := u.Apply(f.profiles[userID])
	f.profiles[userID] = p
	return p, nil
}

func (f *fakeProfiles) set(userID string, p domain.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[userID] = p
}

// fakeHistory is an in-memory domain.HistoryStore.
type fakeHistory struct {
	mu      sync.Mutex
	entries map[string][]domain.Message
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: map[string][]domain.Message{}}
}

func (f *fakeHistory) LoadHistory(ctx context.Context, confUID, historyUID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, ok := f.entries[confUID+"/"+historyUID]
	if !ok {
		return nil, errors.New("history not found")
	}
	return append([]domain.Message(nil), msgs...), nil
}

func (f *fakeHistory) AppendHistory(ctx context.Context, confUID, historyUID string, msgs []domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := confUID + "/" + historyUID
	f.entries[key] = append(f.entries[key], msgs...)
	return nil
}
