package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tripbot/internal/domain"
)

// ErrUnknownTool is reported for names with no registered tool.
var ErrUnknownTool = errors.New("unknown tool")

// Observer receives one observation per invocation.
type Observer interface {
	ObserveTool(name, status string, d time.Duration)
}

// Registry is the static catalogue of tools. Each entry binds a name to
// both its schema and its handler, so the catalogue the model sees and the
// dispatch table cannot drift apart.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]domain.Tool
	order    []string
	last     *domain.ToolCallRecord
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
		now:    time.Now,
	}
}

// SetObserver installs o to receive invocation metrics.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Register adds t, replacing any tool of the same name in place.
func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
	r.logger.Debug("registered tool", "name", t.Name())
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions returns the catalogue in registration order, in the shape
// function-calling models expect. The slice is a fresh copy.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// LastCall returns the most recent invocation, if any.
func (r *Registry) LastCall() (domain.ToolCallRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return domain.ToolCallRecord{}, false
	}
	return *r.last, true
}

// Invoke runs the named tool. It never returns an error and never panics:
// unknown names, schema mismatches, tool errors and tool panics all come
// back as a Result carrying a reason.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (res Result) {
	start := r.now()
	r.record(name, args, start)

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			res = Failure(fmt.Errorf("tool %s failed: %v", name, p))
		}
		status := "ok"
		if !res.OK() {
			status = "error"
		}
		r.mu.RLock()
		obs := r.observer
		r.mu.RUnlock()
		if obs != nil {
			obs.ObserveTool(name, status, time.Since(start))
		}
	}()

	t := r.Get(name)
	if t == nil {
		r.logger.Warn("unknown tool requested", "tool", name)
		return Failure(fmt.Errorf("%w: %s (available: %v)", ErrUnknownTool, name, r.Names()))
	}

	normalized, err := normalizeArgs(args)
	if err != nil {
		return Failure(err)
	}
	if err := Validate(normalized, t.Parameters()); err != nil {
		r.logger.Warn("tool arguments rejected", "tool", name, "err", err)
		return Failure(err)
	}

	r.logger.Debug("invoking tool", "tool", name, "args", redact(normalized))
	value, err := t.Execute(ctx, normalized)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "err", err)
		return Failure(err)
	}
	if _, err := marshal(value); err != nil {
		return Failure(fmt.Errorf("tool %s returned an unserializable result: %w", name, err))
	}
	return Result{Value: value}
}

func (r *Registry) record(name string, args map[string]any, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &domain.ToolCallRecord{Name: name, Arguments: redact(args), Timestamp: at}
}

// imageKeys are argument names whose values are image payloads.
var imageKeys = map[string]bool{"image_data": true, "image": true}

// redact copies args with image payloads replaced by a placeholder.
func redact(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if imageKeys[k] {
			v = "[image]"
		}
		out[k] = v
	}
	return out
}

// Result is the outcome of one invocation. Exactly one of Value and Error
// is meaningful.
type Result struct {
	Value any
	Error string
}

// Failure wraps err as a Result. The reason is never empty.
func Failure(err error) Result {
	reason := "tool failed"
	if err != nil && err.Error() != "" {
		reason = err.Error()
	}
	return Result{Error: reason}
}

func (r Result) OK() bool { return r.Error == "" }

// MarshalJSON renders failures as {"error": reason} and successes as the
// value itself.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.OK() {
		return marshal(map[string]string{"error": r.Error})
	}
	return marshal(r.Value)
}

// String is the serialized form stored in conversation memory.
func (r Result) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}

// marshal encodes without HTML escaping so CJK text and URLs stay
// readable in memory and logs.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
