package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tripbot/internal/domain"
	"tripbot/internal/intent"
	"tripbot/internal/metrics"
	"tripbot/internal/tool"
)

// Turn is one user input.
type Turn struct {
	Text   string
	Images []string // base64, data URL or http(s) URL; only the first is analyzed
	UserID string
}

// Reply is the outcome of a turn. Text is always set, also when the turn
// failed, so front-ends can show it as a normal reply.
type Reply struct {
	Text    string
	Branch  intent.Kind
	Outcome string
	Err     error
}

// branchFunc runs the tool calls of one branch. A non-empty return value
// is a clarification that ends the turn without a model call.
type branchFunc func(ts *turnState) (string, error)

// turnState is what a branch sees of the running turn.
type turnState struct {
	ctx     context.Context
	mem     *Memory
	turn    Turn
	intents intent.Result
}

// Dispatcher runs turns: classify, call the tools of the selected branch,
// fold their results into memory and ask the model for the reply.
type Dispatcher struct {
	provider    domain.StreamingProvider
	classifier  *intent.Classifier
	tools       *tool.Registry
	profiles    domain.ProfileStore
	metrics     *metrics.Metrics
	logger      *slog.Logger
	model       string
	maxTokens   int
	temperature float64
	turnTimeout time.Duration
	now         func() time.Time
	branches    map[intent.Kind]branchFunc
}

type DispatcherConfig struct {
	Provider    domain.StreamingProvider
	Classifier  *intent.Classifier
	Tools       *tool.Registry
	Profiles    domain.ProfileStore // nil means every profile is empty
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Model       string
	MaxTokens   int
	Temperature float64
	TurnTimeout time.Duration
	Now         func() time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	d := &Dispatcher{
		provider:    cfg.Provider,
		classifier:  cfg.Classifier,
		tools:       cfg.Tools,
		profiles:    cfg.Profiles,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		turnTimeout: cfg.TurnTimeout,
		now:         cfg.Now,
	}
	d.branches = map[intent.Kind]branchFunc{
		intent.KindImageAnalysis: d.imageBranch,
		intent.KindWeather:       d.weatherBranch,
		intent.KindTraffic:       d.trafficBranch,
		intent.KindRoute:         d.routeBranch,
		intent.KindFacility:      d.facilityBranch,
		intent.KindItinerary:     d.itineraryBranch,
		intent.KindPacking:       d.packingBranch,
		intent.KindUserInfo:      d.userInfoBranch,
		intent.KindScenic:        d.scenicBranch,
		intent.KindSocialMedia:   d.socialBranch,
		intent.KindChat:          d.chatBranch,
	}
	return d
}

// Classify runs every classifier against text without touching memory.
func (d *Dispatcher) Classify(text string, hasImage bool) intent.Result {
	return d.classifier.Classify(text, hasImage)
}

// HandleTurn processes one turn against mem. Callers serialize turns per
// conversation. A failed turn leaves no assistant entry behind and
// returns an apology as the reply text.
func (d *Dispatcher) HandleTurn(ctx context.Context, mem *Memory, turn Turn) (reply Reply) {
	start := time.Now()
	if d.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.turnTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("turn panicked", "branch", reply.Branch, "panic", p)
			reply = d.failed(reply.Branch, fmt.Errorf("%v", p))
		}
		d.metrics.ObserveTurn(reply.Branch.String(), reply.Outcome, time.Since(start))
	}()

	mem.Append(domain.Message{Role: domain.RoleUser, Content: turn.Text})

	ts := &turnState{
		ctx:     ctx,
		mem:     mem,
		turn:    turn,
		intents: d.classifier.Classify(turn.Text, len(turn.Images) > 0),
	}
	kind := ts.intents.Top()
	reply.Branch = kind
	d.logger.Info("turn classified", "branch", kind, "user", turn.UserID)

	clarification, err := d.branches[kind](ts)
	if err != nil {
		return d.failed(kind, err)
	}
	if clarification != "" {
		mem.Append(domain.Message{Role: domain.RoleAssistant, Content: clarification})
		return Reply{Text: clarification, Branch: kind, Outcome: metrics.OutcomeClarified}
	}

	text, err := d.complete(ctx, mem.Snapshot())
	if err != nil {
		return d.failed(kind, err)
	}
	mem.Append(domain.Message{Role: domain.RoleAssistant, Content: text})
	return Reply{Text: text, Branch: kind, Outcome: metrics.OutcomeReplied}
}

func (d *Dispatcher) failed(kind intent.Kind, err error) Reply {
	d.logger.Error("turn failed", "branch", kind, "err", err)
	return Reply{
		Text:    apologyPrefix + err.Error(),
		Branch:  kind,
		Outcome: metrics.OutcomeFailed,
		Err:     err,
	}
}

// complete streams the model reply for msgs and joins its fragments in
// arrival order.
func (d *Dispatcher) complete(ctx context.Context, msgs []domain.Message) (string, error) {
	if d.provider == nil {
		return "", errors.New("no language model configured")
	}
	req := domain.ChatRequest{
		Messages:    msgs,
		Model:       d.model,
		MaxTokens:   d.maxTokens,
		Temperature: d.temperature,
	}
	ch := make(chan domain.StreamEvent, 64)
	errc := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				errc <- fmt.Errorf("model stream panicked: %v", p)
			}
		}()
		errc <- d.provider.ChatStream(ctx, req, ch)
	}()

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
	err := <-errc
	if err == nil && streamErr != "" {
		err = errors.New(streamErr)
	}
	if err != nil {
		d.metrics.ObserveModel("error")
		return "", fmt.Errorf("model call: %w", err)
	}
	d.metrics.ObserveModel("ok")
	return sb.String(), nil
}

// invoke calls a tool and appends its result to memory as a tool entry,
// error results included.
func (d *Dispatcher) invoke(ts *turnState, name string, args map[string]any) tool.Result {
	res := d.tools.Invoke(ts.ctx, name, args)
	ts.mem.Append(domain.Message{Role: domain.RoleTool, Name: name, Content: res.String()})
	if !res.OK() {
		d.logger.Warn("tool returned an error", "tool", name, "err", res.Error)
	}
	return res
}

func (d *Dispatcher) profile(ts *turnState) (domain.Profile, error) {
	if d.profiles == nil {
		return domain.Profile{}, nil
	}
	p, err := d.profiles.Get(ts.ctx, ts.turn.UserID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}
