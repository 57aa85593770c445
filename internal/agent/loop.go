package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tripbot/internal/domain"
	"tripbot/internal/metrics"
	"tripbot/internal/tool"
)

const defaultConcurrency = 8

// Loop is the agent engine: take messages off the bus, run them against
// their conversation and send the replies back.
type Loop struct {
	dispatcher    *Dispatcher
	sessions      *SessionManager
	tools         *tool.Registry
	profiles      domain.ProfileStore
	history       domain.HistoryStore
	archive       bool
	bus           domain.MessageBus
	displayName   string
	defaultUserID string
	concurrency   int
	logger        *slog.Logger
}

// LoopConfig holds all dependencies and tuning parameters for the agent loop.
type LoopConfig struct {
	Dispatcher    *Dispatcher
	Sessions      *SessionManager
	Tools         *tool.Registry
	Profiles      domain.ProfileStore
	History       domain.HistoryStore // optional: history hydration and archive
	Archive       bool                // append each finished turn to History
	Bus           domain.MessageBus
	DisplayName   string
	DefaultUserID string
	Concurrency   int // max conversations processed in parallel
	Logger        *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		dispatcher:    cfg.Dispatcher,
		sessions:      cfg.Sessions,
		tools:         cfg.Tools,
		profiles:      cfg.Profiles,
		history:       cfg.History,
		archive:       cfg.Archive,
		bus:           cfg.Bus,
		displayName:   cfg.DisplayName,
		defaultUserID: cfg.DefaultUserID,
		concurrency:   cfg.Concurrency,
		logger:        cfg.Logger,
	}
}

// Run consumes inbound messages until ctx ends or the bus closes.
// Conversations proceed in parallel up to the concurrency limit; within
// one conversation messages are handled in arrival order.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("agent loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("agent loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, agent loop stopping")
				return
			}
			sess := l.sessions.Get(msg.Channel, msg.ChatID)
			if sess.enqueue(msg) {
				go l.drain(ctx, sess, sem)
			}
		}
	}
}

func (l *Loop) drain(ctx context.Context, sess *Session, sem chan struct{}) {
	for {
		msg, ok := sess.next()
		if !ok {
			return
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		out, reply := l.process(ctx, sess, msg)
		<-sem
		if reply {
			l.bus.SendOutbound(out)
		}
	}
}

// ProcessDirect handles msg synchronously. The second result is false
// when the message produces no reply (interrupts).
func (l *Loop) ProcessDirect(ctx context.Context, msg domain.InboundMessage) (domain.OutboundMessage, bool) {
	return l.process(ctx, l.sessions.Get(msg.Channel, msg.ChatID), msg)
}

func (l *Loop) process(ctx context.Context, sess *Session, msg domain.InboundMessage) (domain.OutboundMessage, bool) {
	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()

	out := domain.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Name: l.displayName}
	switch msg.Kind {
	case domain.InboundInterrupt:
		sess.Memory.Interrupt(msg.Content)
		l.logger.Info("conversation interrupted", "session", sess.Key)
		return out, false

	case domain.InboundHistory:
		n, err := l.hydrate(ctx, sess, msg.ConfUID, msg.HistoryUID)
		if err != nil {
			l.logger.Warn("history hydration failed", "session", sess.Key, "err", err)
			out.Content = fmt.Sprintf("无法加载历史记录: %s", err)
			out.IsError = true
			return out, true
		}
		out.Content = fmt.Sprintf("已加载 %d 条历史消息。", n)
		return out, true
	}

	if cmd := ParseCommand(msg.Content); cmd != nil && len(msg.Images) == 0 {
		if res := l.HandleCommand(ctx, sess, cmd, msg); res.Handled {
			out.Content = res.Response
			return out, true
		}
	}

	l.logger.Info("processing message",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"content_len", len(msg.Content),
		"images", len(msg.Images),
	)
	before := sess.Memory.Len()
	reply := l.dispatcher.HandleTurn(ctx, sess.Memory, Turn{
		Text:   msg.Content,
		Images: msg.Images,
		UserID: l.userID(msg),
	})
	if reply.Outcome != metrics.OutcomeFailed {
		l.archiveTurn(ctx, sess, sess.Memory.Since(before))
	}
	out.Content = reply.Text
	out.IsError = reply.Outcome == metrics.OutcomeFailed
	return out, true
}

func (l *Loop) userID(msg domain.InboundMessage) string {
	if msg.SenderID != "" {
		return msg.SenderID
	}
	return l.defaultUserID
}

// hydrate replaces the session memory with an archived conversation and
// makes later turns archive under the same identifiers.
func (l *Loop) hydrate(ctx context.Context, sess *Session, confUID, historyUID string) (int, error) {
	if l.history == nil {
		return 0, fmt.Errorf("history store not configured")
	}
	if historyUID == "" {
		return 0, fmt.Errorf("history_uid is required")
	}
	msgs, err := l.history.LoadHistory(ctx, confUID, historyUID)
	if err != nil {
		return 0, err
	}
	sess.Memory.Replace(msgs)
	sess.setHistoryIDs(confUID, historyUID)
	l.logger.Info("history loaded", "session", sess.Key, "conf_uid", confUID, "history_uid", historyUID, "messages", len(msgs))
	return len(msgs), nil
}

func (l *Loop) archiveTurn(ctx context.Context, sess *Session, msgs []domain.Message) {
	if !l.archive || l.history == nil || len(msgs) == 0 {
		return
	}
	confUID, historyUID := sess.HistoryIDs()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.history.AppendHistory(ctx, confUID, historyUID, msgs); err != nil {
		l.logger.Warn("failed to archive turn", "session", sess.Key, "err", err)
	}
}
