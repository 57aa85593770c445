package agent

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tripbot/internal/domain"
	"tripbot/internal/metrics"
)

// Session is one conversation: a channel plus a chat id. Its messages are
// handled one at a time in arrival order.
type Session struct {
	Key    string
	Memory *Memory

	turnMu     sync.Mutex
	mu         sync.Mutex
	confUID    string
	historyUID string
	queue      []domain.InboundMessage
	draining   bool
}

// enqueue adds msg to the session's backlog and reports whether the
// caller must start draining it.
func (s *Session) enqueue(msg domain.InboundMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, msg)
	if s.draining {
		return false
	}
	s.draining = true
	return true
}

// next pops the oldest queued message. When the backlog is empty it
// returns false and the drainer stops.
func (s *Session) next() (domain.InboundMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		s.draining = false
		return domain.InboundMessage{}, false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

// HistoryIDs returns the identifiers the conversation is archived under.
func (s *Session) HistoryIDs() (confUID, historyUID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confUID, s.historyUID
}

func (s *Session) setHistoryIDs(confUID, historyUID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confUID, s.historyUID = confUID, historyUID
}

// SessionManager keeps one Session per conversation for the life of the
// process.
type SessionManager struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	systemPrompt string
	confUID      string
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewSessionManager(systemPrompt, confUID string, m *metrics.Metrics, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions:     make(map[string]*Session),
		systemPrompt: systemPrompt,
		confUID:      confUID,
		metrics:      m,
		logger:       logger,
	}
}

func sessionKey(channel, chatID string) string { return channel + ":" + chatID }

// Get returns the session for channel and chatID, creating it with a
// fresh memory and history id on first use.
func (sm *SessionManager) Get(channel, chatID string) *Session {
	key := sessionKey(channel, chatID)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[key]; ok {
		return s
	}
	s := &Session{
		Key:        key,
		Memory:     NewMemory(sm.systemPrompt),
		confUID:    sm.confUID,
		historyUID: uuid.NewString(),
	}
	sm.sessions[key] = s
	sm.metrics.SetActiveSessions(len(sm.sessions))
	sm.logger.Info("created new conversation", "session", key, "history_uid", s.historyUID)
	return s
}

// Reset starts sess over: the memory keeps only its system entry and later
// turns archive under a new history id. The session stays registered so
// messages already queued behind the reset run against the cleared memory.
// Callers must hold sess.turnMu.
func (sm *SessionManager) Reset(sess *Session) {
	sess.Memory.Replace(nil)
	sess.setHistoryIDs(sm.confUID, uuid.NewString())
	_, historyUID := sess.HistoryIDs()
	sm.logger.Info("session cleared", "session", sess.Key, "history_uid", historyUID)
}

func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}
