package agent

import (
	"sync"

	"tripbot/internal/domain"
)

// InterruptMarker is appended as a system entry when the user cuts the
// assistant off.
const InterruptMarker = "[用户打断了对话]"

// Memory is the role-tagged conversation log handed to the model. The
// system entry it is created with is never removed.
type Memory struct {
	mu      sync.Mutex
	entries []domain.Message
}

func NewMemory(systemPrompt string) *Memory {
	return &Memory{
		entries: []domain.Message{{Role: domain.RoleSystem, Content: systemPrompt}},
	}
}

func (m *Memory) Append(msgs ...domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, msgs...)
}

// Snapshot returns a copy of the log.
func (m *Memory) Snapshot() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Message, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Since returns a copy of the entries from index i on.
func (m *Memory) Since(i int) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if i >= len(m.entries) {
		return nil
	}
	out := make([]domain.Message, len(m.entries)-i)
	copy(out, m.entries[i:])
	return out
}

// Interrupt records that the user stopped the assistant after hearing
// only heard. The last entry, when it is an assistant entry, is rewritten
// to the heard text plus "..."; a system marker is appended either way.
func (m *Memory) Interrupt(heard string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.entries); n > 0 && m.entries[n-1].Role == domain.RoleAssistant {
		m.entries[n-1].Content = heard + "..."
	}
	m.entries = append(m.entries, domain.Message{Role: domain.RoleSystem, Content: InterruptMarker})
}

// Replace swaps everything after the seeded system entry for msgs.
func (m *Memory) Replace(msgs []domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries[:1:1], msgs...)
}
