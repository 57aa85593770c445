package domain

import "time"

// Memory entry roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one role-tagged entry of a conversation. Name is set on tool
// entries and names the tool whose serialized result is in Content.
type Message struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// InboundKind distinguishes what a front-end is asking the agent to do.
type InboundKind string

const (
	InboundText      InboundKind = "text"
	InboundInterrupt InboundKind = "interrupt"
	InboundHistory   InboundKind = "history"
)

type InboundMessage struct {
	Kind       InboundKind
	Channel    string
	ChatID     string
	SenderID   string
	Content    string   // utterance, or the heard transcript for interrupts
	Images     []string // base64, data URL or http(s) URL
	ConfUID    string   // history hydration only
	HistoryUID string   // history hydration only
	Timestamp  time.Time
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Name    string // display name of the speaker
	Content string
	IsError bool
}
