package domain

import "context"

// Channel is a user-facing front-end (CLI, WebSocket, Telegram).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, msg OutboundMessage) error
}
