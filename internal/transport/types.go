// Package transport defines the chat-platform boundary used by the router
// and the broadcast deliverer.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ChatType     string // "private", "group", "supergroup", "channel"
	ThreadID     int    // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

func (m *Message) IsGroup() bool {
	return m != nil && (m.ChatType == "group" || m.ChatType == "supergroup")
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// BotCommand is one entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	// SetCommands publishes the command menu. Implementations may skip
	// the call when cmds did not change.
	SetCommands(ctx context.Context, cmds []BotCommand) error
}
