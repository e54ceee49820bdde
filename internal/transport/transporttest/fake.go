// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	kit "remindbot/internal/transport"
)

type Sent struct {
	To   kit.ChatTarget
	Text string
	Opt  kit.SendOptions
}

// Fake records sends and menu updates. SendErr, when set, decides the
// error returned for each send.
type Fake struct {
	SendErr func(to kit.ChatTarget, text string) error

	mu      sync.Mutex
	sent    []Sent
	menus   [][]kit.BotCommand
	out     chan<- kit.Update
	started bool
	nextID  int
}

var _ kit.Adapter = (*Fake)(nil)

func (f *Fake) Start(ctx context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	f.out = out
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.started = false
	f.out = nil
	f.mu.Unlock()
	return nil
}

func (f *Fake) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Push delivers an update to the channel passed to Start.
func (f *Fake) Push(up kit.Update) bool {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	if out == nil {
		return false
	}
	out <- up
	return true
}

// PushText is Push for a text message from chat.
func (f *Fake) PushText(chatID int64, text string) bool {
	return f.Push(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID:   chatID,
		ChatType: "private",
		FromID:   chatID,
		Text:     text,
	}})
}

func (f *Fake) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	if f.SendErr != nil {
		if err := f.SendErr(to, text); err != nil {
			return kit.MessageRef{}, err
		}
	}
	s := Sent{To: to, Text: text}
	if opt != nil {
		s.Opt = *opt
	}
	f.mu.Lock()
	f.sent = append(f.sent, s)
	f.nextID++
	id := f.nextID
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: id}, nil
}

func (f *Fake) SetCommands(ctx context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menus = append(f.menus, append([]kit.BotCommand(nil), cmds...))
	f.mu.Unlock()
	return nil
}

func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// SentTo returns the texts sent to chatID, in order.
func (f *Fake) SentTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.To.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

func (f *Fake) Menus() [][]kit.BotCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]kit.BotCommand(nil), f.menus...)
}
