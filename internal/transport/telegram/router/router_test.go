package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "remindbot/internal/transport"
	"remindbot/internal/transport/transporttest"
	logx "remindbot/pkg/logx"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text, bot string
		name      string
		args      []string
		ok        bool
	}{
		{"/start", "", "start", []string{}, true},
		{"  /Start  ", "", "start", []string{}, true},
		{"/start@remind_bot", "remind_bot", "start", []string{}, true},
		{"/start@Remind_Bot", "@remind_bot", "start", []string{}, true},
		{"/start@other_bot", "remind_bot", "", nil, false},
		{"/start@other_bot", "", "start", []string{}, true},
		{"/magic now please", "", "magic", []string{"now", "please"}, true},
		{"hello", "", "", nil, false},
		{"/", "", "", nil, false},
		{"/@remind_bot", "remind_bot", "", nil, false},
	}
	for _, tt := range tests {
		name, args, ok := ParseCommand(tt.text, tt.bot)
		if ok != tt.ok || name != tt.name {
			t.Fatalf("ParseCommand(%q,%q)=(%q,%v,%v)", tt.text, tt.bot, name, args, ok)
		}
		if ok {
			assert.Equal(t, tt.args, args, tt.text)
		}
	}
}

func TestChainOrder(t *testing.T) {
	t.Parallel()
	var order []string
	mw := func(tag string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) error {
				order = append(order, tag)
				return next(ctx, req)
			}
		}
	}
	h := Chain(func(ctx context.Context, req *Request) error {
		order = append(order, "h")
		return nil
	}, mw("a"), mw("b"))
	require.NoError(t, h(context.Background(), &Request{}))
	assert.Equal(t, []string{"a", "b", "h"}, order)
}

func TestMWPanicRecover(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, req *Request) error { panic("kaboom") }, MWPanicRecover(logx.Nop()))
	err := h(context.Background(), &Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestMWTimeout(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, req *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}, MWTimeout(10*time.Millisecond))
	assert.ErrorIs(t, h(context.Background(), &Request{}), context.DeadlineExceeded)
}

func TestSetCommandsMenu(t *testing.T) {
	t.Parallel()
	r := New(logx.Nop(), &transporttest.Fake{})
	noop := func(context.Context, *Request) error { return nil }
	r.SetCommands([]Command{
		{Name: "start", Description: "activate daily messages", Handle: noop},
		{Name: "Magic", Aliases: []string{"m"}, Description: "do magic", Handle: noop},
		{Name: "secret", Handle: noop},
		{Name: "nohandler", Description: "x"},
	})
	assert.Equal(t, []kit.BotCommand{
		{Command: "start", Description: "activate daily messages"},
		{Command: "magic", Description: "do magic"},
	}, r.Menu())
	assert.Equal(t, []string{"m", "magic", "secret", "start"}, r.Names())
}

func TestDispatchLoopRoutes(t *testing.T) {
	t.Parallel()
	fake := &transporttest.Fake{}
	var buf syncBuffer
	r := New(logx.NewJSON(&buf, "debug"), fake, WithBotName("remind_bot"), WithWorkers(1))

	var mu sync.Mutex
	var got []string
	r.SetCommands([]Command{
		{Name: "echo", Aliases: []string{"e"}, Handle: func(ctx context.Context, req *Request) error {
			mu.Lock()
			got = append(got, req.Command+":"+strings.Join(req.Args, ","))
			mu.Unlock()
			return req.Reply(ctx, "ok", nil)
		}},
		{Name: "fail", Handle: func(ctx context.Context, req *Request) error { return errors.New("bad") }},
		{Name: "boom", Handle: func(ctx context.Context, req *Request) error { panic("boom") }},
	})

	updates := make(chan kit.Update, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()

	send := func(text string) {
		updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 5, Text: text}}
	}
	send("/fail")
	send("/boom")
	send("/unknown")
	send("/echo@other_bot x")
	send("not a command")
	send("/e@remind_bot a b")

	require.Eventually(t, func() bool { return len(fake.SentTo(5)) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	assert.Equal(t, []string{"echo:a,b"}, got)
	mu.Unlock()
	assert.Equal(t, 2, strings.Count(buf.String(), "ERROR on handling update"))
}

func TestDispatchLoopStopsOnClosedChannel(t *testing.T) {
	t.Parallel()
	r := New(logx.Nop(), &transporttest.Fake{})
	updates := make(chan kit.Update)
	close(updates)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.DispatchLoop(ctx, updates))
}

type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
