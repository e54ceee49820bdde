// Package router turns incoming chat updates into command handler calls.
package router

import (
	"context"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Command struct {
	Name        string   // without the leading slash, e.g. "start"
	Aliases     []string // extra names, not shown in the menu
	Description string   // menu text; empty hides the command from the menu
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

type Option func(*Router)

// WithWorkers sets the number of handler goroutines (default 2).
func WithWorkers(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithQueue sets the handler job queue capacity (default 256).
func WithQueue(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.queueCap = n
		}
	}
}

// WithBotName makes the router ignore "/cmd@other" addressed to other bots.
func WithBotName(name string) Option {
	return func(r *Router) { r.botName = strings.TrimPrefix(strings.TrimSpace(name), "@") }
}

// WithDefaultTimeout bounds handlers that have no Timeout of their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Router) { r.defTimeout = d }
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter

	workers    int
	queueCap   int
	botName    string
	defTimeout time.Duration

	mu        sync.RWMutex
	cmds      map[string]Command // name and aliases -> command
	menu      []kit.BotCommand
	logUpdate bool

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:        log,
		adapter:    adapter,
		workers:    2,
		queueCap:   256,
		defTimeout: 30 * time.Second,
		cmds:       map[string]Command{},
	}
	for _, o := range opts {
		o(r)
	}
	r.jobs = make(chan func(), r.queueCap)
	return r
}

// SetCommands replaces the command table. Menu entries keep registration order.
func (r *Router) SetCommands(cmds []Command) {
	table := map[string]Command{}
	menu := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		table[name] = c
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" {
				continue
			}
			if _, taken := table[a]; !taken {
				table[a] = c
			}
		}
		if c.Description != "" {
			menu = append(menu, kit.BotCommand{Command: name, Description: c.Description})
		}
	}
	r.mu.Lock()
	r.cmds = table
	r.menu = menu
	r.mu.Unlock()
}

// SetLogUpdates toggles per-update DEBUG logging. Safe during hot reload.
func (r *Router) SetLogUpdates(on bool) {
	r.mu.Lock()
	r.logUpdate = on
	r.mu.Unlock()
}

// Menu returns the command menu in registration order.
func (r *Router) Menu() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]kit.BotCommand(nil), r.menu...)
}

// Names lists every routable name, aliases included, sorted.
func (r *Router) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.cmds))
	for n := range r.cmds {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// DispatchLoop routes updates until ctx is done or updates is closed.
// Handlers run on a bounded worker pool so a slow handler never stalls
// the poller.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))))
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					r.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	if job != nil {
		job()
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message

	r.mu.RLock()
	logUpdate := r.logUpdate
	r.mu.RUnlock()
	if logUpdate {
		r.log.Debug("update",
			logx.Int64("chat_id", msg.ChatID),
			logx.String("chat_type", msg.ChatType),
			logx.Int64("from_id", msg.FromID),
			logx.String("text", msg.Text),
		)
	}

	name, args, ok := ParseCommand(msg.Text, r.botName)
	if !ok {
		return
	}
	r.mu.RLock()
	cmd, found := r.cmds[name]
	r.mu.RUnlock()
	if !found {
		r.log.Debug("unknown command ignored", logx.String("cmd", name), logx.Int64("chat_id", msg.ChatID))
		return
	}

	req := r.newRequest(up, cmd, args)
	h := r.build(cmd)
	queued := r.tryEnqueue(func() {
		if err := h(ctx, req); err != nil {
			req.Logger.Error("ERROR on handling update", logx.Err(err))
		}
	})
	if !queued {
		r.log.Warn("command dropped (queue full)", logx.String("cmd", cmd.Name), logx.Int64("chat_id", msg.ChatID))
	}
}

func (r *Router) newRequest(up kit.Update, cmd Command, args []string) *Request {
	msg := up.Message
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
}

func (r *Router) build(cmd Command) HandlerFunc {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.defTimeout
	}
	return Chain(cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
}

func (r *Router) tryEnqueue(fn func()) bool {
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}
