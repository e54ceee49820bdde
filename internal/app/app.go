// Package app wires configuration, transport, storage and the broadcast core
// into one runnable bot.
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"remindbot/internal/broadcast"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/magic"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm     *config.Manager
	settings config.Settings
	sup      *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	router  *router.Router
	deliver *deliverer
	magic   *magic.Generator

	reg   *broadcast.Registry
	sched *broadcast.Scheduler

	updates chan kit.Update
}

// deps are the pieces New builds from config; tests supply their own.
type deps struct {
	cfgm     *config.Manager
	settings config.Settings
	logs     *logx.Service
	log      logx.Logger
	adapter  kit.Adapter
	botName  string
	store    storage.Store
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	st, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(st.Logging)

	ad, err := telegram.New(telegram.Config{
		Token:       st.Token,
		PollTimeout: st.PollTimeout,
		SendTimeout: st.SendTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	store, err := storage.Open(st.Storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", st.Storage.Driver))
	}

	return build(deps{
		cfgm:     cfgm,
		settings: st,
		logs:     logSvc,
		log:      log,
		adapter:  ad,
		botName:  ad.Username(),
		store:    store,
	}), nil
}

func build(d deps) *App {
	log := d.log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := eventbus.New()

	var regOpts []broadcast.RegistryOption
	regOpts = append(regOpts, broadcast.WithRegistryLogger(log.With(logx.String("comp", "registry"))))
	if d.store != nil {
		regOpts = append(regOpts, broadcast.WithStore(d.store))
	}
	reg := broadcast.NewRegistry(regOpts...)

	a := &App{
		cfgm:     d.cfgm,
		settings: d.settings,
		log:      log.With(logx.String("comp", "app")),
		logs:     d.logs,
		bus:      bus,
		store:    d.store,
		adapter:  d.adapter,
		deliver:  newDeliverer(d.adapter, d.settings.RatePerSec),
		magic:    magic.New(uint64(time.Now().UnixNano())),
		reg:      reg,
		updates:  make(chan kit.Update, 256),
	}

	a.sched = broadcast.NewScheduler(reg, broadcast.Config{
		DeliveryTimeout: d.settings.DeliveryTimeout,
		Classify:        telegram.FailureReason,
		OnFire:          a.recordFire,
	}, log.With(logx.String("comp", "broadcast")), bus)

	a.router = router.New(log.With(logx.String("comp", "commands")), d.adapter,
		router.WithBotName(d.botName),
		router.WithWorkers(2),
	)
	a.router.SetLogUpdates(d.settings.LogUpdates)
	a.router.SetCommands(a.commands())
	return a
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if n, err := a.reg.Restore(ctx); err != nil {
		a.log.Warn("recipient restore failed; starting empty", logx.Err(err))
	} else if n > 0 {
		a.log.Info("recipients restored", logx.Int("chats", n))
		// restored chats must keep receiving without a fresh /start
		a.sched.EnsureStarted(a.settings.Schedule, a.deliver.Deliver)
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	menu := a.router.Menu()
	a.sup.Go0("telegram.menu.update", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.adapter.SetCommands(mctx, menu); err != nil {
			a.log.Warn("menu update failed", logx.Err(err))
		}
	})

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
		a.sup.Go("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })
	}

	a.log.Info("app started",
		logx.String("schedule", a.settings.Schedule.Describe()),
		logx.Int("chats", a.reg.Size()),
	)
	return nil
}

// Activate subscribes chatID to the daily broadcast and arms the trigger on
// the first activation. It reports whether the chat was newly added.
func (a *App) Activate(chatID int64) bool {
	rc := broadcast.Recipient(strconv.FormatInt(chatID, 10))
	added := a.reg.Add(rc)
	a.log.Info("chat activated for scheduled messages",
		logx.Int64("chat_id", chatID),
		logx.Bool("new", added),
		logx.Int("total", a.reg.Size()),
	)
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeRecipientActivated, Data: rc})
	a.sched.EnsureStarted(a.settings.Schedule, a.deliver.Deliver)
	return added
}

// Deactivate unsubscribes chatID. The trigger stays armed.
func (a *App) Deactivate(chatID int64) bool {
	rc := broadcast.Recipient(strconv.FormatInt(chatID, 10))
	removed := a.reg.Remove(rc)
	if removed {
		a.log.Info("chat deactivated", logx.Int64("chat_id", chatID), logx.Int("total", a.reg.Size()))
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeRecipientRemoved, Data: rc})
	}
	return removed
}

func (a *App) recordFire(ctx context.Context, rep broadcast.FireReport) {
	if a.store == nil {
		return
	}
	pruned := rep.Pruned()
	rec := storage.FireRecord{
		ID:        rep.ID,
		At:        rep.At,
		Attempted: rep.Attempted,
		Delivered: rep.Delivered,
		Failed:    rep.Failed,
		Pruned:    make([]string, 0, len(pruned)),
		TookMS:    rep.Took.Milliseconds(),
	}
	for _, p := range pruned {
		rec.Pruned = append(rec.Pruned, string(p))
	}
	// ctx may already be canceled at shutdown; the record should still land.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := a.store.RecordFire(wctx, rec); err != nil {
		a.log.Warn("fire record failed", logx.String("fire_id", rep.ID), logx.Err(err))
	}
}
