package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// DeliveryFunc sends text to one recipient. It must return an error for any
// transport failure instead of panicking.
type DeliveryFunc func(ctx context.Context, to Recipient, text string) error

// Config tunes the Scheduler. The zero value is valid.
type Config struct {
	// DeliveryTimeout bounds each delivery call. 0 leaves it to the transport.
	DeliveryTimeout time.Duration

	// Classify maps a delivery error to a short reason for logs.
	Classify func(err error) string

	// OnFire is called (synchronously, after the batch) with each report.
	OnFire func(ctx context.Context, rep FireReport)
}

// Scheduler owns the single recurring broadcast trigger.
type Scheduler struct {
	reg *Registry
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	// runCtx is passed to deliveries; canceled by Shutdown.
	runCtx    context.Context
	runCancel context.CancelFunc

	mu      sync.Mutex
	started bool
	c       *cron.Cron
	entry   cron.EntryID
	sched   Schedule
	deliver DeliveryFunc

	arms atomic.Uint64

	lastMu sync.RWMutex
	last   *FireReport
}

func NewScheduler(reg *Registry, cfg Config, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	if cfg.Classify == nil {
		cfg.Classify = func(error) string { return "error" }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{reg: reg, cfg: cfg, log: log, bus: bus, runCtx: ctx, runCancel: cancel}
}

// EnsureStarted arms the trigger on the first call and is a no-op afterwards.
// Concurrent callers race on one mutex: the first wins, the rest see Started.
func (s *Scheduler) EnsureStarted(sched Schedule, deliver DeliveryFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	if sched.IsZero() || deliver == nil {
		s.log.Error("broadcast not armed: schedule and delivery function are required")
		return
	}
	cl := logx.CronLogger(s.log.With(logx.String("comp", "cron")))
	s.c = cron.New(
		cron.WithLocation(sched.Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.sched = sched
	s.deliver = deliver
	s.entry = s.c.Schedule(sched.sched, cron.FuncJob(func() { s.fire(s.runCtx) }))
	s.c.Start()
	s.started = true
	s.arms.Add(1)

	next := sched.Next(time.Now())
	s.log.Info("daily broadcast enabled",
		logx.String("spec", sched.Spec()),
		logx.String("tz", sched.Location().String()),
		logx.Time("next", next),
	)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastStarted, Data: sched.Describe()})
}

func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Arms counts how many triggers were ever armed. It never exceeds 1.
func (s *Scheduler) Arms() uint64 { return s.arms.Load() }

// fire runs one broadcast pass over a registry snapshot.
func (s *Scheduler) fire(ctx context.Context) FireReport {
	s.mu.Lock()
	sched, deliver := s.sched, s.deliver
	s.mu.Unlock()

	start := time.Now()
	recipients := s.reg.Snapshot()
	rep := FireReport{
		ID:      uuid.NewString(),
		At:      start.In(sched.Location()),
		Results: make([]DeliveryResult, 0, len(recipients)),
	}
	log := s.log.With(logx.String("fire_id", rep.ID))
	log.Info("sending scheduled message", logx.Int("chats", len(recipients)))

	for i, rc := range recipients {
		if ctx.Err() != nil {
			// Shutdown canceled the pass; nobody left here has failed a delivery.
			rep.Skipped += len(recipients) - i
			for _, left := range recipients[i:] {
				rep.Results = append(rep.Results, DeliveryResult{Recipient: left, Skipped: true})
			}
			log.Warn("broadcast interrupted by shutdown; remaining chats not attempted",
				logx.Int("not_attempted", len(recipients)-i))
			break
		}
		res := DeliveryResult{Recipient: rc}
		rep.Attempted++
		err := s.deliverOne(ctx, deliver, rc, sched.Message())
		switch {
		case err == nil:
			res.OK = true
			rep.Delivered++
			log.Debug("scheduled message sent", logx.String("recipient", string(rc)))
		case ctx.Err() != nil:
			// Our own cancellation, not a verdict on the recipient.
			res.Skipped = true
			res.Err = err.Error()
			rep.Skipped++
			log.Warn("scheduled message interrupted by shutdown; recipient kept",
				logx.String("recipient", string(rc)), logx.Err(err))
		default:
			res.Err = err.Error()
			res.Reason = s.cfg.Classify(err)
			rep.Failed++
			s.reg.Remove(rc)
			log.Warn("scheduled message failed; recipient removed",
				logx.String("recipient", string(rc)),
				logx.String("reason", res.Reason),
				logx.Err(err),
			)
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeRecipientRemoved, Data: rc})
		}
		rep.Results = append(rep.Results, res)
	}
	rep.Took = time.Since(start)

	log.Info("scheduled broadcast done",
		logx.Int("attempted", rep.Attempted),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
		logx.Int("skipped", rep.Skipped),
		logx.Int("remaining", s.reg.Size()),
		logx.Duration("took", rep.Took),
	)

	s.lastMu.Lock()
	cp := rep
	s.last = &cp
	s.lastMu.Unlock()

	if s.cfg.OnFire != nil {
		s.cfg.OnFire(ctx, rep)
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastFired, Data: rep})
	return rep
}

// deliverOne turns panics into errors so one bad recipient cannot stop the batch.
func (s *Scheduler) deliverOne(ctx context.Context, deliver DeliveryFunc, rc Recipient, text string) (err error) {
	if s.cfg.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in delivery: %v", r)
		}
	}()
	return deliver(ctx, rc, text)
}

// Status returns a point-in-time view for /status and logs.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{
		Started: s.started,
		Arms:    s.arms.Load(),
	}
	if s.started {
		st.Spec = s.sched.Spec()
		st.Timezone = s.sched.Location().String()
		if s.c != nil {
			e := s.c.Entry(s.entry)
			st.Next = e.Next
			st.Prev = e.Prev
		}
	}
	s.mu.Unlock()

	st.Recipients = s.reg.Size()
	s.lastMu.RLock()
	if s.last != nil {
		cp := *s.last
		st.Last = &cp
	}
	s.lastMu.RUnlock()
	return st
}

// Shutdown stops the trigger at process exit and waits for an in-flight
// firing. If ctx expires first, in-flight deliveries are canceled and the
// rest of the pass is skipped; canceled recipients are never pruned.
// The scheduler stays Started; EnsureStarted keeps being a no-op.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()
	defer s.runCancel()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("broadcast shutdown deadline reached; canceling deliveries", logx.Err(ctx.Err()))
	}
}
