package broadcast

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// recorder is a DeliveryFunc that fails for a fixed set of recipients.
type recorder struct {
	mu    sync.Mutex
	fail  map[Recipient]bool
	calls []Recipient
	texts []string
}

func newRecorder(fail ...Recipient) *recorder {
	r := &recorder{fail: map[Recipient]bool{}}
	for _, f := range fail {
		r.fail[f] = true
	}
	return r
}

func (r *recorder) deliver(_ context.Context, to Recipient, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, to)
	r.texts = append(r.texts, text)
	if r.fail[to] {
		return errors.New("telegram: bot was blocked by the user")
	}
	return nil
}

func (r *recorder) called() []Recipient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recipient(nil), r.calls...)
}

func dailySchedule(t *testing.T) Schedule {
	t.Helper()
	s, err := NewSchedule(DefaultSpec, DefaultTimezone, DefaultMessage)
	require.NoError(t, err)
	return s
}

func newTestScheduler(t *testing.T, reg *Registry, cfg Config, log logx.Logger) *Scheduler {
	t.Helper()
	s := NewScheduler(reg, cfg, log, eventbus.New())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func TestEnsureStartedArmsOnce(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	s := newTestScheduler(t, reg, Config{}, logx.Nop())
	rec := newRecorder()

	require.False(t, s.Started())
	for i := 0; i < 5; i++ {
		s.EnsureStarted(dailySchedule(t), rec.deliver)
	}
	assert.True(t, s.Started())
	assert.Equal(t, uint64(1), s.Arms())
}

func TestEnsureStartedConcurrent(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	s := newTestScheduler(t, reg, Config{}, logx.Nop())
	rec := newRecorder()
	sched := dailySchedule(t)

	var wg sync.WaitGroup
	gate := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			s.EnsureStarted(sched, rec.deliver)
		}()
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, uint64(1), s.Arms())
	assert.True(t, s.Started())
}

func TestEnsureStartedRequiresDeliveryAndSchedule(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, NewRegistry(), Config{}, logx.Nop())
	s.EnsureStarted(Schedule{}, newRecorder().deliver)
	s.EnsureStarted(dailySchedule(t), nil)
	assert.False(t, s.Started())
	assert.Zero(t, s.Arms())
}

func TestFirePrunesFailedRecipient(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	for _, rc := range []Recipient{"A", "B", "C"} {
		reg.Add(rc)
	}
	rec := newRecorder("B")
	s := newTestScheduler(t, reg, Config{}, logx.Nop())
	s.EnsureStarted(dailySchedule(t), rec.deliver)

	rep := s.fire(context.Background())

	assert.ElementsMatch(t, []Recipient{"A", "B", "C"}, rec.called())
	assert.Equal(t, []Recipient{"A", "C"}, reg.Snapshot())
	assert.Equal(t, 3, rep.Attempted)
	assert.Equal(t, 2, rep.Delivered)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []Recipient{"B"}, rep.Pruned())
	assert.NotEmpty(t, rep.ID)
	for _, txt := range rec.texts {
		assert.Equal(t, DefaultMessage, txt)
	}
}

func TestFireAllFailEmptiesRegistry(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	log := logx.NewJSON(&buf, "debug")

	reg := NewRegistry()
	reg.Add("A")
	reg.Add("B")
	rec := newRecorder("A", "B")
	s := newTestScheduler(t, reg, Config{Classify: func(error) string { return "blocked" }}, log)
	s.EnsureStarted(dailySchedule(t), rec.deliver)

	rep := s.fire(context.Background())

	assert.Zero(t, reg.Size())
	assert.Equal(t, 2, rep.Failed)
	for _, res := range rep.Results {
		assert.False(t, res.OK)
		assert.Equal(t, "blocked", res.Reason)
	}
	assert.Equal(t, 2, strings.Count(buf.String(), "recipient removed"), "one failure record per recipient")
}

func TestFireNextPassSkipsPruned(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Add("A")
	reg.Add("B")
	rec := newRecorder("B")
	s := newTestScheduler(t, reg, Config{}, logx.Nop())
	s.EnsureStarted(dailySchedule(t), rec.deliver)

	s.fire(context.Background())
	s.fire(context.Background())

	assert.Equal(t, []Recipient{"A", "B", "A"}, rec.called())

	// Re-activation brings B back for the next firing.
	reg.Add("B")
	s.EnsureStarted(dailySchedule(t), rec.deliver)
	rep := s.fire(context.Background())
	assert.Equal(t, 2, rep.Attempted)
	assert.Equal(t, uint64(1), s.Arms())
}

func TestFireRecoversDeliveryPanic(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Add("A")
	reg.Add("B")
	var got []Recipient
	deliver := func(_ context.Context, to Recipient, _ string) error {
		if to == "A" {
			panic("boom")
		}
		got = append(got, to)
		return nil
	}
	s := newTestScheduler(t, reg, Config{}, logx.Nop())
	s.EnsureStarted(dailySchedule(t), deliver)

	rep := s.fire(context.Background())
	assert.Equal(t, []Recipient{"B"}, got)
	assert.Equal(t, []Recipient{"B"}, reg.Snapshot())
	assert.Contains(t, rep.Results[0].Err, "panic")
}

func TestFireDeliveryTimeout(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Add("slow")
	reg.Add("fast")
	deliver := func(ctx context.Context, to Recipient, _ string) error {
		if to == "slow" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}
	s := newTestScheduler(t, reg, Config{DeliveryTimeout: 20 * time.Millisecond}, logx.Nop())
	s.EnsureStarted(dailySchedule(t), deliver)

	rep := s.fire(context.Background())
	assert.Equal(t, 1, rep.Delivered)
	assert.Equal(t, []Recipient{"fast"}, reg.Snapshot())
}

func TestFireEmptyRegistry(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	s := newTestScheduler(t, NewRegistry(), Config{}, logx.Nop())
	s.EnsureStarted(dailySchedule(t), rec.deliver)
	rep := s.fire(context.Background())
	assert.Zero(t, rep.Attempted)
	assert.Empty(t, rec.called())
}

func TestFireHookAndStatus(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Add("A")
	var hooked []FireReport
	cfg := Config{OnFire: func(_ context.Context, rep FireReport) { hooked = append(hooked, rep) }}
	s := newTestScheduler(t, reg, cfg, logx.Nop())

	st := s.Status()
	assert.False(t, st.Started)
	assert.Nil(t, st.Last)

	s.EnsureStarted(dailySchedule(t), newRecorder().deliver)
	rep := s.fire(context.Background())

	require.Len(t, hooked, 1)
	assert.Equal(t, rep.ID, hooked[0].ID)

	st = s.Status()
	assert.True(t, st.Started)
	assert.Equal(t, DefaultSpec, st.Spec)
	assert.Equal(t, DefaultTimezone, st.Timezone)
	assert.Equal(t, 1, st.Recipients)
	assert.False(t, st.Next.IsZero())
	require.NotNil(t, st.Last)
	assert.Equal(t, rep.ID, st.Last.ID)
}

func TestFirePublishesEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	reg := NewRegistry()
	reg.Add("A")
	s := NewScheduler(reg, Config{}, logx.Nop(), bus)
	defer s.Shutdown(context.Background())
	s.EnsureStarted(dailySchedule(t), newRecorder("A").deliver)
	s.fire(context.Background())

	var types []string
	timeout := time.After(time.Second)
	for len(types) < 3 {
		select {
		case e := <-events:
			types = append(types, e.Type)
		case <-timeout:
			t.Fatalf("got events %v", types)
		}
	}
	assert.Equal(t, []string{
		eventbus.TypeBroadcastStarted,
		eventbus.TypeRecipientRemoved,
		eventbus.TypeBroadcastFired,
	}, types)
}

// The trigger itself fires through cron; a per-second spec keeps this quick.
func TestTriggerFiresOnSchedule(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Add("A")
	rec := newRecorder()
	sched, err := NewSchedule("* * * * * *", "UTC", "ping")
	require.NoError(t, err)

	s := newTestScheduler(t, reg, Config{}, logx.Nop())
	s.EnsureStarted(sched, rec.deliver)

	require.Eventually(t, func() bool { return len(rec.called()) > 0 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, Recipient("A"), rec.called()[0])
}

func TestActivationScenario(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	s := newTestScheduler(t, reg, Config{}, logx.Nop())
	rec := newRecorder()
	activate := func(rc Recipient) {
		reg.Add(rc)
		s.EnsureStarted(dailySchedule(t), rec.deliver)
	}

	activate("chat1")
	assert.Equal(t, []Recipient{"chat1"}, reg.Snapshot())
	assert.True(t, s.Started())

	activate("chat1")
	assert.Equal(t, 1, reg.Size())
	assert.True(t, s.Started())
	assert.Equal(t, uint64(1), s.Arms())
}

func TestShutdownKeepsStarted(t *testing.T) {
	t.Parallel()
	s := NewScheduler(NewRegistry(), Config{}, logx.Nop(), nil)
	s.Shutdown(context.Background()) // not started: no-op
	s.EnsureStarted(dailySchedule(t), newRecorder().deliver)
	s.Shutdown(context.Background())
	s.EnsureStarted(dailySchedule(t), newRecorder().deliver)
	assert.True(t, s.Started())
	assert.Equal(t, uint64(1), s.Arms())
}

func TestShutdownDuringFireKeepsRecipients(t *testing.T) {
	t.Parallel()
	st := newMemStore("1", "2", "3", "4")
	reg := NewRegistry(WithStore(st))
	n, err := reg.Restore(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, n)

	inFlight := make(chan struct{}, 4)
	deliver := func(ctx context.Context, _ Recipient, _ string) error {
		inFlight <- struct{}{}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return nil
		}
	}
	reports := make(chan FireReport, 1)
	cfg := Config{OnFire: func(_ context.Context, rep FireReport) { reports <- rep }}
	s := NewScheduler(reg, cfg, logx.Nop(), nil)

	sched, err := NewSchedule("* * * * * *", "UTC", "ping")
	require.NoError(t, err)
	s.EnsureStarted(sched, deliver)

	select {
	case <-inFlight:
	case <-time.After(3 * time.Second):
		t.Fatalf("no firing started")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Shutdown(ctx)

	var rep FireReport
	select {
	case rep = <-reports:
	case <-time.After(time.Second):
		t.Fatalf("interrupted firing did not finish")
	}
	assert.Zero(t, rep.Failed)
	assert.Equal(t, 4, rep.Skipped)
	assert.Equal(t, 1, rep.Attempted)
	assert.Empty(t, rep.Pruned())

	assert.Equal(t, []Recipient{"1", "2", "3", "4"}, reg.Snapshot())
	require.NoError(t, reg.Flush(context.Background()))
	assert.Equal(t, []string{"1", "2", "3", "4"}, st.ids())
	assert.Empty(t, st.history(), "no store deletes")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
