package broadcast

import (
	"context"
	"sort"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// Recipient is an opaque destination identifier (a Telegram chat ID in base 10).
type Recipient string

// RecipientStore is an optional durable backing for the Registry.
// storage.Store satisfies it.
type RecipientStore interface {
	LoadRecipients(ctx context.Context) ([]string, error)
	PutRecipient(ctx context.Context, id string) error
	DeleteRecipient(ctx context.Context, id string) error
}

const storeTimeout = 2 * time.Second

// Registry is the set of recipients that receive the daily broadcast.
//
// All methods are safe for concurrent use. Mutations are serialized by one
// mutex, so a Snapshot always sees a whole number of Add/Remove calls.
// Store writes are queued in mutation order and applied by one background
// writer; mu never waits on the store.
type Registry struct {
	mu  sync.RWMutex
	set map[Recipient]struct{}

	store RecipientStore
	log   logx.Logger

	qmu     sync.Mutex
	queue   []storeOp
	drained chan struct{} // non-nil while the writer runs
}

type storeOp struct {
	add bool
	rc  Recipient
}

type RegistryOption func(*Registry)

// WithStore writes every membership change through to st.
// Store errors are logged; the in-memory set stays authoritative.
func WithStore(st RecipientStore) RegistryOption {
	return func(r *Registry) { r.store = st }
}

func WithRegistryLogger(log logx.Logger) RegistryOption {
	return func(r *Registry) { r.log = log }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{set: map[Recipient]struct{}{}}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r
}

// Add inserts rc if absent. It reports whether rc was newly inserted.
func (r *Registry) Add(rc Recipient) bool {
	if rc == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[rc]; ok {
		return false
	}
	r.set[rc] = struct{}{}
	r.enqueue(storeOp{add: true, rc: rc})
	return true
}

// Remove deletes rc if present. It reports whether rc was a member.
func (r *Registry) Remove(rc Recipient) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[rc]; !ok {
		return false
	}
	delete(r.set, rc)
	r.enqueue(storeOp{rc: rc})
	return true
}

func (r *Registry) Contains(rc Recipient) bool {
	r.mu.RLock()
	_, ok := r.set[rc]
	r.mu.RUnlock()
	return ok
}

// Snapshot returns a sorted point-in-time copy of the members.
func (r *Registry) Snapshot() []Recipient {
	r.mu.RLock()
	out := make([]Recipient, 0, len(r.set))
	for rc := range r.set {
		out = append(out, rc)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Size() int {
	r.mu.RLock()
	n := len(r.set)
	r.mu.RUnlock()
	return n
}

// Restore loads members from the attached store. It is a no-op without one.
// Restored members are merged into the current set without writing back.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	ids, err := r.store.LoadRecipients(ctx)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		rc := Recipient(id)
		if rc == "" {
			continue
		}
		if _, ok := r.set[rc]; !ok {
			r.set[rc] = struct{}{}
			n++
		}
	}
	return n, nil
}

// enqueue is called with mu held, which fixes the order of store writes.
func (r *Registry) enqueue(op storeOp) {
	if r.store == nil {
		return
	}
	r.qmu.Lock()
	r.queue = append(r.queue, op)
	if r.drained == nil {
		r.drained = make(chan struct{})
		go r.writeLoop(r.drained)
	}
	r.qmu.Unlock()
}

func (r *Registry) writeLoop(done chan struct{}) {
	for {
		r.qmu.Lock()
		if len(r.queue) == 0 {
			r.drained = nil
			r.qmu.Unlock()
			close(done)
			return
		}
		batch := r.queue
		r.queue = nil
		r.qmu.Unlock()

		for _, op := range batch {
			r.writeOne(op)
		}
	}
}

func (r *Registry) writeOne(op storeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if op.add {
		if err := r.store.PutRecipient(ctx, string(op.rc)); err != nil {
			r.log.Warn("recipient store put failed", logx.String("recipient", string(op.rc)), logx.Err(err))
		}
		return
	}
	if err := r.store.DeleteRecipient(ctx, string(op.rc)); err != nil {
		r.log.Warn("recipient store delete failed", logx.String("recipient", string(op.rc)), logx.Err(err))
	}
}

// Flush waits until every queued store write has been applied, or ctx ends.
func (r *Registry) Flush(ctx context.Context) error {
	r.qmu.Lock()
	done := r.drained
	r.qmu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
