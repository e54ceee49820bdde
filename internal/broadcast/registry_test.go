package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	members map[string]bool
	ops     []string
	failPut bool
	gate    chan struct{} // when set, writes wait for it to close
}

func newMemStore(ids ...string) *memStore {
	m := &memStore{members: map[string]bool{}}
	for _, id := range ids {
		m.members[id] = true
	}
	return m
}

func (m *memStore) LoadRecipients(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.members))
	for id := range m.members {
		out = append(out, id)
	}
	return out, nil
}

func (m *memStore) PutRecipient(_ context.Context, id string) error {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "put:"+id)
	if m.failPut {
		return errors.New("disk full")
	}
	m.members[id] = true
	return nil
}

func (m *memStore) DeleteRecipient(_ context.Context, id string) error {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "del:"+id)
	delete(m.members, id)
	return nil
}

func (m *memStore) wait() {
	if m.gate != nil {
		<-m.gate
	}
}

func (m *memStore) history() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

func (m *memStore) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.members))
	for id := range m.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func TestRegistrySizeCountsDistinct(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		adds []Recipient
		want int
	}{
		{name: "empty", adds: nil, want: 0},
		{name: "single", adds: []Recipient{"1"}, want: 1},
		{name: "repeats", adds: []Recipient{"1", "2", "1", "3", "2", "1"}, want: 3},
		{name: "same", adds: []Recipient{"7", "7", "7"}, want: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRegistry()
			for _, rc := range tt.adds {
				r.Add(rc)
			}
			assert.Equal(t, tt.want, r.Size())
		})
	}
}

func TestRegistryAddReportsInsert(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	assert.True(t, r.Add("chat1"))
	assert.False(t, r.Add("chat1"))
	assert.False(t, r.Add(""), "empty recipient is ignored")
	assert.Equal(t, 1, r.Size())
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	t.Parallel()
	once := NewRegistry()
	twice := NewRegistry()
	for _, r := range []*Registry{once, twice} {
		r.Add("a")
		r.Add("b")
	}

	assert.True(t, once.Remove("a"))
	assert.True(t, twice.Remove("a"))
	assert.False(t, twice.Remove("a"))
	assert.False(t, twice.Remove("missing"))

	assert.Equal(t, once.Snapshot(), twice.Snapshot())
}

func TestRegistryRoundTrip(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Add("X")
	require.Contains(t, r.Snapshot(), Recipient("X"))
	r.Remove("X")
	require.NotContains(t, r.Snapshot(), Recipient("X"))
	require.False(t, r.Contains("X"))
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Add("b")
	r.Add("a")
	snap := r.Snapshot()
	require.Equal(t, []Recipient{"a", "b"}, snap)

	r.Add("c")
	r.Remove("a")
	assert.Equal(t, []Recipient{"a", "b"}, snap, "snapshot must not see later mutations")
}

func TestRegistryConcurrentMutations(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				rc := Recipient(fmt.Sprintf("%d-%d", w, i))
				r.Add(rc)
				_ = r.Snapshot()
				if i%2 == 1 {
					r.Remove(rc)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8*100, r.Size())
}

func TestRegistryWritesThroughStore(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	r := NewRegistry(WithStore(st))
	r.Add("1")
	r.Add("1")
	r.Remove("1")
	r.Remove("1")
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, []string{"put:1", "del:1"}, st.history())
}

func TestRegistrySlowStoreDoesNotBlockReads(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	st.gate = make(chan struct{})
	r := NewRegistry(WithStore(st))

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Add("1")
		r.Add("2")
		r.Remove("1")
		r.Add("3")
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("mutations blocked on the store")
	}
	assert.Equal(t, []Recipient{"2", "3"}, r.Snapshot())
	assert.True(t, r.Contains("3"))
	assert.Equal(t, 2, r.Size())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Flush(ctx), context.DeadlineExceeded)

	close(st.gate)
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, []string{"put:1", "put:2", "del:1", "put:3"}, st.history())
	assert.Equal(t, []string{"2", "3"}, st.ids())
}

func TestRegistryStoreErrorKeepsMemory(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	st.failPut = true
	r := NewRegistry(WithStore(st))
	assert.True(t, r.Add("1"))
	assert.True(t, r.Contains("1"))
}

func TestRegistryRestore(t *testing.T) {
	t.Parallel()
	st := newMemStore("10", "20")
	r := NewRegistry(WithStore(st))
	r.Add("20")

	n, err := r.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []Recipient{"10", "20"}, r.Snapshot())

	n, err = NewRegistry().Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
