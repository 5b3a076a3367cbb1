package metering

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/model"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/repository"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/session"
)

// fakeClock drives the tick loop from the test: sending on ticks delivers
// one tick, and the unbuffered channel means the send returns only once
// the loop has picked it up.
type fakeClock struct {
	ticks chan time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{ticks: make(chan time.Time)} }

func (f *fakeClock) NewTicker(time.Duration) Ticker { return fakeTicker{f.ticks} }
func (f *fakeClock) Now() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

type fakeTicker struct{ ch chan time.Time }

func (f fakeTicker) C() <-chan time.Time { return f.ch }
func (f fakeTicker) Stop()               {}

// memStore is an in-memory LedgerStore with the same version-guard
// semantics as the MySQL repository, plus fault injection for tests.
type memStore struct {
	mu        sync.Mutex
	subs      map[uint64]model.UserSubscription
	conflicts int // next N saves fail with a version conflict
}

func newMemStore() *memStore { return &memStore{subs: make(map[uint64]model.UserSubscription)} }

func (m *memStore) put(sub model.UserSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.UserID] = sub
}

func (m *memStore) drop(userID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, userID)
}

func (m *memStore) get(userID uint64) model.UserSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[userID]
}

func (m *memStore) GetByUserID(_ context.Context, userID uint64) (model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[userID]
	if !ok {
		return model.UserSubscription{}, repository.ErrNotFound
	}
	return sub, nil
}

func (m *memStore) Save(_ context.Context, s *model.UserSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrVersionConflict
	}
	cur, ok := m.subs[s.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != s.Version {
		return repository.ErrVersionConflict
	}
	s.Version++
	m.subs[s.UserID] = *s
	return nil
}

type emitted struct {
	name string
	data any
}

type recordEmitter struct {
	events chan emitted
}

func newRecordEmitter() *recordEmitter { return &recordEmitter{events: make(chan emitted, 256)} }

func (r *recordEmitter) Emit(name string, data any) { r.events <- emitted{name, data} }

func (r *recordEmitter) next(t *testing.T) emitted {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return emitted{}
	}
}

func (r *recordEmitter) assertEmpty(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("unexpected event %q", e.name)
	default:
	}
}

func ledger(userID uint64, available, extra float64, seconds int64) model.UserSubscription {
	return model.UserSubscription{
		UserID:           userID,
		Name:             model.PlanPremium,
		AvailableMinutes: available,
		ExtraMinutes:     extra,
		TotalMinutes:     available + extra,
		Seconds:          seconds,
		Version:          1,
	}
}

func newTestEngine(store *memStore) (*Engine, *fakeClock, *session.Registry) {
	clk := newFakeClock()
	reg := session.NewRegistry()
	return NewEngine(store, reg, clk, nil), clk, reg
}

func TestStartWithoutSubscription(t *testing.T) {
	engine, _, _ := newTestEngine(newMemStore())

	_, err := engine.Start(context.Background(), 1, newRecordEmitter())
	assert.ErrorIs(t, err, ErrNoSubscription)
	assert.EqualError(t, err, "No active subscription found")
}

func TestStartWithZeroBalance(t *testing.T) {
	store := newMemStore()
	store.put(ledger(1, 0, 0, 0))
	engine, _, _ := newTestEngine(store)

	_, err := engine.Start(context.Background(), 1, newRecordEmitter())
	assert.ErrorIs(t, err, ErrNoSeconds)
	assert.EqualError(t, err, "No seconds available for call")
}

func TestStartReturnsBalance(t *testing.T) {
	store := newMemStore()
	store.put(ledger(1, 2, 0, 120))
	engine, _, reg := newTestEngine(store)
	em := newRecordEmitter()

	seconds, err := engine.Start(context.Background(), 1, em)
	require.NoError(t, err)
	assert.Equal(t, int64(120), seconds)
	assert.Equal(t, 1, reg.Len())

	engine.Stop(1)
	ev := em.next(t)
	assert.Equal(t, EventEnded, ev.name)
	assert.Equal(t, map[string]string{"reason": ReasonUserEnded}, ev.data)
	assert.Zero(t, reg.Len())
}

func TestTickDecrementsAndEmitsProgress(t *testing.T) {
	store := newMemStore()
	store.put(ledger(1, 2, 0, 120))
	engine, clk, _ := newTestEngine(store)
	em := newRecordEmitter()

	_, err := engine.Start(context.Background(), 1, em)
	require.NoError(t, err)

	clk.ticks <- time.Time{}
	ev := em.next(t)
	assert.Equal(t, EventProgress, ev.name)
	assert.Equal(t, map[string]int64{"seconds": 119}, ev.data)
	assert.Equal(t, int64(119), store.get(1).Seconds)

	engine.Stop(1)
	ev = em.next(t)
	require.Equal(t, EventEnded, ev.name)

	// Reconciliation folds the remaining 119 seconds back into the
	// minute balances.
	sub := store.get(1)
	assert.Equal(t, int64(119), sub.Seconds)
	assert.InDelta(t, 119.0/60.0, sub.AvailableMinutes, 1e-9)
	assert.Zero(t, sub.ExtraMinutes)
}

func TestExhaustionEndsWithTimeUp(t *testing.T) {
	store := newMemStore()
	store.put(ledger(1, 0, 2.0/60.0, 2))
	engine, clk, reg := newTestEngine(store)
	em := newRecordEmitter()

	_, err := engine.Start(context.Background(), 1, em)
	require.NoError(t, err)

	clk.ticks <- time.Time{}
	ev := em.next(t)
	require.Equal(t, EventProgress, ev.name)
	assert.Equal(t, map[string]int64{"seconds": 1}, ev.data)

	clk.ticks <- time.Time{}
	ev = em.next(t)
	require.Equal(t, EventProgress, ev.name)
	assert.Equal(t, map[string]int64{"seconds": 0}, ev.data)

	ev = em.next(t)
	require.Equal(t, EventEnded, ev.name)
	assert.Equal(t, map[string]string{"reason": ReasonTimeUp}, ev.data)

	sub := store.get(1)
	assert.Zero(t, sub.Seconds)
	assert.Zero(t, sub.AvailableMinutes)
	assert.Zero(t, sub.ExtraMinutes)

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	em.assertEmpty(t) // exhaustion terminates exactly once
}

func TestStopMidCallKeepsRemainder(t *testing.T) {
	store := newMemStore()
	store.put(ledger(1, 1, 0, 60))
	engine, clk, _ := newTestEngine(store)
	em := newRecordEmitter()

	_, err := engine.Start(context.Background(), 1, em)
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		clk.ticks <- time.Time{}
		ev := em.next(t)
		require.Equal(t, EventProgress, ev.name)
		assert.Equal(t, map[string]int64{"seconds": int64(60 - i)}, ev.data)
	}

	engine.Stop(1)
	ev := em.next(t)
	require.Equal(t, EventEnded, ev.name)
	assert.Equal(t, map[string]string{"reason": ReasonUserEnded}, ev.data)

	sub := store.get(1)
	assert.Equal(t, int64(50), sub.Seconds)
	assert.InDelta(t, 50.0/60.0, sub.AvailableMinutes, 1e-9)
	assert.Zero(t, sub.ExtraMinutes)
}

func TestTickRetriesOnVersionConflict(t *testing.T) {
	store := newMemStore()
	store.put(ledger(1, 2, 0, 120))
	engine, clk, _ := newTestEngine(store)
	em := newRecordEmitter()

	_, err := engine.Start(context.Background(), 1, em)
	require.NoError(t, err)

	store.mu.Lock()
	store.conflicts = 1
	store.mu.Unlock()

	clk.ticks <- time.Time{}
	ev := em.next(t)
	require.Equal(t, EventProgress, ev.name)
	// The conflicted tick re-reads and decrements exactly once.
	assert.Equal(t, map[string]int64{"seconds": 119}, ev.data)
	assert.Equal(t, int64(119), store.get(1).Seconds)

	engine.Stop(1)
}

func TestLedgerVanishedTearsDownSilently(t *testing.T) {
	store := newMemStore()
	store.put(ledger(1, 2, 0, 120))
	engine, clk, reg := newTestEngine(store)
	em := newRecordEmitter()

	_, err := engine.Start(context.Background(), 1, em)
	require.NoError(t, err)

	store.drop(1)
	clk.ticks <- time.Time{}

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	em.assertEmpty(t)
}

func TestSecondStartReplacesFirst(t *testing.T) {
	store := newMemStore()
	store.put(ledger(1, 2, 0, 120))
	engine, _, reg := newTestEngine(store)
	first := newRecordEmitter()
	second := newRecordEmitter()

	_, err := engine.Start(context.Background(), 1, first)
	require.NoError(t, err)

	seconds, err := engine.Start(context.Background(), 1, second)
	require.NoError(t, err)
	assert.Equal(t, int64(120), seconds)

	// The first session was cancelled and closed out before the second
	// one became visible.
	ev := first.next(t)
	assert.Equal(t, EventEnded, ev.name)
	assert.Equal(t, map[string]string{"reason": ReasonUserEnded}, ev.data)
	assert.Equal(t, 1, reg.Len())

	engine.Stop(1)
	ev = second.next(t)
	assert.Equal(t, EventEnded, ev.name)
	assert.Zero(t, reg.Len())
}
