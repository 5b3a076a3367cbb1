package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spawn creates a session whose fake loop blocks until cancelled, then
// marks itself finished. Mirrors the shape of the engine's tick loop.
func spawn(userID uint64) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(userID, cancel)
	go func() {
		<-ctx.Done()
		s.Finish()
	}()
	return s
}

func TestPutAndGet(t *testing.T) {
	r := NewRegistry()
	s := spawn(1)
	require.NoError(t, r.Put(s))

	assert.Same(t, s, r.Get(1))
	assert.Nil(t, r.Get(2))
	assert.Equal(t, 1, r.Len())

	r.End(1)
}

func TestEndWaitsForLoop(t *testing.T) {
	r := NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	s := New(7, cancel)
	finished := make(chan struct{})
	go func() {
		<-ctx.Done()
		// Simulate end-of-loop work (reconciliation) before Finish.
		time.Sleep(20 * time.Millisecond)
		close(finished)
		s.Finish()
	}()
	require.NoError(t, r.Put(s))

	r.End(7)

	// End must not return before the loop completed its teardown.
	select {
	case <-finished:
	default:
		t.Fatal("End returned before the session loop finished")
	}
	assert.Zero(t, r.Len())
}

func TestEndIsIdempotent(t *testing.T) {
	r := NewRegistry()
	s := spawn(3)
	require.NoError(t, r.Put(s))

	assert.True(t, r.End(3))
	assert.False(t, r.End(3))  // second end is a no-op
	assert.False(t, r.End(99)) // unknown user is a no-op
	assert.Zero(t, r.Len())
}

func TestPutReplacesAndDrainsOld(t *testing.T) {
	r := NewRegistry()
	old := spawn(5)
	require.NoError(t, r.Put(old))

	replacement := spawn(5)
	require.NoError(t, r.Put(replacement))

	// The old loop must be fully drained before the new entry is visible.
	select {
	case <-old.Done():
	default:
		t.Fatal("old session still running after replacement")
	}
	assert.Same(t, replacement, r.Get(5))
	assert.Equal(t, 1, r.Len())

	r.End(5)
}

func TestReleaseOnlyRemovesOwnEntry(t *testing.T) {
	r := NewRegistry()
	s := spawn(9)
	require.NoError(t, r.Put(s))

	// Release from a session that no longer owns the slot must not evict
	// the current one.
	stale := spawn(9)
	stale.Cancel()
	<-stale.Done()
	r.Release(stale)
	assert.Same(t, s, r.Get(9))

	r.Release(s)
	assert.Nil(t, r.Get(9))
	s.Cancel()
}

func TestShutdownDrainsAndRejects(t *testing.T) {
	r := NewRegistry()
	a := spawn(1)
	b := spawn(2)
	require.NoError(t, r.Put(a))
	require.NoError(t, r.Put(b))

	r.Shutdown()

	select {
	case <-a.Done():
	default:
		t.Fatal("session 1 not drained by shutdown")
	}
	select {
	case <-b.Done():
	default:
		t.Fatal("session 2 not drained by shutdown")
	}
	assert.Zero(t, r.Len())

	late := spawn(3)
	assert.ErrorIs(t, r.Put(late), ErrShutdown)
	late.Cancel()
}
