// Package session tracks live metering sessions: at most one per user,
// process-local, nothing persisted. A process restart drops every session;
// the ledger then reflects only ticks that completed before the crash.
// This registry assumes a single-instance deployment — horizontal scaling
// would require replacing it with a distributed lock/lease.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrShutdown is returned by Put after Shutdown has begun.
var ErrShutdown = errors.New("session registry is shut down")

// Session is the transient bookkeeping for one active call: a cancellation
// handle for the tick loop plus the balance split captured at start, which
// reconciliation uses to re-split the remaining seconds.
type Session struct {
	UserID uint64

	// StartAvailable/StartExtra are the minute balances at session start.
	StartAvailable float64
	StartExtra     float64
	StartSeconds   int64

	cancel context.CancelFunc
	done   chan struct{}
	ended  atomic.Bool
}

// New builds a session bound to the given cancel func. The engine must
// call Finish when its tick loop exits.
func New(userID uint64, cancel context.CancelFunc) *Session {
	return &Session{
		UserID: userID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Cancel signals the tick loop to stop. Safe to call multiple times.
func (s *Session) Cancel() { s.cancel() }

// Finish marks the tick loop as fully exited (reconciliation included).
// Idempotent.
func (s *Session) Finish() {
	if s.ended.CompareAndSwap(false, true) {
		close(s.done)
	}
}

// Done is closed once the tick loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Registry maps user ids to their single active session. It is an
// injectable object rather than a package global so tests can run
// isolated instances and main can drain it on shutdown.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint64]*Session
	closed   bool
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint64]*Session)}
}

// Put installs a session for the user, replacing any existing one. The
// old session's timer is cancelled and fully drained before the new entry
// is visible, so two timers never decrement the same balance — this is
// what makes a double "start" safe.
func (r *Registry) Put(s *Session) error {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return ErrShutdown
		}
		old := r.sessions[s.UserID]
		if old == nil {
			r.sessions[s.UserID] = s
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		old.Cancel()
		<-old.Done()
		r.Release(old)
		// Loop: another Put may have won the slot while we drained.
	}
}

// Get returns the user's active session, or nil.
func (r *Registry) Get(userID uint64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[userID]
}

// End cancels and removes the user's session, blocking until its tick
// loop (reconciliation included) has finished. Calling it twice, or when
// no session exists, is a no-op; the return value reports whether a live
// session was actually ended.
func (r *Registry) End(userID uint64) bool {
	r.mu.Lock()
	s := r.sessions[userID]
	if s != nil {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	if s == nil {
		return false
	}
	s.Cancel()
	<-s.Done()
	return true
}

// Release removes the entry for a session that is ending from inside its
// own tick loop. It only deletes when the map still points at this exact
// session, so a replacement installed by Put is never evicted. Unlike End
// it must not wait on Done — the caller is the loop itself.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.UserID] == s {
		delete(r.sessions, s.UserID)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown drains every session and rejects further Puts. Each session's
// loop runs its normal end path, so balances are reconciled before the
// process exits.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	drain := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		drain = append(drain, s)
	}
	r.sessions = make(map[uint64]*Session)
	r.mu.Unlock()

	for _, s := range drain {
		s.Cancel()
		<-s.Done()
	}
}
