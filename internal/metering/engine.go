// Package metering owns the per-second countdown that bills talk time
// while a call is live. One goroutine per session re-reads the ledger,
// decrements its seconds, persists, and emits progress until the balance
// is exhausted or the session is stopped; on every exit path the remaining
// seconds are reconciled back into the minute balances.
package metering

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/model"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/queue"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/repository"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/session"
)

// Event names emitted over the call socket.
const (
	EventStarted  = "started"
	EventProgress = "progress"
	EventEnded    = "ended"
	EventError    = "error"
)

// End-of-session reason codes.
const (
	ReasonTimeUp    = "time-up"
	ReasonUserEnded = "user-ended"
)

// Start precondition failures, reported verbatim to the client.
var (
	ErrNoSubscription = errors.New("No active subscription found")
	ErrNoSeconds      = errors.New("No seconds available for call")
)

// LedgerStore is the persistence the engine meters against. Reads must
// return fresh state (every tick re-reads rather than trusting a cached
// copy) and Save must write the whole record, failing with
// repository.ErrVersionConflict when it lost a concurrent write.
type LedgerStore interface {
	GetByUserID(ctx context.Context, userID uint64) (model.UserSubscription, error)
	Save(ctx context.Context, s *model.UserSubscription) error
}

// Emitter delivers events to the session's client. Implementations must
// tolerate a dead connection (emit becomes a no-op); the engine always
// emits regardless of connection state.
type Emitter interface {
	Emit(event string, data any)
}

// Publisher pushes call.ended events to the message broker. Optional.
type Publisher interface {
	PublishCallEnded(ctx context.Context, ev queue.CallEndedEvent) error
}

// Engine runs the tick loops. Within one session ticks are strictly
// sequential — tick n+1 never starts before tick n's persistence finished —
// while different users' sessions tick independently with no global
// ordering.
type Engine struct {
	store    LedgerStore
	sessions *session.Registry
	clock    Clock
	events   Publisher     // nil disables broker publishing
	tick     time.Duration // defaults to one second
}

func NewEngine(store LedgerStore, sessions *session.Registry, clock Clock, events Publisher) *Engine {
	return &Engine{
		store:    store,
		sessions: sessions,
		clock:    clock,
		events:   events,
		tick:     time.Second,
	}
}

// Start begins a metering session for the user. Preconditions: the user
// must hold a ledger row and its seconds must be positive; otherwise an
// error is returned and no session is created. An existing session for
// the same user is cancelled and drained before the new one starts. The
// returned value is the starting seconds balance.
func (e *Engine) Start(ctx context.Context, userID uint64, em Emitter) (int64, error) {
	sub, err := e.store.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrNoSubscription
	}
	if err != nil {
		return 0, err
	}
	if sub.Seconds <= 0 {
		return 0, ErrNoSeconds
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := session.New(userID, cancel)
	s.StartAvailable = sub.AvailableMinutes
	s.StartExtra = sub.ExtraMinutes
	s.StartSeconds = sub.Seconds

	if err := e.sessions.Put(s); err != nil {
		cancel()
		return 0, err
	}
	go e.run(sctx, s, em)
	return sub.Seconds, nil
}

// Stop ends the user's session, blocking until its loop has reconciled
// and exited. Used for both the explicit "end" message and connection
// loss; calling it with no live session is a no-op and reports false.
func (e *Engine) Stop(userID uint64) bool {
	return e.sessions.End(userID)
}

func (e *Engine) run(ctx context.Context, s *session.Session, em Emitter) {
	ticker := e.clock.NewTicker(e.tick)
	defer ticker.Stop()
	defer s.Finish()

	for {
		select {
		case <-ctx.Done():
			e.finish(s, em, ReasonUserEnded)
			return
		case <-ticker.C():
			if e.tickOnce(ctx, s, em) {
				return
			}
		}
	}
}

// tickOnce performs a single one-second decrement. It reports true when
// the session has terminated.
func (e *Engine) tickOnce(ctx context.Context, s *session.Session, em Emitter) bool {
	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := e.store.GetByUserID(tctx, s.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		// Ledger row vanished under a live call. Nothing left to meter.
		log.Printf("metering: subscription gone for user %d, ending session", s.UserID)
		e.sessions.Release(s)
		return true
	}
	if err != nil {
		e.fail(s, em, err)
		return true
	}

	if sub.Seconds <= 0 {
		// Balance already exhausted at tick time; never decrement below
		// zero, just close out.
		e.finish(s, em, ReasonTimeUp)
		return true
	}

	sub.Seconds--
	if err := e.store.Save(tctx, &sub); err != nil {
		if !errors.Is(err, repository.ErrVersionConflict) {
			e.fail(s, em, err)
			return true
		}
		// Lost a race with a lifecycle write (e.g. a mid-call top-up).
		// Re-read once and apply this tick's decrement to the fresh row.
		fresh, err := e.store.GetByUserID(tctx, s.UserID)
		if err != nil {
			e.fail(s, em, err)
			return true
		}
		if fresh.Seconds <= 0 {
			e.finish(s, em, ReasonTimeUp)
			return true
		}
		fresh.Seconds--
		if err := e.store.Save(tctx, &fresh); err != nil {
			e.fail(s, em, err)
			return true
		}
		sub = fresh
	}

	em.Emit(EventProgress, map[string]int64{"seconds": sub.Seconds})

	if sub.Seconds == 0 {
		e.finish(s, em, ReasonTimeUp)
		return true
	}

	select {
	case <-ctx.Done():
		// Stop arrived while this tick was persisting; close out now so
		// the decrement above is the last one.
		e.finish(s, em, ReasonUserEnded)
		return true
	default:
		return false
	}
}

// finish reconciles the remaining seconds into the minute balances,
// emits the terminal event and removes the session from the registry.
func (e *Engine) finish(s *session.Session, em Emitter, reason string) {
	defer e.sessions.Release(s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	remaining := int64(0)
	planName := ""
	sub, err := e.store.GetByUserID(ctx, s.UserID)
	if err != nil {
		log.Printf("metering: reconcile read failed for user %d: %v", s.UserID, err)
	} else {
		remaining = sub.Seconds
		planName = sub.Name
		if err := e.reconcile(ctx, s, &sub); err != nil {
			log.Printf("metering: reconcile write failed for user %d: %v", s.UserID, err)
		}
	}

	em.Emit(EventEnded, map[string]string{"reason": reason})
	e.publishEnded(s, planName, reason, remaining)
}

// reconcile applies the ratio re-split to the given row and saves it,
// retrying once on a version conflict with freshly read seconds.
func (e *Engine) reconcile(ctx context.Context, s *session.Session, sub *model.UserSubscription) error {
	sub.AvailableMinutes, sub.ExtraMinutes = Resplit(sub.Seconds, s.StartAvailable, s.StartExtra)
	err := e.store.Save(ctx, sub)
	if !errors.Is(err, repository.ErrVersionConflict) {
		return err
	}
	fresh, err := e.store.GetByUserID(ctx, s.UserID)
	if err != nil {
		return err
	}
	fresh.AvailableMinutes, fresh.ExtraMinutes = Resplit(fresh.Seconds, s.StartAvailable, s.StartExtra)
	if err := e.store.Save(ctx, &fresh); err != nil {
		return err
	}
	*sub = fresh
	return nil
}

// fail tears the session down after a persistence error. The balance as
// of the last successful tick is retained; no rollback is attempted.
func (e *Engine) fail(s *session.Session, em Emitter, err error) {
	log.Printf("metering: tick failed for user %d: %v", s.UserID, err)
	em.Emit(EventError, map[string]string{"message": "call metering error"})
	e.sessions.Release(s)
}

func (e *Engine) publishEnded(s *session.Session, planName, reason string, remaining int64) {
	if e.events == nil {
		return
	}
	ev := queue.CallEndedEvent{
		UserID:           s.UserID,
		Plan:             planName,
		Reason:           reason,
		SecondsConsumed:  s.StartSeconds - remaining,
		SecondsRemaining: remaining,
		EndedAt:          e.clock.Now().Format(time.RFC3339),
	}
	// Best effort; the publisher logs its own failures.
	go func() { _ = e.events.PublishCallEnded(context.Background(), ev) }()
}
