package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/model"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/repository"
)

// Lifecycle input failures, reported verbatim to the caller.
var (
	ErrUnknownPlan    = errors.New("invalid plan name, must be Free, Premium or Super")
	ErrInactivePlan   = errors.New("cannot subscribe to an inactive plan")
	ErrInvalidMinutes = errors.New("minutes must be a positive number")
)

// saveAttempts bounds the re-read/retry loop around version conflicts,
// which happen when a lifecycle write races the metering engine's ticks.
const saveAttempts = 3

// PlanStore is the slice of PlanRepo the lifecycle needs.
type PlanStore interface {
	GetByName(ctx context.Context, name string) (model.SubscriptionPlan, error)
}

// LedgerStore is the slice of SubscriptionRepo the lifecycle needs.
type LedgerStore interface {
	GetByUserID(ctx context.Context, userID uint64) (model.UserSubscription, error)
	Create(ctx context.Context, s *model.UserSubscription) error
	Save(ctx context.Context, s *model.UserSubscription) error
}

// UserStore is the slice of UserRepo the lifecycle needs.
type UserStore interface {
	SetCurrentSubscription(ctx context.Context, userID, subID uint64) error
}

// SubscriptionService is the lifecycle manager: everything that changes
// ledger entitlement outside of live metering. It shares the ledger rows
// with the metering engine; there is no cross-operation locking, only the
// per-write version guard, so a conflicted write is re-read and retried
// rather than silently overwriting a concurrent tick.
type SubscriptionService struct {
	Plans   PlanStore
	Ledgers LedgerStore
	Users   UserStore

	// Now is the time source; replaced in tests.
	Now func() time.Time
}

func NewSubscriptionService(plans PlanStore, ledgers LedgerStore, users UserStore) *SubscriptionService {
	return &SubscriptionService{
		Plans:   plans,
		Ledgers: ledgers,
		Users:   users,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// NormalizePlanName folds arbitrary casing into the stored form: first
// letter upper, rest lower ("premium" -> "Premium").
func NormalizePlanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
}

// CreateInitial grants a fresh user the Free plan. Called from the
// register flow; every plan, Free included, runs on a one-month cycle.
func (s *SubscriptionService) CreateInitial(ctx context.Context, userID uint64) (model.UserSubscription, error) {
	plan, err := s.Plans.GetByName(ctx, model.PlanFree)
	if err != nil {
		return model.UserSubscription{}, err
	}
	now := s.Now()
	sub := s.fromTemplate(plan, userID, 0, now)
	if err := s.Ledgers.Create(ctx, &sub); err != nil {
		return model.UserSubscription{}, err
	}
	if err := s.Users.SetCurrentSubscription(ctx, userID, sub.ID); err != nil {
		return model.UserSubscription{}, err
	}
	return sub, nil
}

// Purchase subscribes the user to the named plan, switching in place when
// a ledger already exists. The top-up balance survives the switch:
// extra_minutes carries over, available_minutes becomes the new grant and
// total_minutes the grant plus the preserved extra. The billing cycle and
// seconds are always reset.
func (s *SubscriptionService) Purchase(ctx context.Context, userID uint64, planName string) (model.UserSubscription, error) {
	name := NormalizePlanName(planName)
	switch name {
	case model.PlanFree, model.PlanPremium, model.PlanSuper:
	default:
		return model.UserSubscription{}, ErrUnknownPlan
	}
	plan, err := s.Plans.GetByName(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		return model.UserSubscription{}, ErrUnknownPlan
	}
	if err != nil {
		return model.UserSubscription{}, err
	}
	if plan.Status != model.PlanStatusActive {
		return model.UserSubscription{}, ErrInactivePlan
	}

	var lastErr error
	for i := 0; i < saveAttempts; i++ {
		now := s.Now()
		sub, err := s.Ledgers.GetByUserID(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			fresh := s.fromTemplate(plan, userID, 0, now)
			if err := s.Ledgers.Create(ctx, &fresh); err != nil {
				return model.UserSubscription{}, err
			}
			if err := s.Users.SetCurrentSubscription(ctx, userID, fresh.ID); err != nil {
				return model.UserSubscription{}, err
			}
			return fresh, nil
		}
		if err != nil {
			return model.UserSubscription{}, err
		}

		s.applyTemplate(&sub, plan, sub.ExtraMinutes, now)
		if err := s.Ledgers.Save(ctx, &sub); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return model.UserSubscription{}, err
		}
		return sub, nil
	}
	return model.UserSubscription{}, lastErr
}

// AddMinutes tops up the extra balance. Top-ups raise extra_minutes and
// total_minutes (never available_minutes) and extend the live countdown.
func (s *SubscriptionService) AddMinutes(ctx context.Context, userID uint64, minutes int) (model.UserSubscription, error) {
	if minutes <= 0 {
		return model.UserSubscription{}, ErrInvalidMinutes
	}
	var lastErr error
	for i := 0; i < saveAttempts; i++ {
		sub, err := s.Ledgers.GetByUserID(ctx, userID)
		if err != nil {
			return model.UserSubscription{}, err
		}
		sub.ExtraMinutes += float64(minutes)
		sub.TotalMinutes += float64(minutes)
		sub.Seconds += int64(minutes) * 60
		if err := s.Ledgers.Save(ctx, &sub); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return model.UserSubscription{}, err
		}
		return sub, nil
	}
	return model.UserSubscription{}, lastErr
}

// CheckExpiry applies the expiry-driven downgrade when the billing cycle
// has lapsed: the ledger is reassigned the Free template with the top-up
// balance preserved and a fresh cycle window. The check is explicitly
// invoked by callers (before starting a call, when reading the
// subscription) — there is no background sweep. The boolean reports
// whether a downgrade happened.
func (s *SubscriptionService) CheckExpiry(ctx context.Context, userID uint64) (model.UserSubscription, bool, error) {
	var lastErr error
	for i := 0; i < saveAttempts; i++ {
		sub, err := s.Ledgers.GetByUserID(ctx, userID)
		if err != nil {
			return model.UserSubscription{}, false, err
		}
		now := s.Now()
		if !sub.Expired(now) {
			return sub, false, nil
		}
		free, err := s.Plans.GetByName(ctx, model.PlanFree)
		if err != nil {
			return model.UserSubscription{}, false, err
		}
		s.applyTemplate(&sub, free, sub.ExtraMinutes, now)
		if err := s.Ledgers.Save(ctx, &sub); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return model.UserSubscription{}, false, err
		}
		return sub, true, nil
	}
	return model.UserSubscription{}, false, lastErr
}

// fromTemplate builds a brand-new ledger row from a plan template.
func (s *SubscriptionService) fromTemplate(plan model.SubscriptionPlan, userID uint64, extra float64, now time.Time) model.UserSubscription {
	sub := model.UserSubscription{
		UserID:     userID,
		Recordings: []string{},
	}
	s.applyTemplate(&sub, plan, extra, now)
	return sub
}

// applyTemplate copies the plan snapshot onto the ledger and resets the
// cycle: available = grant, total = grant + preserved extra, seconds
// rebuilt from the minute fields, window = [now, now+1 month).
func (s *SubscriptionService) applyTemplate(sub *model.UserSubscription, plan model.SubscriptionPlan, extra float64, now time.Time) {
	end := now.AddDate(0, 1, 0)
	sub.PlanID = plan.ID
	sub.Name = plan.Name
	sub.Status = plan.Status
	sub.Price = plan.Price
	sub.Currency = plan.Currency
	sub.BillingPeriod = plan.BillingPeriod
	sub.Features = plan.Features
	sub.Description = plan.Description
	sub.IsPopular = plan.IsPopular
	sub.AvailableMinutes = plan.VoiceMinutes
	sub.ExtraMinutes = extra
	sub.TotalMinutes = plan.VoiceMinutes + extra
	sub.StartedAt = now
	sub.EndDate = &end
	sub.Seconds = sub.BalanceSeconds()
}
