package model

import (
	"math"
	"time"
)

// UserSubscription is the ledger: the single persisted balance record a
// user holds between calls, stored in the `user_subscriptions` table.
// There is exactly one live row per user; plan switches update it in
// place rather than deleting and recreating it.
//
// Balance fields and their meaning:
//  TotalMinutes     – entitlement granted by the current plan cycle plus
//                     preserved top-ups. Set at purchase/renewal, increased
//                     by top-ups, never decremented by metering.
//  AvailableMinutes – remaining plan-cycle balance, never negative.
//  ExtraMinutes     – top-up balance bought outside the plan cycle, never
//                     negative, consumed only after AvailableMinutes.
//  Seconds          – authoritative real-time countdown. At rest it equals
//                     floor((AvailableMinutes+ExtraMinutes)*60); while a
//                     call is live it is the engine's decrementing value
//                     and the minute fields are stale until reconciliation.
//
// The remaining fields are a snapshot of the plan template at purchase
// time plus the billing-cycle window. Version guards whole-record writes:
// every save increments it and a save against a stale version fails.
type UserSubscription struct {
	ID               uint64     // user_subscriptions.id
	UserID           uint64     // user_subscriptions.user_id (unique)
	PlanID           uint64     // user_subscriptions.plan_id
	Name             string     // user_subscriptions.name (plan snapshot)
	Status           string     // user_subscriptions.status
	Price            float64    // user_subscriptions.price
	Currency         string     // user_subscriptions.currency
	BillingPeriod    string     // user_subscriptions.billing_period
	Features         []string   // user_subscriptions.features (JSON array)
	Description      string     // user_subscriptions.description
	IsPopular        bool       // user_subscriptions.is_popular
	TotalMinutes     float64    // user_subscriptions.total_minutes
	AvailableMinutes float64    // user_subscriptions.available_minutes
	ExtraMinutes     float64    // user_subscriptions.extra_minutes
	Seconds          int64      // user_subscriptions.seconds
	Recordings       []string   // user_subscriptions.recordings (JSON array)
	StartedAt        time.Time  // user_subscriptions.subscription_started_at
	EndDate          *time.Time // user_subscriptions.subscription_end_date (nullable)
	Version          int64      // user_subscriptions.version (write guard)
	CreatedAt        time.Time  // user_subscriptions.created_at
	UpdatedAt        time.Time  // user_subscriptions.updated_at
}

// BalanceSeconds converts the minute fields to whole seconds. Used to
// reset Seconds whenever entitlement changes outside a live call.
func (s *UserSubscription) BalanceSeconds() int64 {
	return int64(math.Floor((s.AvailableMinutes + s.ExtraMinutes) * 60))
}

// Expired reports whether the billing cycle ended before now. A nil
// EndDate never expires.
func (s *UserSubscription) Expired(now time.Time) bool {
	return s.EndDate != nil && s.EndDate.Before(now)
}
