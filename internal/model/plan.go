package model

import "time"

// Plan name and status enumerations. Plan names are stored
// case-normalized (first letter upper, rest lower).
const (
	PlanFree    = "Free"
	PlanPremium = "Premium"
	PlanSuper   = "Super"

	PlanStatusActive   = "Active"
	PlanStatusInactive = "Inactive"
)

// SubscriptionPlan is an admin-defined plan template stored in the
// `subscription_plans` table. Templates are copied (denormalized)
// into a user's ledger at purchase time, so later edits never
// retroactively change a live subscription.
type SubscriptionPlan struct {
	ID            uint64    // subscription_plans.id
	Name          string    // subscription_plans.name (Free|Premium|Super, unique)
	Status        string    // subscription_plans.status (Active|Inactive)
	Price         float64   // subscription_plans.price
	Currency      string    // subscription_plans.currency (default EUR)
	BillingPeriod string    // subscription_plans.billing_period
	VoiceMinutes  float64   // subscription_plans.voice_minutes (per-cycle grant)
	Features      []string  // subscription_plans.features (JSON array)
	Description   string    // subscription_plans.description
	IsPopular     bool      // subscription_plans.is_popular
	CreatedAt     time.Time // subscription_plans.created_at
	UpdatedAt     time.Time // subscription_plans.updated_at
}
