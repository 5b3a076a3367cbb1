package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/model"
)

// PlanRepo provides data access to the subscription_plans table. Plan
// templates are admin-owned blueprints; the lifecycle service copies them
// into user ledgers at purchase time.
type PlanRepo struct{ DB *sql.DB }

func NewPlanRepo(db *sql.DB) *PlanRepo { return &PlanRepo{DB: db} }

const planColumns = "id,name,status,price,currency,billing_period,voice_minutes,features,description,is_popular,created_at,updated_at"

// GetByName fetches a plan template by its exact (case-normalized) name.
func (r *PlanRepo) GetByName(ctx context.Context, name string) (model.SubscriptionPlan, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+planColumns+" FROM subscription_plans WHERE name=? LIMIT 1", name))
}

// GetByID fetches a plan template by id.
func (r *PlanRepo) GetByID(ctx context.Context, id uint64) (model.SubscriptionPlan, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+planColumns+" FROM subscription_plans WHERE id=? LIMIT 1", id))
}

// ListActive returns active plans ordered by price ascending, as shown on
// the pricing screen.
func (r *PlanRepo) ListActive(ctx context.Context) ([]model.SubscriptionPlan, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+planColumns+" FROM subscription_plans WHERE status=? ORDER BY price ASC",
		model.PlanStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []model.SubscriptionPlan
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Create inserts a plan template and returns its ID. Names must be unique.
func (r *PlanRepo) Create(ctx context.Context, p *model.SubscriptionPlan) (uint64, error) {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO subscription_plans
		 (name, status, price, currency, billing_period, voice_minutes, features, description, is_popular)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		p.Name, p.Status, p.Price, p.Currency, p.BillingPeriod, p.VoiceMinutes,
		features, p.Description, p.IsPopular)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Update rewrites a plan template in place. Live ledgers hold their own
// denormalized snapshot, so this never changes a running subscription.
func (r *PlanRepo) Update(ctx context.Context, p *model.SubscriptionPlan) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE subscription_plans SET
		 name=?, status=?, price=?, currency=?, billing_period=?, voice_minutes=?,
		 features=?, description=?, is_popular=?, updated_at=UTC_TIMESTAMP()
		 WHERE id=?`,
		p.Name, p.Status, p.Price, p.Currency, p.BillingPeriod, p.VoiceMinutes,
		features, p.Description, p.IsPopular, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// SeedDefaults inserts the three stock plans when the table is empty.
// Called once at startup; a non-empty table is left untouched so admin
// edits survive restarts.
func (r *PlanRepo) SeedDefaults(ctx context.Context) error {
	var count int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM subscription_plans").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, p := range defaultPlans() {
		if _, err := r.Create(ctx, &p); err != nil {
			return err
		}
	}
	log.Printf("seeded %d default subscription plans", len(defaultPlans()))
	return nil
}

func defaultPlans() []model.SubscriptionPlan {
	return []model.SubscriptionPlan{
		{
			Name: model.PlanFree, Status: model.PlanStatusActive,
			Price: 0, Currency: "EUR", BillingPeriod: "monthly", VoiceMinutes: 2,
			Features: []string{
				"2 voice minutes",
				"Basic AI companion",
				"Text conversations",
				"Standard voice quality",
			},
			Description: "Perfect for trying out SelfTalk",
		},
		{
			Name: model.PlanPremium, Status: model.PlanStatusActive,
			Price: 99.90, Currency: "EUR", BillingPeriod: "monthly", VoiceMinutes: 50,
			Features: []string{
				"50 voice minutes",
				"Advanced AI companion",
				"Voice & text conversations",
				"High-quality voice",
				"Priority support",
				"Custom voice settings",
			},
			Description: "Great for regular users",
			IsPopular:   true,
		},
		{
			Name: model.PlanSuper, Status: model.PlanStatusActive,
			Price: 299.90, Currency: "EUR", BillingPeriod: "monthly", VoiceMinutes: 200,
			Features: []string{
				"200 voice minutes",
				"Premium AI companion",
				"All conversation types",
				"Studio-quality voice",
				"24/7 priority support",
				"Advanced customization",
				"Early access to features",
			},
			Description: "Ultimate experience for power users",
		},
	}
}

func (r *PlanRepo) scanOne(row *sql.Row) (model.SubscriptionPlan, error) {
	var (
		p        model.SubscriptionPlan
		features []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Status, &p.Price, &p.Currency, &p.BillingPeriod,
		&p.VoiceMinutes, &features, &p.Description, &p.IsPopular, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SubscriptionPlan{}, ErrNotFound
	}
	if err != nil {
		return model.SubscriptionPlan{}, err
	}
	if err := json.Unmarshal(features, &p.Features); err != nil {
		return model.SubscriptionPlan{}, err
	}
	return p, nil
}

func (r *PlanRepo) scanRow(rows *sql.Rows) (model.SubscriptionPlan, error) {
	var (
		p        model.SubscriptionPlan
		features []byte
	)
	err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.Price, &p.Currency, &p.BillingPeriod,
		&p.VoiceMinutes, &features, &p.Description, &p.IsPopular, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.SubscriptionPlan{}, err
	}
	if err := json.Unmarshal(features, &p.Features); err != nil {
		return model.SubscriptionPlan{}, err
	}
	return p, nil
}

// ErrConflict is returned when an insert/update collides with existing
// state, e.g. creating a second plan with the same name.
var ErrConflict = errors.New("conflict")
