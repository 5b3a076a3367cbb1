package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/model"
)

// SubscriptionRepo provides data access to the user_subscriptions table,
// the ledger of minute and second balances. All writes are whole-record
// and guarded by a version column: Save only succeeds when the row still
// carries the version the caller read, otherwise ErrVersionConflict is
// returned and the caller must re-read. This is what keeps a metering tick
// and a concurrent top-up from silently overwriting each other.
type SubscriptionRepo struct{ DB *sql.DB }

func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{DB: db} }

const subColumns = `id,user_id,plan_id,name,status,price,currency,billing_period,
	features,description,is_popular,total_minutes,available_minutes,extra_minutes,
	seconds,recordings,subscription_started_at,subscription_end_date,version,
	created_at,updated_at`

// GetByUserID fetches the user's ledger row. Each metering tick calls this
// so the engine always works against fresh persisted state.
func (r *SubscriptionRepo) GetByUserID(ctx context.Context, userID uint64) (model.UserSubscription, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+subColumns+" FROM user_subscriptions WHERE user_id=? LIMIT 1", userID))
}

// Create inserts a fresh ledger row (registration or first purchase) and
// fills in the generated ID. New rows start at version 1.
func (r *SubscriptionRepo) Create(ctx context.Context, s *model.UserSubscription) error {
	features, err := json.Marshal(s.Features)
	if err != nil {
		return err
	}
	recordings, err := json.Marshal(emptyIfNil(s.Recordings))
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO user_subscriptions
		 (user_id, plan_id, name, status, price, currency, billing_period, features,
		  description, is_popular, total_minutes, available_minutes, extra_minutes,
		  seconds, recordings, subscription_started_at, subscription_end_date, version)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,1)`,
		s.UserID, s.PlanID, s.Name, s.Status, s.Price, s.Currency, s.BillingPeriod,
		features, s.Description, s.IsPopular, s.TotalMinutes, s.AvailableMinutes,
		s.ExtraMinutes, s.Seconds, recordings, s.StartedAt.UTC(), nullTime(s.EndDate))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.Version = 1
	return nil
}

// Save persists the full record (never partial columns) with a
// compare-and-swap on the version the caller read. On success the struct's
// Version is advanced to match the stored row.
func (r *SubscriptionRepo) Save(ctx context.Context, s *model.UserSubscription) error {
	features, err := json.Marshal(s.Features)
	if err != nil {
		return err
	}
	recordings, err := json.Marshal(emptyIfNil(s.Recordings))
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE user_subscriptions SET
		 plan_id=?, name=?, status=?, price=?, currency=?, billing_period=?,
		 features=?, description=?, is_popular=?, total_minutes=?,
		 available_minutes=?, extra_minutes=?, seconds=?, recordings=?,
		 subscription_started_at=?, subscription_end_date=?,
		 version=version+1, updated_at=UTC_TIMESTAMP()
		 WHERE id=? AND version=?`,
		s.PlanID, s.Name, s.Status, s.Price, s.Currency, s.BillingPeriod,
		features, s.Description, s.IsPopular, s.TotalMinutes,
		s.AvailableMinutes, s.ExtraMinutes, s.Seconds, recordings,
		s.StartedAt.UTC(), nullTime(s.EndDate),
		s.ID, s.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the row vanished or someone else bumped the version.
		if _, getErr := r.GetByUserID(ctx, s.UserID); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}
	s.Version++
	return nil
}

func (r *SubscriptionRepo) scanOne(row *sql.Row) (model.UserSubscription, error) {
	var (
		s          model.UserSubscription
		features   []byte
		recordings []byte
		endDate    sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.Name, &s.Status, &s.Price,
		&s.Currency, &s.BillingPeriod, &features, &s.Description, &s.IsPopular,
		&s.TotalMinutes, &s.AvailableMinutes, &s.ExtraMinutes, &s.Seconds,
		&recordings, &s.StartedAt, &endDate, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserSubscription{}, ErrNotFound
	}
	if err != nil {
		return model.UserSubscription{}, err
	}
	if err := json.Unmarshal(features, &s.Features); err != nil {
		return model.UserSubscription{}, err
	}
	if err := json.Unmarshal(recordings, &s.Recordings); err != nil {
		return model.UserSubscription{}, err
	}
	if endDate.Valid {
		t := endDate.Time
		s.EndDate = &t
	}
	return s, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
