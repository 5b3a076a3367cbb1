package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/model"
)

// All endpoints answer with the same envelope so mobile clients parse one
// shape: {"success":bool,"code":int,"message":string,"data":{...}}.
type envelope struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c echo.Context, code int, message string, data any) error {
	return c.JSON(code, envelope{Success: true, Code: code, Message: message, Data: data})
}

func fail(c echo.Context, code int, message string) error {
	return c.JSON(code, envelope{Success: false, Code: code, Message: message})
}

// ----- response shapes -----

type userResp struct {
	ID             uint64            `json:"id"`
	Username       string            `json:"username"`
	Email          string            `json:"email"`
	ProfilePicture string            `json:"profile_picture"`
	VoiceID        *string           `json:"voice_id"`
	ModelID        *string           `json:"model_id"`
	Role           string            `json:"role"`
	IsSuspended    bool              `json:"is_suspended"`
	Subscription   *subscriptionResp `json:"current_subscription,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type subscriptionResp struct {
	ID            uint64     `json:"id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	Price         float64    `json:"price"`
	Currency      string     `json:"currency"`
	BillingPeriod string     `json:"billing_period"`
	Features      []string   `json:"features"`
	Description   string     `json:"description"`
	IsPopular     bool       `json:"is_popular"`
	TotalMinutes  float64    `json:"total_minutes"`
	// AvailableMinutes is the combined spendable balance (plan + extra),
	// which is what the balance screen shows.
	AvailableMinutes float64    `json:"available_minutes"`
	ExtraMinutes     float64    `json:"extra_minutes"`
	Seconds          int64      `json:"seconds"`
	Recordings       []string   `json:"recordings"`
	StartedAt        time.Time  `json:"subscription_started_at"`
	EndDate          *time.Time `json:"subscription_end_date"`
}

type planResp struct {
	ID            uint64   `json:"id"`
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	Price         float64  `json:"price"`
	Currency      string   `json:"currency"`
	BillingPeriod string   `json:"billing_period"`
	VoiceMinutes  float64  `json:"voice_minutes"`
	Features      []string `json:"features"`
	Description   string   `json:"description"`
	IsPopular     bool     `json:"is_popular"`
}

func formatUser(u model.User, sub *model.UserSubscription) userResp {
	r := userResp{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		ProfilePicture: u.ProfilePicture,
		VoiceID:        u.VoiceID,
		ModelID:        u.ModelID,
		Role:           u.Role,
		IsSuspended:    u.IsSuspended,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
	if sub != nil {
		s := formatSubscription(*sub)
		r.Subscription = &s
	}
	return r
}

func formatSubscription(s model.UserSubscription) subscriptionResp {
	return subscriptionResp{
		ID:               s.ID,
		Name:             s.Name,
		Status:           s.Status,
		Price:            s.Price,
		Currency:         s.Currency,
		BillingPeriod:    s.BillingPeriod,
		Features:         s.Features,
		Description:      s.Description,
		IsPopular:        s.IsPopular,
		TotalMinutes:     s.TotalMinutes,
		AvailableMinutes: s.AvailableMinutes + s.ExtraMinutes,
		ExtraMinutes:     s.ExtraMinutes,
		Seconds:          s.Seconds,
		Recordings:       s.Recordings,
		StartedAt:        s.StartedAt,
		EndDate:          s.EndDate,
	}
}

func formatPlan(p model.SubscriptionPlan) planResp {
	return planResp{
		ID:            p.ID,
		Name:          p.Name,
		Status:        p.Status,
		Price:         p.Price,
		Currency:      p.Currency,
		BillingPeriod: p.BillingPeriod,
		VoiceMinutes:  p.VoiceMinutes,
		Features:      p.Features,
		Description:   p.Description,
		IsPopular:     p.IsPopular,
	}
}
