package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/model"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/repository"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/service"
)

// AdminHandler hosts the operator surface: plan template management and
// account suspension. Template edits never touch live ledgers — each
// ledger carries its own denormalized snapshot from purchase time.
type AdminHandler struct {
	Plans *repository.PlanRepo
	Users *repository.UserRepo
}

func NewAdminHandler(p *repository.PlanRepo, u *repository.UserRepo) *AdminHandler {
	return &AdminHandler{Plans: p, Users: u}
}

type planReq struct {
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	Price         *float64 `json:"price"`
	Currency      string   `json:"currency"`
	BillingPeriod string   `json:"billing_period"`
	VoiceMinutes  *float64 `json:"voice_minutes"`
	Features      []string `json:"features"`
	Description   string   `json:"description"`
	IsPopular     bool     `json:"is_popular"`
}

func (r *planReq) validate() string {
	name := service.NormalizePlanName(r.Name)
	switch name {
	case model.PlanFree, model.PlanPremium, model.PlanSuper:
		r.Name = name
	default:
		return "invalid plan name, must be Free, Premium or Super"
	}
	switch r.Status {
	case "", model.PlanStatusActive, model.PlanStatusInactive:
	default:
		return "invalid status, must be Active or Inactive"
	}
	if r.Price == nil || *r.Price < 0 {
		return "price is required and must be >= 0"
	}
	if r.VoiceMinutes == nil || *r.VoiceMinutes < 0 {
		return "voice minutes is required and must be >= 0"
	}
	if len(r.Features) == 0 {
		return "features array is required and cannot be empty"
	}
	if r.Description == "" {
		return "description is required"
	}
	return ""
}

func (r *planReq) toModel() model.SubscriptionPlan {
	status := r.Status
	if status == "" {
		status = model.PlanStatusActive
	}
	currency := r.Currency
	if currency == "" {
		currency = "EUR"
	}
	period := r.BillingPeriod
	if period == "" {
		period = "monthly"
	}
	return model.SubscriptionPlan{
		Name:          r.Name,
		Status:        status,
		Price:         *r.Price,
		Currency:      currency,
		BillingPeriod: period,
		VoiceMinutes:  *r.VoiceMinutes,
		Features:      r.Features,
		Description:   r.Description,
		IsPopular:     r.IsPopular,
	}
}

// CreatePlan inserts a new plan template.
func (h *AdminHandler) CreatePlan(c echo.Context) error {
	var req planReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if msg := req.validate(); msg != "" {
		return fail(c, http.StatusBadRequest, msg)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	plan := req.toModel()
	id, err := h.Plans.Create(ctx, &plan)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fail(c, http.StatusConflict, "plan with this name already exists")
		}
		return fail(c, http.StatusInternalServerError, "create plan failed")
	}
	plan.ID = id
	return respond(c, http.StatusCreated, "Subscription plan created successfully", echo.Map{"plan": formatPlan(plan)})
}

// UpdatePlan rewrites an existing template.
func (h *AdminHandler) UpdatePlan(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return fail(c, http.StatusBadRequest, "invalid plan id")
	}
	var req planReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if msg := req.validate(); msg != "" {
		return fail(c, http.StatusBadRequest, msg)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	plan := req.toModel()
	plan.ID = id
	if err := h.Plans.Update(ctx, &plan); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "subscription plan not found")
		}
		return fail(c, http.StatusInternalServerError, "update plan failed")
	}
	return respond(c, http.StatusOK, "Subscription plan updated successfully", echo.Map{"plan": formatPlan(plan)})
}

// Suspend disables an account; suspended users cannot log in or start
// calls. An in-flight call keeps metering until it ends on its own.
func (h *AdminHandler) Suspend(c echo.Context) error {
	return h.setSuspended(c, true, "User suspended")
}

// Unsuspend re-enables an account.
func (h *AdminHandler) Unsuspend(c echo.Context) error {
	return h.setSuspended(c, false, "User unsuspended")
}

func (h *AdminHandler) setSuspended(c echo.Context, suspended bool, msg string) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.SetSuspended(ctx, id, suspended); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "user not found")
		}
		return fail(c, http.StatusInternalServerError, "update failed")
	}
	return respond(c, http.StatusOK, msg, nil)
}
