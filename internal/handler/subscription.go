package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/middleware"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/repository"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/service"
)

// SubscriptionHandler exposes the lifecycle operations over HTTP:
// reading the ledger, purchasing/switching plans, topping up minutes and
// the explicit expiry check. Metering itself happens over the call
// socket, not here.
type SubscriptionHandler struct {
	Subs *service.SubscriptionService
}

func NewSubscriptionHandler(s *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{Subs: s}
}

type purchaseReq struct {
	Plan string `json:"plan"`
}
type addMinutesReq struct {
	Minutes int `json:"minutes"`
}

// Get returns the current ledger snapshot; the expiry check runs first so
// a lapsed cycle is downgraded before the client sees stale entitlement.
func (h *SubscriptionHandler) Get(c echo.Context) error {
	uid := middleware.UserID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	sub, _, err := h.Subs.CheckExpiry(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "no active subscription found")
		}
		return fail(c, http.StatusInternalServerError, "load subscription failed")
	}
	return respond(c, http.StatusOK, "OK", formatSubscription(sub))
}

// Purchase subscribes the user to the named plan (case-insensitive).
func (h *SubscriptionHandler) Purchase(c echo.Context) error {
	var req purchaseReq
	if err := c.Bind(&req); err != nil || req.Plan == "" {
		return fail(c, http.StatusBadRequest, "plan is required")
	}
	uid := middleware.UserID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	sub, err := h.Subs.Purchase(ctx, uid, req.Plan)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPlan):
			return fail(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrInactivePlan):
			return fail(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrVersionConflict):
			return fail(c, http.StatusConflict, "subscription was modified concurrently, retry")
		}
		return fail(c, http.StatusInternalServerError, "purchase failed")
	}
	return respond(c, http.StatusOK, "Successfully subscribed to plan", formatSubscription(sub))
}

// AddMinutes tops up the extra balance. Non-positive quantities are
// rejected before any mutation.
func (h *SubscriptionHandler) AddMinutes(c echo.Context) error {
	var req addMinutesReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	uid := middleware.UserID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	sub, err := h.Subs.AddMinutes(ctx, uid, req.Minutes)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidMinutes):
			return fail(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrNotFound):
			return fail(c, http.StatusNotFound, "no active subscription found")
		case errors.Is(err, repository.ErrVersionConflict):
			return fail(c, http.StatusConflict, "subscription was modified concurrently, retry")
		}
		return fail(c, http.StatusInternalServerError, "add minutes failed")
	}
	return respond(c, http.StatusOK, "Minutes added successfully", formatSubscription(sub))
}

// CheckExpiry explicitly applies the expiry-driven downgrade.
func (h *SubscriptionHandler) CheckExpiry(c echo.Context) error {
	uid := middleware.UserID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	sub, downgraded, err := h.Subs.CheckExpiry(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "no active subscription found")
		}
		return fail(c, http.StatusInternalServerError, "expiry check failed")
	}
	msg := "Subscription is current"
	if downgraded {
		msg = "Subscription expired and was reset to Free"
	}
	return respond(c, http.StatusOK, msg, formatSubscription(sub))
}
