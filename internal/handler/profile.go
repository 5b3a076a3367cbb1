package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/config"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/middleware"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/repository"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/service"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/utils"
)

// ProfileHandler serves the user's own account settings: display name,
// voice/model selection, password changes.
type ProfileHandler struct {
	Cfg   config.Config
	Users *repository.UserRepo
	Subs  *service.SubscriptionService
}

func NewProfileHandler(cfg config.Config, u *repository.UserRepo, s *service.SubscriptionService) *ProfileHandler {
	return &ProfileHandler{Cfg: cfg, Users: u, Subs: s}
}

type updateProfileReq struct {
	// Pointers distinguish "not sent" from "clear this field".
	Username       *string `json:"username"`
	ProfilePicture *string `json:"profile_picture"`
	VoiceID        *string `json:"voice_id"`
	ModelID        *string `json:"model_id"`
}

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// Get returns the profile with the current ledger snapshot.
func (h *ProfileHandler) Get(c echo.Context) error {
	uid := middleware.UserID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "user not found")
		}
		return fail(c, http.StatusInternalServerError, "load user failed")
	}
	sub, err := h.Subs.Ledgers.GetByUserID(ctx, uid)
	if err != nil {
		return respond(c, http.StatusOK, "OK", formatUser(u, nil))
	}
	return respond(c, http.StatusOK, "OK", formatUser(u, &sub))
}

// Update applies partial profile changes. Empty strings clear the voice
// and model selections.
func (h *ProfileHandler) Update(c echo.Context) error {
	var req updateProfileReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	uid := middleware.UserID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "user not found")
		}
		return fail(c, http.StatusInternalServerError, "load user failed")
	}

	changed := false
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			return fail(c, http.StatusBadRequest, "username cannot be empty")
		}
		u.Username = name
		changed = true
	}
	if req.ProfilePicture != nil {
		u.ProfilePicture = strings.TrimSpace(*req.ProfilePicture)
		changed = true
	}
	if req.VoiceID != nil {
		u.VoiceID = normalizeOptional(*req.VoiceID)
		changed = true
	}
	if req.ModelID != nil {
		u.ModelID = normalizeOptional(*req.ModelID)
		changed = true
	}

	if changed {
		if err := h.Users.UpdateProfile(ctx, &u); err != nil {
			return fail(c, http.StatusInternalServerError, "update failed")
		}
	}
	return respond(c, http.StatusOK, "Profile updated successfully", formatUser(u, nil))
}

// ChangePassword verifies the old password before storing a new hash.
func (h *ProfileHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		return fail(c, http.StatusBadRequest, "old and new password are required")
	}
	if len(req.NewPassword) < 8 {
		return fail(c, http.StatusBadRequest, "password must be at least 8 characters")
	}
	uid := middleware.UserID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "load user failed")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.OldPassword) {
		return fail(c, http.StatusBadRequest, "current password is incorrect")
	}
	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "hash failed")
	}
	if err := h.Users.UpdatePassword(ctx, uid, hash); err != nil {
		return fail(c, http.StatusInternalServerError, "update failed")
	}
	return respond(c, http.StatusOK, "Password changed successfully", nil)
}

func normalizeOptional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
