package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/repository"
)

// PlanHandler serves the public pricing screen.
type PlanHandler struct {
	Plans *repository.PlanRepo
}

func NewPlanHandler(p *repository.PlanRepo) *PlanHandler { return &PlanHandler{Plans: p} }

// ListActive returns active plans ordered by price. Unauthenticated.
func (h *PlanHandler) ListActive(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	plans, err := h.Plans.ListActive(ctx)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "load plans failed")
	}
	out := make([]planResp, 0, len(plans))
	for _, p := range plans {
		out = append(out, formatPlan(p))
	}
	return respond(c, http.StatusOK, "OK", echo.Map{"plans": out})
}
