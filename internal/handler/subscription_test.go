package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/middleware"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/model"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/repository"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/service"
)

type stubPlans struct{ plans map[string]model.SubscriptionPlan }

func (s *stubPlans) GetByName(_ context.Context, name string) (model.SubscriptionPlan, error) {
	p, ok := s.plans[name]
	if !ok {
		return model.SubscriptionPlan{}, repository.ErrNotFound
	}
	return p, nil
}

type stubLedgers struct{ subs map[uint64]model.UserSubscription }

func (s *stubLedgers) GetByUserID(_ context.Context, userID uint64) (model.UserSubscription, error) {
	sub, ok := s.subs[userID]
	if !ok {
		return model.UserSubscription{}, repository.ErrNotFound
	}
	return sub, nil
}

func (s *stubLedgers) Create(_ context.Context, sub *model.UserSubscription) error {
	sub.ID = uint64(len(s.subs) + 1)
	sub.Version = 1
	s.subs[sub.UserID] = *sub
	return nil
}

func (s *stubLedgers) Save(_ context.Context, sub *model.UserSubscription) error {
	if _, ok := s.subs[sub.UserID]; !ok {
		return repository.ErrNotFound
	}
	sub.Version++
	s.subs[sub.UserID] = *sub
	return nil
}

type stubUsers struct{}

func (stubUsers) SetCurrentSubscription(context.Context, uint64, uint64) error { return nil }

func newStubService() (*service.SubscriptionService, *stubLedgers) {
	ledgers := &stubLedgers{subs: make(map[uint64]model.UserSubscription)}
	plans := &stubPlans{plans: map[string]model.SubscriptionPlan{
		model.PlanFree: {
			ID: 1, Name: model.PlanFree, Status: model.PlanStatusActive,
			Currency: "EUR", BillingPeriod: "monthly", VoiceMinutes: 2,
			Features: []string{"2 voice minutes"},
		},
		model.PlanPremium: {
			ID: 2, Name: model.PlanPremium, Status: model.PlanStatusActive,
			Price: 99.90, Currency: "EUR", BillingPeriod: "monthly", VoiceMinutes: 50,
			Features: []string{"50 voice minutes"},
		},
	}}
	svc := service.NewSubscriptionService(plans, ledgers, stubUsers{})
	svc.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, ledgers
}

// request runs a handler as an authenticated user and decodes the
// response envelope.
func request(t *testing.T, h echo.HandlerFunc, method, body string, userID uint64) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.CtxUserID, userID)
	c.Set(middleware.CtxRole, model.RoleUser)

	require.NoError(t, h(c))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestPurchaseEndpoint(t *testing.T) {
	svc, _ := newStubService()
	h := NewSubscriptionHandler(svc)

	code, out := request(t, h.Purchase, http.MethodPost, `{"plan":"premium"}`, 10)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	data := out["data"].(map[string]any)
	assert.Equal(t, "Premium", data["name"])
	assert.Equal(t, 50.0, data["available_minutes"])
	assert.Equal(t, float64(3000), data["seconds"])
}

func TestPurchaseEndpointRejectsUnknownPlan(t *testing.T) {
	svc, _ := newStubService()
	h := NewSubscriptionHandler(svc)

	code, out := request(t, h.Purchase, http.MethodPost, `{"plan":"Platinum"}`, 10)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "invalid plan name, must be Free, Premium or Super", out["message"])
}

func TestPurchaseEndpointRequiresPlan(t *testing.T) {
	svc, _ := newStubService()
	h := NewSubscriptionHandler(svc)

	code, out := request(t, h.Purchase, http.MethodPost, `{}`, 10)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "plan is required", out["message"])
}

func TestAddMinutesEndpoint(t *testing.T) {
	svc, _ := newStubService()
	_, err := svc.CreateInitial(context.Background(), 10)
	require.NoError(t, err)
	h := NewSubscriptionHandler(svc)

	code, out := request(t, h.AddMinutes, http.MethodPost, `{"minutes":10}`, 10)
	assert.Equal(t, http.StatusOK, code)

	data := out["data"].(map[string]any)
	assert.Equal(t, 10.0, data["extra_minutes"])
	// Combined spendable balance: 2 plan minutes + 10 extra.
	assert.Equal(t, 12.0, data["available_minutes"])
	assert.Equal(t, float64(720), data["seconds"])
}

func TestAddMinutesEndpointRejectsNonPositive(t *testing.T) {
	svc, _ := newStubService()
	_, err := svc.CreateInitial(context.Background(), 10)
	require.NoError(t, err)
	h := NewSubscriptionHandler(svc)

	code, out := request(t, h.AddMinutes, http.MethodPost, `{"minutes":0}`, 10)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "minutes must be a positive number", out["message"])
}

func TestAddMinutesEndpointWithoutSubscription(t *testing.T) {
	svc, _ := newStubService()
	h := NewSubscriptionHandler(svc)

	code, out := request(t, h.AddMinutes, http.MethodPost, `{"minutes":5}`, 77)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no active subscription found", out["message"])
}

func TestGetEndpointDowngradesExpired(t *testing.T) {
	svc, ledgers := newStubService()
	_, err := svc.Purchase(context.Background(), 10, "Premium")
	require.NoError(t, err)

	cur := ledgers.subs[10]
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cur.EndDate = &past
	ledgers.subs[10] = cur

	h := NewSubscriptionHandler(svc)
	code, out := request(t, h.Get, http.MethodGet, "", 10)
	assert.Equal(t, http.StatusOK, code)

	data := out["data"].(map[string]any)
	assert.Equal(t, "Free", data["name"])
	assert.Equal(t, float64(120), data["seconds"])
}
