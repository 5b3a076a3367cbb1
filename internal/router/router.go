package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // the Echo web framework handles routing

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/handler"    // handlers implement the business logic
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/middleware" // JWT authentication and role enforcement
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/model"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/ws"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring systems use this endpoint to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.  The optional rateLimit
// middleware (nil when Redis is not configured) throttles the anonymous
// credential endpoints.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, rateLimit echo.MiddlewareFunc) {
	// Operations that do not require an existing session: register, login,
	// refresh and logout.  Each handler is responsible for generating or
	// exchanging tokens.
	g := e.Group("/v1/auth")
	if rateLimit != nil {
		g.Use(rateLimit)
	}
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token: the presented token is revoked and
	// a new pair is issued.
	g.POST("/refresh", a.Refresh)
	// Logout accepts a JSON body containing a `refresh_token` and
	// invalidates it.  A valid token yields 204.
	g.POST("/logout", a.Logout)

	// Routes registered on this group execute the JWTAuth middleware before
	// being invoked.  Protected endpoints live under /v1.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	// Returns the authenticated user's account plus the current
	// subscription snapshot.
	auth.GET("/me", a.Me)
}

// RegisterPlans exposes the public plan catalogue.  Guests can browse the
// available plans before registering, so no middleware is applied.
func RegisterPlans(e *echo.Echo, p *handler.PlanHandler) {
	e.GET("/v1/plans", p.ListActive)
}

// RegisterProfile registers the profile endpoints under the protected /v1
// group.  All of them require a valid access token.
func RegisterProfile(e *echo.Echo, p *handler.ProfileHandler, jwtSecret string) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	g.GET("/profile", p.Get)
	// Partial update: only the fields present in the body are touched.
	g.PATCH("/profile", p.Update)
	g.PUT("/profile/password", p.ChangePassword)
}

// RegisterSubscription registers the billing endpoints.  Every route reads
// the acting user from the JWT, so the whole group sits behind JWTAuth.
func RegisterSubscription(e *echo.Echo, s *handler.SubscriptionHandler, jwtSecret string) {
	g := e.Group("/v1/subscription")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	// Get runs an expiry check first so callers always see the
	// post-downgrade state.
	g.GET("", s.Get)
	g.POST("/purchase", s.Purchase)
	g.POST("/minutes", s.AddMinutes)
	g.POST("/check-expiry", s.CheckExpiry)
}

// RegisterCall registers the websocket endpoint that drives live call
// metering.  The gateway performs its own token check during the handshake
// (browsers cannot set headers on websocket upgrades, so the token may
// arrive as a query parameter), hence no JWT middleware here.
func RegisterCall(e *echo.Echo, g *ws.Gateway) {
	e.GET("/v1/call/ws", g.Handle)
}

// RegisterAdmin registers the operator endpoints.  Only accounts with the
// ADMIN role pass the role middleware.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleAdmin))
	g.POST("/plans", a.CreatePlan)
	g.PUT("/plans/:id", a.UpdatePlan)
	g.POST("/users/:id/suspend", a.Suspend)
	g.DELETE("/users/:id/suspend", a.Unsuspend)
}
