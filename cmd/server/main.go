package main // Entry point package

import (
	"context"
	"log" // Logging library
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4" // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/config"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/database"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/handler"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/metering"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/middleware"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/queue"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/repository"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/router"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/service"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/session"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/ws"
)

func main() {
	// .env is optional: in containers the variables come from the
	// environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	userRepo := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)
	planRepo := repository.NewPlanRepo(db)
	subRepo := repository.NewSubscriptionRepo(db)

	// Seed the three plan templates so a fresh database can serve
	// registrations immediately.
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := planRepo.SeedDefaults(seedCtx); err != nil {
		log.Fatalf("seed plans: %v", err)
	}
	cancelSeed()

	subService := service.NewSubscriptionService(planRepo, subRepo, userRepo)

	// One registry per process: a second call attempt for a user replaces
	// the first, and shutdown drains every live timer before exit.
	registry := session.NewRegistry()
	engine := metering.NewEngine(subRepo, registry, metering.SystemClock{}, service.CallEventPublisher{})

	gateway := ws.NewGateway(cfg.JWTSecret, cfg.ClientURL, userRepo, subService, engine)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	if cfg.ClientURL != "" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     []string{cfg.ClientURL},
			AllowCredentials: true,
		}))
	}

	// The limiter degrades to a pass-through when Redis is unreachable or
	// rate limiting is disabled, so a missing Redis never blocks startup.
	rlCfg := config.LoadRateLimitConfig()
	rdb := config.NewRedisClient()
	rateLimit := middleware.NewTokenBucket(rlCfg, rdb)

	authHandler := handler.NewAuthHandler(cfg, userRepo, tokenRepo, subService)
	profileHandler := handler.NewProfileHandler(cfg, userRepo, subService)
	subHandler := handler.NewSubscriptionHandler(subService)
	planHandler := handler.NewPlanHandler(planRepo)
	adminHandler := handler.NewAdminHandler(planRepo, userRepo)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler, cfg.JWTSecret, rateLimit)
	router.RegisterPlans(e, planHandler)
	router.RegisterProfile(e, profileHandler, cfg.JWTSecret)
	router.RegisterSubscription(e, subHandler, cfg.JWTSecret)
	router.RegisterCall(e, gateway)
	router.RegisterAdmin(e, adminHandler, cfg.JWTSecret)

	// The consumer mirrors every call.ended event to an audit log.  It
	// reconnects on its own; a missing broker only costs the audit trail.
	go func() {
		if err := queue.StartCallConsumer(); err != nil {
			log.Printf("call consumer: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	go func() {
		if err := e.Start(addr); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	// Wait for a termination signal, then drain live call sessions so every
	// in-flight call reconciles its ledger before the process exits.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	registry.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
