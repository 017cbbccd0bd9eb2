package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"shiftdesk.org/internal/attempts"
	"shiftdesk.org/internal/auth"
	"shiftdesk.org/internal/config"
	"shiftdesk.org/internal/httpapi"
	"shiftdesk.org/internal/obs"
	"shiftdesk.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, warnings, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	for _, warning := range warnings {
		log.Printf("config warning: %s", warning)
	}

	// Persistence: PostgreSQL when a DSN is configured, in-memory
	// otherwise (single-node development only).
	var (
		db          *sql.DB
		store       auth.Store
		attemptsLog attempts.Store
	)
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
		attemptsLog = attempts.NewPGStore(db)
	} else {
		log.Printf("no SHIFTDESK_PG_DSN set, using in-memory stores")
		store = auth.NewMemoryStore()
		attemptsLog = attempts.NewInMemory()
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	events := stream.New()
	svc, err := auth.NewService(store, attemptsLog, tokens,
		auth.WithEvents(events),
		auth.WithLockoutPolicy(cfg.MaxFailedAttempts, cfg.LockoutDuration),
		auth.WithRatePolicy(cfg.RateLimitWindow, cfg.RateLimitMax),
		auth.WithPasswordPolicy(cfg.PasswordMinLength, cfg.BcryptCost),
		auth.WithTempPasswordEcho(!cfg.IsProduction()),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Auth:       svc,
		Events:     events,
		Version:    version,
		RateBurst:  cfg.HTTPRateBurst,
		RatePerSec: cfg.HTTPRatePerSec,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting shiftdesk-api %s on %s (env=%s)", version, srv.Addr, cfg.Env)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
