package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Manny1440/DreamScapers/internal/api"
	"github.com/Manny1440/DreamScapers/internal/auth"
	"github.com/Manny1440/DreamScapers/internal/config"
	"github.com/Manny1440/DreamScapers/internal/database"
	"github.com/Manny1440/DreamScapers/internal/gemini"
	"github.com/Manny1440/DreamScapers/internal/generation"
	"github.com/Manny1440/DreamScapers/internal/ledger"
	mw "github.com/Manny1440/DreamScapers/internal/middleware"
	inats "github.com/Manny1440/DreamScapers/internal/nats"
	"github.com/Manny1440/DreamScapers/internal/quota"
	iredis "github.com/Manny1440/DreamScapers/internal/redis"
	"github.com/Manny1440/DreamScapers/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	checks := map[string]api.HealthCheck{}

	// Redis: quota counters and rate limiting
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

	quotaSvc := quota.NewService(quota.NewRedisStore(redisClient), quota.Options{
		Limit:     cfg.Quota.WeeklyLimit,
		Retention: cfg.Quota.Retention,
		Mode:      quota.Mode(cfg.Quota.Mode),
	})
	slog.Info("quota configured", "limit", quotaSvc.Limit(), "mode", quotaSvc.Mode(), "refund_on_failure", cfg.Quota.RefundOnFailure)

	// Upstream model; a missing key is not fatal
	var model generation.Model
	geminiClient, err := gemini.NewClient(ctx, cfg.Gemini, &http.Client{})
	switch {
	case err == nil:
		model = geminiClient
	case errors.Is(err, generation.ErrMissingCredential):
		slog.Warn("no image model API key configured, generate requests will fail")
	default:
		return err
	}

	// NATS: generation events (optional)
	var recorder generation.Recorder
	var natsClient *inats.Client
	if cfg.NATS.Enabled() {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			return err
		}
		defer natsClient.Close()
		recorder = inats.NewPublisher(natsClient.JetStream())
		checks["nats"] = func(context.Context) error {
			if !natsClient.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}

	// PostgreSQL: generation ledger (optional)
	var ledgerRepo *ledger.Repository
	if cfg.DB.Enabled {
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
			return err
		}
		pool, err := database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer pool.Close()
		ledgerRepo = ledger.NewRepository(pool)
		checks["database"] = func(ctx context.Context) error { return database.HealthCheck(ctx, pool) }

		if natsClient != nil {
			consumer := ledger.NewConsumer(ledgerRepo, inats.NewConsumerManager(natsClient.JetStream()))
			go func() {
				if err := consumer.Start(ctx); err != nil {
					slog.Error("ledger consumer stopped", "error", err)
				}
			}()
		}
	}

	// Gateway
	genSvc := generation.NewService(model, quotaSvc, recorder, generation.Options{
		Timeout:         cfg.Gemini.Timeout,
		RefundOnFailure: cfg.Quota.RefundOnFailure,
	})
	genHandler := generation.NewHandler(genSvc, cfg.HTTP.MaxBodyBytes)
	quotaHandler := quota.NewHandler(quotaSvc)

	handlers := api.HandlerSet{
		Generate: genHandler.Generate,
		GetQuota: quotaHandler.GetQuota,
	}

	if cfg.HTTP.RateLimit > 0 {
		limiter := mw.NewRateLimiter(redisClient, "generate", cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
		handlers.GenerateRateLimiter = limiter.Middleware
	}

	if cfg.Auth.Enabled() {
		tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
		handlers.OptionalAuth = auth.Optional(tokens)
		handlers.RequiredAuth = auth.Required(tokens)
		if ledgerRepo != nil {
			handlers.ListGenerations = ledger.NewHandler(ledgerRepo).ListGenerations
		}
	}

	router := api.NewRouter(api.RouterConfig{
		CORS: mw.CORS(cfg.HTTP.CORSAllowedOrigins),
		Middleware: api.Middleware{
			RequestID:       mw.RequestID,
			SecurityHeaders: mw.SecurityHeaders,
			Logging:         mw.Logging,
			Recovery:        mw.Recovery,
			Metrics:         mw.Metrics,
		},
		HealthChecks: checks,
	}, handlers)

	return server.New(cfg.Server, router).Run(ctx)
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
