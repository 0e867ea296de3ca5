// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	accounthandler "memberd/internal/account/handler"
	accountservice "memberd/internal/account/service"
	accountstore "memberd/internal/account/store"
	"memberd/internal/admin"
	"memberd/internal/billing"
	"memberd/internal/credential"
	"memberd/internal/eventlog"
	"memberd/internal/jwttoken"
	"memberd/internal/mailer"
	"memberd/internal/platform/config"
	"memberd/internal/platform/database"
	"memberd/internal/platform/health"
	"memberd/internal/platform/logger"
	"memberd/internal/platform/metrics"
	platformredis "memberd/internal/platform/redis"
	"memberd/internal/ratelimit"
	"memberd/internal/ratelimit/cleanup"
	"memberd/internal/seeder"
	httptransport "memberd/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing memberd",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"database", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
		"billing", cfg.Billing.APIKey != "",
		"mail", cfg.Mail.APIKey != "",
	)

	m := metrics.New()
	healthHandler := health.New(cfg.Environment)

	// Persistence. Without DATABASE_URL everything runs in memory, which is
	// fine for local development but loses state on restart.
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	var accounts accountstore.Store
	var events eventlog.Store
	if pool != nil {
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
		accounts = accountstore.NewPostgresStore(pool.DB())
		events = eventlog.NewPostgresStore(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(checkCtx)
		})
	} else {
		log.Warn("no DATABASE_URL configured, using in-memory stores")
		accounts = accountstore.NewInMemoryStore()
		events = eventlog.NewInMemoryStore()
	}

	// Rate limiting. Redis gives a shared window across instances; the
	// in-process fallback needs a periodic sweep of stale buckets.
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}

	var limiter ratelimit.Limiter
	var sweeper *cleanup.Worker
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient.Client)
		healthHandler.RegisterCheck("redis", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(checkCtx)
		})
	} else {
		memLimiter := ratelimit.NewMemoryLimiter()
		limiter = memLimiter
		sweeper = cleanup.New(memLimiter, cleanup.WithLogger(log))
	}

	tokens := jwttoken.New(cfg.JWTSigningKey, cfg.PublicURL,
		jwttoken.WithSessionTTL(cfg.SessionTokenTTL),
		jwttoken.WithTypedTTLs(cfg.VerifyTokenTTL, cfg.ResetTokenTTL),
	)
	hasher := credential.NewHasher(cfg.PasswordHashSecret)
	recorder := eventlog.NewRecorder(events, eventlog.WithLogger(log))

	var mail mailer.Mailer = mailer.Disabled{}
	if cfg.Mail.APIKey != "" {
		mail = mailer.NewMailgun(cfg.Mail.APIKey, cfg.Mail.Domain, cfg.Mail.BaseURL, cfg.Mail.FromName)
	}

	var provider billing.Provider
	if cfg.Billing.APIKey != "" {
		provider = billing.NewClient(cfg.Billing.APIKey, cfg.Billing.BaseURL)
	}
	billingService := billing.New(accounts, provider, cfg.Billing.DefaultPriceID, cfg.PublicURL,
		billing.WithLogger(log),
		billing.WithMetrics(m),
	)

	accountService := accountservice.New(accounts, hasher, tokens, limiter, recorder,
		accountservice.WithLogger(log),
		accountservice.WithMetrics(m),
		accountservice.WithMailer(mail),
		accountservice.WithBilling(billingService),
	)
	adminService := admin.New(accounts, events, recorder, tokens, admin.WithLogger(log))

	if err := seeder.New(accounts, hasher, log).EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Accounts: accounthandler.New(accountService, accounthandler.WithLogger(log)),
		Admin:    admin.NewHandler(adminService, admin.WithHandlerLogger(log)),
		Billing: billing.NewHandler(billingService, cfg.Billing.WebhookSecret, recorder,
			billing.WithHandlerLogger(log),
			billing.WithHandlerMetrics(m),
		),
		Health:         healthHandler,
		SessionDecoder: tokens,
		TrustedProxies: cfg.TrustedProxies,
		Logger:         log,
		Metrics:        m,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if sweeper != nil {
		g.Go(func() error {
			if err := sweeper.Start(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
