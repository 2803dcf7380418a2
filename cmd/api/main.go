package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"routeeta/internal/api"
	"routeeta/internal/auth"
	"routeeta/internal/config"
	"routeeta/internal/engine"
	"routeeta/internal/metrics"
	"routeeta/internal/store"
	"routeeta/internal/webhooks"
)

var interruptSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
	syscall.SIGINT,
}

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), interruptSignals...)
	defer stop()

	opts := engine.DefaultOptions()
	if cfg.EngineProfile != "" {
		opts, err = config.LoadEngineProfile(cfg.EngineProfile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.EngineProfile).Msg("cannot load engine profile")
		}
	}
	eng, err := engine.New(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid engine options")
	}

	st, closeStore := openStore(cfg)
	defer closeStore()

	broker, closeBroker := openBroker(ctx, cfg)
	defer closeBroker()

	metrics.RegisterDefault()

	limiter := api.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	if limiter != nil {
		// Validate already parsed the list.
		limiter.TrustedProxies, _ = cfg.TrustedProxyPrefixes()
	}
	srv := api.NewServer(api.Deps{
		Store:  st,
		Engine: eng,
		Broker: broker,
		Auth: auth.NewVerifier(auth.Config{
			Mode:        cfg.AuthMode,
			HMACSecret:  cfg.AuthHMACSecret,
			JWKSURL:     cfg.AuthJWKSURL,
			TenantClaim: cfg.AuthTenantClaim,
			RoleClaim:   cfg.AuthRoleClaim,
			DriverClaim: cfg.AuthDriverClaim,
		}),
		Publisher:   webhooks.NewPublisher(st),
		Limiter:     limiter,
		OpenAPIPath: cfg.OpenAPIPath,
		Settings:    settings(cfg),
	})

	waitGroup, ctx := errgroup.WithContext(ctx)
	runHTTPServer(ctx, waitGroup, cfg, srv.Routes())
	waitGroup.Go(func() error {
		return webhooks.NewWorker(st, cfg.WebhookMaxAttempts).Run(ctx)
	})
	if limiter != nil {
		waitGroup.Go(func() error { return limiter.Run(ctx) })
	}

	if err := waitGroup.Wait(); err != nil {
		log.Fatal().Err(err).Msg("error from wait group")
	}
}

func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Development() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// openStore selects Postgres when DATABASE_URL is set, else the in-memory store.
func openStore(cfg config.Config) (store.Store, func()) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Info().Msg("using in-memory store")
		return store.NewMemory(), func() {}
	}
	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot connect to db")
	}
	if cfg.DBMigrate {
		if err := pg.MigrateDir(cfg.MigrationsDir); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.MigrationsDir).Msg("failed to run migrate up")
		}
		log.Info().Msg("db migrated successfully")
	}
	return pg, func() { _ = pg.Close() }
}

// openBroker uses Redis pub/sub when REDIS_URL is set so every replica sees
// route updates; it falls back to the in-process broker if Redis is unreachable.
func openBroker(ctx context.Context, cfg config.Config) (api.EventBroker, func()) {
	if cfg.RedisURL == "" {
		return api.NewBroker(), func() {}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rb, err := api.NewRedisBroker(pingCtx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process broker")
		return api.NewBroker(), func() {}
	}
	return rb, func() { _ = rb.Close() }
}

func settings(cfg config.Config) map[string]any {
	return map[string]any{
		"ENVIRONMENT":          cfg.Environment,
		"HTTP_ADDR":            cfg.HTTPAddr,
		"AUTH_MODE":            cfg.AuthMode,
		"RATE_RPS":             cfg.RateRPS,
		"RATE_BURST":           cfg.RateBurst,
		"TRUSTED_PROXIES":      cfg.TrustedProxies,
		"WEBHOOK_MAX_ATTEMPTS": cfg.WebhookMaxAttempts,
		"ENGINE_PROFILE":       cfg.EngineProfile,
		"HAS_DATABASE_URL":     cfg.DatabaseURL != "",
		"HAS_REDIS_URL":        cfg.RedisURL != "",
	}
}

func runHTTPServer(ctx context.Context, waitGroup *errgroup.Group, cfg config.Config, h http.Handler) {
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	waitGroup.Go(func() error {
		log.Info().Msgf("start HTTP server at %s", server.Addr)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed to serve")
			return err
		}
		return nil
	})

	waitGroup.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("graceful shutdown HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown HTTP server")
			return err
		}
		log.Info().Msg("HTTP server is stopped")
		return nil
	})
}
