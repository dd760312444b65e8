package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	auth "github.com/neuronurture/go-auth"
	"github.com/neuronurture/go-auth/metrics"
	"github.com/neuronurture/go-auth/middleware/jwtware"
	"github.com/neuronurture/go-auth/redisstore"
	"github.com/neuronurture/go-auth/repository"
	"github.com/neuronurture/go-auth/social"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	zl, err := newLogger(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := zapLogger{s: zl.Sugar()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("auth server listening", "addr", cfg.Addr)
		errCh <- app.Listen(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down auth server")
	return app.ShutdownWithTimeout(10 * time.Second)
}

func build(ctx context.Context, cfg *Config, logger auth.Logger) (app *fiber.App, cleanup func(), err error) {
	var closers []func()
	cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer func() {
		if err != nil {
			cleanup()
			cleanup = nil
		}
	}()

	mngr, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closers = append(closers, func() { _ = mngr.Close() })

	if err := mngr.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Database.Migrate {
		if err := mngr.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	refreshStore := mngr.RefreshTokens()
	if cfg.RefreshStore == refreshStoreRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		refreshStore = redisstore.New(client, redisstore.WithPrefix(cfg.Redis.Prefix))
	}

	counter, err := metrics.NewActivityCounter(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}

	tokens, err := auth.NewTokenServiceFromConfig(cfg.Auth, logger)
	if err != nil {
		return nil, nil, err
	}

	refresh := auth.NewRefreshTokenManager(refreshStore, cfg.Auth.GetRefreshTokenTTL(),
		auth.WithRefreshTokenLogger(logger),
	)

	service := auth.NewCredentialService(mngr.Users(), refresh, tokens,
		auth.WithLogger(logger),
		auth.WithActivitySink(counter),
	)

	app = fiber.New(fiber.Config{
		AppName:               "authd",
		DisableStartupMessage: true,
	})

	app.Use(jwtware.New(jwtware.Config{
		TokenLookup:     cfg.Auth.GetTokenLookup(),
		AuthScheme:      cfg.Auth.GetAuthScheme(),
		ContextKey:      cfg.Auth.GetContextKey(),
		TokenValidator:  service,
		ContextEnricher: auth.WithSubject,
		ContextClearer:  auth.WithoutSubject,
		FailureListener: func(c *fiber.Ctx, err error) {
			reason, _ := auth.InvalidReasonOf(err)
			logger.Debug("access token rejected", "path", c.Path(), "reason", string(reason))
		},
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := mngr.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	opts := []auth.AuthControllerOption{
		auth.WithControllerLogger(logger),
		auth.WithCookie(cfg.Auth.GetCookieName(), cfg.Auth.GetCookieSecure()),
		auth.WithProtect(jwtware.RequireAuth(cfg.Auth.GetContextKey())),
		auth.WithDebug(cfg.Debug),
	}

	if cfg.OIDC.Enabled() {
		verifier, err := social.NewIDTokenVerifier(social.IDTokenVerifierConfig{
			Provider:  cfg.OIDC.Provider,
			Issuer:    cfg.OIDC.Issuer,
			Audience:  cfg.OIDC.Audience,
			JWKSetURL: cfg.OIDC.JWKSetURL,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, verifier.Close)

		provisioner := social.NewProvisioner(mngr.Users(), service,
			social.WithAccountRepository(mngr.SocialAccounts()),
			social.WithActivitySink(counter),
			social.WithLogger(logger),
		)
		opts = append(opts, auth.WithFederatedExchanger(social.NewExchanger(verifier, provisioner)))
	}

	auth.RegisterAuthRoutes(app, service, opts...)

	return app, cleanup, nil
}
