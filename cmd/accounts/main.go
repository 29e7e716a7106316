package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkayan/accounts/internal/api"
	"github.com/getkayan/accounts/internal/config"
	"github.com/getkayan/accounts/internal/ephemeral"
	"github.com/getkayan/accounts/internal/flow"
	"github.com/getkayan/accounts/internal/health"
	"github.com/getkayan/accounts/internal/logger"
	"github.com/getkayan/accounts/internal/mail"
	"github.com/getkayan/accounts/internal/persistence"
	"github.com/getkayan/accounts/internal/session"
	"github.com/getkayan/accounts/internal/tasks"
	"github.com/getkayan/accounts/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Error("accounts service stopped", zap.Error(err))
		logger.Log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Info("Starting accounts service",
		zap.String("version", version),
		zap.String("addr", cfg.Addr()),
		zap.String("db_type", cfg.DBType),
	)

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	storage, err := persistence.NewStorage(cfg.DBType, cfg.DSN, persistence.Options{SkipAutoMigrate: cfg.SkipAutoMigrate})
	if err != nil {
		return err
	}
	defer storage.Close()

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return err
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	// The ephemeral datasets are useless without redis, fail fast.
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	// Managers
	store := ephemeral.NewRedisStore(rdb)
	emails := flow.NewEmailDataset(store)
	captchas := flow.NewCaptchaManager(flow.NewCaptchaDataset(store))
	hasher := flow.NewBcryptHasher(cfg.BcryptCost)
	sessions := session.NewManager(rdb, cfg.Session.TTL)
	mailer := mail.NewLogMailer(logger.Log.Named("mail"))

	registration := flow.NewRegistrationManager(storage, emails, captchas, hasher, mailer, cfg.BaseURL)
	registration.SetTelemetry(tp)
	login := flow.NewLoginManager(storage, storage, hasher)
	login.SetTelemetry(tp)

	h := api.NewHandler(api.Managers{
		Captcha:      captchas,
		Registration: registration,
		Login:        login,
		Recovery:     flow.NewRecoveryManager(storage, emails, captchas, hasher, sessions, mailer, cfg.BaseURL),
		Update:       flow.NewUpdateManager(storage, hasher),
		Deletion:     flow.NewDeletionManager(storage, storage, hasher, sessions, mailer, cfg.BaseURL, cfg.AccountDeletion.GracePeriod),
	}, sessions, storage, cfg.Session.CookieName)

	registry := tasks.NewRegistry()

	hm := health.NewManager(version, 5*time.Second)
	hm.Register(health.NewPingChecker("database", storage.Ping))
	hm.Register(health.NewPingChecker("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	hm.Register(health.NewPingChecker("tasks", registry.Check))

	e := api.NewServer(api.ServerConfig{
		Host:          cfg.Host,
		Port:          cfg.Port,
		RatePerSecond: cfg.RateLimit.PerSecond,
		RateBurst:     cfg.RateLimit.Burst,
		Logger:        logger.Log.Named("http"),
		Health:        hm,
		Metrics:       tp.Handler(),
	}, h)

	return tasks.Supervise(ctx, logger.Log,
		registry.Track(tasks.Task{
			Name: "server",
			Run:  func(ctx context.Context) error { return serve(ctx, e, cfg) },
		}),
		registry.Track(fieldsDeletion("task1 (redis deletion: email confirm)", store, cfg.TaskEmailConfirm, ephemeral.DatasetEmail)),
		registry.Track(fieldsDeletion("task1 (redis deletion: captcha)", store, cfg.TaskCaptcha, ephemeral.DatasetCaptcha)),
		registry.Track(tasks.Task{
			Name: "task2 (account purge)",
			Run: (&tasks.AccountPurge{
				Store:       storage,
				GracePeriod: cfg.AccountDeletion.GracePeriod,
				Interval:    cfg.AccountDeletion.ScanInterval,
				Logger:      logger.Task("task2 (account purge)"),
			}).Run,
		}),
	)
}

func fieldsDeletion(name string, store ephemeral.HashStore, settings config.TaskSettings, hash string) tasks.Task {
	return tasks.Task{
		Name: name,
		Run: func(ctx context.Context) error {
			return tasks.StartFieldsDeletion(ctx, store, settings, hash, logger.Task(name))
		},
	}
}

// serve runs the HTTP server until it fails or ctx is done.
func serve(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	errc := make(chan error, 1)
	go func() {
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			errc <- e.StartTLS(cfg.Addr(), cfg.TLSCertFile, cfg.TLSKeyFile)
			return
		}
		logger.Log.Warn("TLS is not configured, serving plain HTTP")
		errc <- e.Start(cfg.Addr())
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
