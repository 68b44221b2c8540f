package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telehealth-scheduling/internal/api"
	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
	"github.com/hackgods/telehealth-scheduling/internal/mail"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
	"github.com/hackgods/telehealth-scheduling/internal/report"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalLogger := logging.New("prod", "api-server")
		fatalLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "api-server")
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("api-server stopped")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	if cfg.MigrateOnStart {
		if err := db.Migrate(rootCtx, pgPool, logger); err != nil {
			return err
		}
	}

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	clinicLoc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		return err
	}
	reportLoc, err := report.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		return err
	}

	collector := metrics.New()
	pusher := notify.NewRedisPusher(rdb, logger)

	schedSvc := scheduling.NewService(
		scheduling.NewPgRepository(pgPool),
		redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL),
		scheduling.Options{
			Location: clinicLoc,
			Pusher:   pusher,
			Metrics:  collector,
			Logger:   logger.With().Str("component", "scheduling").Logger(),
		},
	)

	reportLogger := logger.With().Str("component", "reports").Logger()
	calc := report.NewCalculator(reportLoc, time.Now)
	reportRepo := report.NewPgRepository(pgPool)
	executor := report.NewExecutor(reportRepo, report.NewPgDataSource(pgPool), calc, report.ExecutorOptions{
		Mailer:      mail.New(smtpConfig(cfg), reportLogger),
		SendTimeout: cfg.SMTP.SendTimeout,
		Pusher:      pusher,
		Metrics:     collector,
		Logger:      reportLogger,
	})
	reportSvc := report.NewService(reportRepo, executor, calc, reportLogger)

	router := api.NewRouter(api.RouterConfig{
		Scheduling: schedSvc,
		Reports:    reportSvc,
		Verifier:   auth.NewTokenVerifier(cfg.JWTSecret),
		Health: api.NewHealthHandler(pgPool, api.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}), cfg.Env, version),
		Metrics: collector.Handler(),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func smtpConfig(cfg config.Config) mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}
}
