package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
	"github.com/hackgods/telehealth-scheduling/internal/mail"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
	"github.com/hackgods/telehealth-scheduling/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalLogger := logging.New("prod", "report-worker")
		fatalLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "report-worker")
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("report-worker stopped")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("run_timeout", cfg.WorkerRunTimeout).
		Str("metrics_port", cfg.WorkerMetricsPort).
		Msg("report worker starting up")

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

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	loc, err := report.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		return err
	}

	collector := metrics.New()
	executor := report.NewExecutor(
		report.NewPgRepository(pgPool),
		report.NewPgDataSource(pgPool),
		report.NewCalculator(loc, time.Now),
		executorOptions(cfg, rdb, collector, logger),
	)

	srv := newMetricsServer(cfg.WorkerMetricsPort, collector)

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		// Run once at startup
		runOnce(gctx, executor, cfg.WorkerRunTimeout, logger)

		ticker := time.NewTicker(cfg.WorkerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				logger.Info().Msg("shutdown signal received, stopping report worker")
				return nil
			case <-ticker.C:
				runOnce(gctx, executor, cfg.WorkerRunTimeout, logger)
			}
		}
	})

	return g.Wait()
}

func executorOptions(cfg config.Config, rdb *redis.Client, collector *metrics.Collector, logger zerolog.Logger) report.ExecutorOptions {
	return report.ExecutorOptions{
		Mailer: mail.New(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, logger),
		SendTimeout: cfg.SMTP.SendTimeout,
		// a schedule lock outlives a whole poll so a slow run is never picked up twice
		Locker:  redisclient.NewRedisKeyLocker(rdb, cfg.WorkerRunTimeout),
		Pusher:  notify.NewRedisPusher(rdb, logger),
		Metrics: collector,
		Logger:  logger,
	}
}

func newMetricsServer(port string, collector *metrics.Collector) *http.Server {
	r := chi.NewRouter()
	r.Get("/metrics", collector.Handler().ServeHTTP)
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func runOnce(ctx context.Context, executor *report.Executor, timeout time.Duration, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	summary, err := executor.ProcessDue(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("report run error")
		return
	}
	if summary.Due == 0 {
		logger.Debug().Dur("took", time.Since(start)).Msg("no reports due")
		return
	}
	logger.Info().
		Int("due", summary.Due).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("took", time.Since(start)).
		Msg("report run complete")
}
