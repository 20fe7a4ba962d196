package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/dailyboard/internal/adapters/http/api"
	"github.com/okian/dailyboard/internal/adapters/http/swagger"
	"github.com/okian/dailyboard/internal/adapters/redisconn"
	"github.com/okian/dailyboard/internal/adapters/repository"
	app "github.com/okian/dailyboard/internal/app"
	"github.com/okian/dailyboard/internal/config"
	"github.com/okian/dailyboard/internal/domain/daily"
	"github.com/okian/dailyboard/pkg/logger"
	"github.com/okian/dailyboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Stderr.WriteString("dailyboard: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("backend", cfg.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildService selects the ranking backend and wires the service around it.
func buildService(ctx context.Context, cfg *config.Config) (*app.Service, error) {
	loc, err := daily.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	policy := daily.NewPolicy(daily.SystemClock{}, loc)

	opts := []app.Option{
		app.WithLogger(logger.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithEventTimeout(time.Duration(cfg.EventTimeoutMS) * time.Millisecond),
	}

	switch cfg.Backend {
	case config.BackendRedis:
		conn, err := redisconn.Open(ctx, cfg.RedisURL,
			redisconn.WithMaxInflight(cfg.RedisMaxInflight),
			redisconn.WithCommandTimeout(time.Duration(cfg.RedisCommandTimeoutMS)*time.Millisecond),
		)
		if err != nil {
			return nil, fmt.Errorf("connect backing store: %w", err)
		}
		store := repository.NewRedisStore(conn,
			repository.WithPolicy(policy),
			repository.WithKeyPrefix(cfg.RedisKeyPrefix),
		)
		opts = append(opts,
			app.WithStore(store, config.BackendRedis),
			app.WithScorecards(repository.NewRedisScorecards(conn)),
		)
	case config.BackendMemory:
		opts = append(opts,
			app.WithStore(repository.NewTreapStore(ctx, repository.WithPolicy(policy)), config.BackendMemory),
			app.WithScorecards(repository.NewMemoryScorecards()),
		)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
	return app.New(opts...), nil
}

// newHandler builds the full route table: business API plus docs.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, api.WithMaxLimit(cfg.MaxLeaderboardLimit)).Register(ctx, mux)
	return api.RequestIDMiddleware(mux)
}

func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
