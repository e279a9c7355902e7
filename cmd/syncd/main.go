package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nselenduna/inventory-sales-app/internal/cache"
	"github.com/Nselenduna/inventory-sales-app/internal/config"
	"github.com/Nselenduna/inventory-sales-app/internal/httpapi"
	"github.com/Nselenduna/inventory-sales-app/internal/jobs"
	"github.com/Nselenduna/inventory-sales-app/internal/lease"
	"github.com/Nselenduna/inventory-sales-app/internal/logger"
	"github.com/Nselenduna/inventory-sales-app/internal/metrics"
	"github.com/Nselenduna/inventory-sales-app/internal/network"
	"github.com/Nselenduna/inventory-sales-app/internal/remote"
	memremote "github.com/Nselenduna/inventory-sales-app/internal/remote/memory"
	"github.com/Nselenduna/inventory-sales-app/internal/remote/pgremote"
	"github.com/Nselenduna/inventory-sales-app/internal/remote/postgrest"
	"github.com/Nselenduna/inventory-sales-app/internal/service"
	"github.com/Nselenduna/inventory-sales-app/internal/store"
	"github.com/Nselenduna/inventory-sales-app/internal/store/memory"
	"github.com/Nselenduna/inventory-sales-app/internal/store/sqlite"
	"github.com/Nselenduna/inventory-sales-app/internal/syncer"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	root := logger.New(logger.Config{Env: cfg.Env, Level: cfg.LogLevel})
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		root.Warn().Err(envErr).Msg("could not read .env")
	}

	if err := run(cfg, root); err != nil {
		root.Fatal().Err(err).Msg("syncd stopped")
	}
}

func run(cfg config.Config, root zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closers := make([]func() error, 0, 4)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				root.Warn().Err(err).Msg("close error")
			}
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, err := openStore(startCtx, cfg)
	if err != nil {
		return err
	}
	closers = append(closers, repo.Close)
	root.Info().Str("store", cfg.StoreBackend).Msg("local store ready")

	client, closeRemote, err := openRemote(startCtx, cfg)
	if err != nil {
		return err
	}
	if closeRemote != nil {
		closers = append(closers, closeRemote)
	}
	root.Info().Str("remote", cfg.RemoteBackend).Msg("remote client ready")

	reg := metrics.New()
	monitor := network.NewMonitor(cfg.StartOnline)
	reg.SetOnline(monitor.IsOnline())
	monitor.Subscribe(reg.SetOnline)
	prober := network.NewProber(client, monitor, cfg.ProbeInterval, cfg.ProbeTimeout, logger.Component(root, "network"))
	prober.Seed(startCtx)

	var (
		reports     cache.ReportCache = cache.NewMemoryReportCache()
		syncLease   syncer.Lease      = lease.Noop{}
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := redisClient.Ping(startCtx).Err(); err != nil {
			root.Warn().Err(err).Msg("redis unavailable, using in-process report cache and no lease")
			_ = redisClient.Close()
			redisClient = nil
		} else {
			closers = append(closers, redisClient.Close)
			reports = cache.NewRedisReportCache(redisClient, cfg.ShopID, cfg.ReportTTL)
			syncLease = lease.NewRedis(redisClient, lease.ReconcileKey(cfg.ShopID), cfg.LeaseTTL)
			root.Info().Str("addr", cfg.RedisAddr).Msg("redis report cache and reconcile lease enabled")
		}
	}

	engine := syncer.New(repo, client, monitor, syncer.Options{
		Lease:   syncLease,
		Reports: reports,
		Metrics: reg,
		Logger:  logger.Component(root, "syncer"),
	})
	unwatch := engine.Watch(ctx)
	defer unwatch()

	svc := service.New(repo, logger.Component(root, "service"))
	api := httpapi.New(svc, engine, monitor, httpapi.Options{
		SyncRateLimit: cfg.SyncRateLimit,
		Reports:       reports,
		Metrics:       reg,
		Logger:        logger.Component(root, "http"),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go prober.Run(ctx)

	if redisClient != nil {
		worker, err := newWorker(cfg, engine, logger.Component(root, "jobs"))
		if err != nil {
			return err
		}
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				root.Error().Err(err).Msg("background worker stopped")
			}
		}()
	}

	// The first cycle covers records written while the process was down.
	if monitor.IsOnline() {
		engine.ReconcileInBackground(ctx)
	}

	serverErr := make(chan error, 1)
	go func() {
		root.Info().Str("addr", cfg.Address()).Msg("syncd listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		root.Warn().Err(err).Msg("shutdown error")
	}
	unwatch()
	engine.Wait()
	root.Info().Msg("syncd stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Repository, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.StoreMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// openRemote builds the remote client and, when it holds resources, the
// function that releases them.
func openRemote(ctx context.Context, cfg config.Config) (remote.Client, func() error, error) {
	switch cfg.RemoteBackend {
	case config.RemotePostgREST:
		client, err := postgrest.New(postgrest.Config{
			BaseURL:   cfg.RemoteURL,
			JWTSecret: cfg.RemoteJWTSecret,
			Role:      cfg.RemoteRole,
			APIKey:    cfg.RemoteAPIKey,
			TokenTTL:  cfg.RemoteTokenTTL,
			Timeout:   cfg.RemoteTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	case config.RemotePostgres:
		client, err := pgremote.New(ctx, cfg.RemoteDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.RemoteAutoSchema {
			if err := client.EnsureSchema(ctx); err != nil {
				_ = client.Close()
				return nil, nil, err
			}
		}
		return client, client.Close, nil
	case config.RemoteMemory:
		return memremote.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote backend %q", cfg.RemoteBackend)
	}
}

func newWorker(cfg config.Config, engine *syncer.Engine, log zerolog.Logger) (*jobs.Worker, error) {
	job := jobs.NewReconcileJob(engine, cfg.ShopID, log)
	wc := jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    log,
		Handlers:  []jobs.TaskHandler{{Type: jobs.TaskReconcile, Handler: job.Handle}},
	}
	if cfg.BackgroundSyncCron != "" {
		task, err := jobs.NewReconcileTask(cfg.ShopID, "cron")
		if err != nil {
			return nil, err
		}
		wc.Cron = append(wc.Cron, jobs.CronRegistration{Spec: cfg.BackgroundSyncCron, Task: task})
	}
	return jobs.NewWorker(wc)
}
