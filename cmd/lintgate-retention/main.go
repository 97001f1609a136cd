// lintgate Retention — архивирует финальные runs по расписанию.
//
// Можно запускать несколько экземпляров: работает тот, кто держит
// pg_try_advisory_lock, остальные пропускают тики.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/lintgate/internal/config"
	"github.com/shaiso/lintgate/internal/repo"
	"github.com/shaiso/lintgate/internal/retention"
	"github.com/shaiso/lintgate/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting lintgate-retention")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Store != config.StorePostgres {
		logger.Error("retention service needs the postgres store; the in-memory store is cleaned by lintgate-api")
		os.Exit(1)
	}
	if err := retention.ValidateSchedule(cfg.RetentionCron); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("db connected")

	janitor := retention.New(retention.Config{
		Store:  repo.NewRunRepo(pool),
		Leader: retention.NewPGLeader(pool, retention.LockKey),
		MaxAge: cfg.RetentionMaxAge.Std(),
		Logger: logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.RetentionPort)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http error", "error", err)
			cancel()
		}
	}()

	if err := janitor.Run(ctx, cfg.RetentionCron); err != nil {
		logger.Error("retention failed", "error", err)
	}

	_ = server.Close()
	logger.Info("lintgate-retention stopped")
}
