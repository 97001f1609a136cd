// lintgate Worker — выполняет lint job'ы.
//
// Worker:
//   - Получает run.pending из RabbitMQ (или находит PENDING runs через polling)
//   - Делает checkout и запускает линтер лицензий
//   - Останавливает job по run.cancelled
//   - Записывает результат в общее хранилище runs
//
// Workers масштабируются горизонтально.
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
	"github.com/shaiso/lintgate/internal/mq"
	"github.com/shaiso/lintgate/internal/repo"
	"github.com/shaiso/lintgate/internal/supervisor"
	"github.com/shaiso/lintgate/internal/telemetry"
	"github.com/shaiso/lintgate/internal/worker"
	"github.com/shaiso/lintgate/internal/workflow"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting lintgate-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Store != config.StorePostgres {
		logger.Error("standalone worker needs the postgres store; use INLINE_WORKER with lintgate-api instead")
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	workflows, err := workflow.New(workflow.Config{
		Dir:     cfg.WorkflowsDir,
		Default: workflow.Default(cfg.WorkflowName, cfg.TargetBranch, cfg.LintCommand),
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to load workflows", "error", err)
		os.Exit(1)
	}

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Переходы статусов — через supervisor поверх общего хранилища
	sup := supervisor.New(supervisor.Config{
		Store:  repo.NewRunRepo(pool),
		Logger: logger,
	})

	// RabbitMQ
	mqURL := cfg.RabbitMQURL
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
	}

	// Создаём worker
	w := worker.New(worker.Config{
		Runs:        sup,
		Workflows:   workflows,
		RepoURL:     cfg.RepositoryURL,
		Conn:        mqConn,
		JobTimeout:  cfg.JobTimeout.Std(),
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.WorkerPort)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker
	w.Stop()
	_ = server.Close()
	logger.Info("lintgate-worker stopped")
}
