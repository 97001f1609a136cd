// lintgate API — приём trigger'ов и supervisor runs.
//
// API:
//   - Принимает trigger'ы (/api/v1/triggers, /webhooks/github)
//   - Допускает их в workflow и вытесняет активный run той же группы
//   - Рассылает run.pending и run.cancelled через RabbitMQ
//   - Принимает отчёты внешних worker'ов (/runs/{id}/start, /complete)
//
// С STORE=memory или INLINE_WORKER=true job'ы выполняются в этом же
// процессе, отмена доставляется напрямую.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/lintgate/internal/api"
	"github.com/shaiso/lintgate/internal/config"
	"github.com/shaiso/lintgate/internal/domain"
	"github.com/shaiso/lintgate/internal/mq"
	"github.com/shaiso/lintgate/internal/repo"
	"github.com/shaiso/lintgate/internal/retention"
	"github.com/shaiso/lintgate/internal/supervisor"
	"github.com/shaiso/lintgate/internal/telemetry"
	"github.com/shaiso/lintgate/internal/worker"
	"github.com/shaiso/lintgate/internal/workflow"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting lintgate-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
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
	go reloadOnHUP(ctx, workflows, logger)

	// Хранилище runs
	var store supervisor.Store
	var memStore *repo.MemoryRunRepo
	if cfg.Store == config.StoreMemory {
		memStore = repo.NewMemoryRunRepo()
		store = memStore
		logger.Info("using in-memory run store")
	} else {
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
		store = repo.NewRunRepo(pool)
		logger.Info("connected to database")
	}

	// RabbitMQ (только для общего хранилища: worker'ы в других процессах)
	var publisher *mq.Publisher
	if cfg.Store == config.StorePostgres {
		mqURL := cfg.RabbitMQURL
		if mqURL == "" {
			mqURL = mq.DefaultURL()
		}
		mqConn, err := mq.NewConnection(mqURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, workers will rely on polling", "error", err)
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
			logger.Info("RabbitMQ connected")
		}
	}

	// Отмена: локальные job'ы и удалённые worker'ы
	signals := supervisor.NewSignals(0)
	var cancellers supervisor.MultiCanceller
	if cfg.InlineWorker {
		cancellers = append(cancellers, signals)
	}
	if publisher != nil {
		cancellers = append(cancellers, publisher)
	}

	// Worker в процессе API связывается с supervisor'ом после создания обоих
	var w *worker.Worker
	var notifier supervisor.Notifier
	switch {
	case cfg.InlineWorker:
		notifier = supervisor.NotifierFunc(func(ctx context.Context, run *domain.Run) error {
			return w.RunPending(ctx, run)
		})
	case publisher != nil:
		notifier = publisher
	}

	sup := supervisor.New(supervisor.Config{
		Store:     store,
		Grouper:   workflows,
		Canceller: cancellers,
		Notifier:  notifier,
		Logger:    logger,
	})

	if cfg.InlineWorker {
		w = worker.New(worker.Config{
			Runs:        sup,
			Workflows:   workflows,
			Signals:     signals,
			RepoURL:     cfg.RepositoryURL,
			JobTimeout:  cfg.JobTimeout.Std(),
			Concurrency: cfg.WorkerConcurrency,
			Logger:      logger,
		})
		if err := w.Start(ctx); err != nil {
			logger.Error("failed to start worker", "error", err)
			os.Exit(1)
		}
		logger.Info("inline worker started")
	}

	// Хранилище в памяти чистится здесь же; для postgres — lintgate-retention
	if memStore != nil {
		janitor := retention.New(retention.Config{
			Store:  memStore,
			MaxAge: cfg.RetentionMaxAge.Std(),
			Logger: logger,
		})
		go func() {
			if err := janitor.Run(ctx, cfg.RetentionCron); err != nil {
				logger.Error("retention stopped", "error", err)
			}
		}()
	}

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Runs:          sup,
		Workflows:     workflows,
		WebhookSecret: cfg.WebhookSecret,
		Logger:        logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		fmt.Fprintf(rw, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := config.Addr(cfg.APIPort)

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Новые trigger'ы больше не принимаются; job'ы отчитываются до остановки worker'а
	sup.Stop()

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if w != nil {
		w.Stop()
	}

	logger.Info("stopped")
}

// reloadOnHUP перечитывает каталог workflow по SIGHUP.
func reloadOnHUP(ctx context.Context, workflows *workflow.Registry, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := workflows.Reload(); err != nil {
				logger.Error("workflow reload failed, keeping previous set", "error", err)
				continue
			}
			logger.Info("workflows reloaded", "count", len(workflows.List()))
		}
	}
}
