package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
	"github.com/shaiso/lintgate/internal/mq"
	"github.com/shaiso/lintgate/internal/supervisor"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultConcurrency  = 4
)

// Runs — операции supervisor'а, нужные worker'у.
type Runs interface {
	Start(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	Complete(ctx context.Context, id uuid.UUID, res domain.Result) (*domain.Run, error)
	Pending(ctx context.Context, limit int) ([]*domain.Run, error)
}

// Workflows — источник определений workflow.
type Workflows interface {
	Get(name string) (*domain.Workflow, error)
}

// Worker выполняет lint job'ы для PENDING runs.
//
// Worker:
//   - Получает run.pending из RabbitMQ (event-driven) или через RunPending
//     в однопроцессном режиме
//   - Периодически проверяет PENDING runs (polling fallback)
//   - Переводит run в RUNNING, выполняет шаги workflow, сообщает результат
//   - Останавливает job при получении run.cancelled
//
// Несколько worker'ов конкурируют за runs: Start переводит run
// в RUNNING под блокировкой, проигравший получает ErrIllegalTransition.
type Worker struct {
	runs      Runs
	workflows Workflows
	signals   *supervisor.Signals
	registry  *Registry

	// MQ (опционально)
	conn *mq.Connection

	// Consumers
	pendingConsumer *mq.Consumer
	cancelConsumer  *mq.Consumer

	// Configuration
	workDir      string
	jobTimeout   time.Duration
	pollInterval time.Duration
	batchSize    int
	slots        chan struct{}

	// Lifecycle
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Runs      Runs
	Workflows Workflows

	// Signals — реестр отмены. Если nil, создаётся собственный.
	Signals *supervisor.Signals

	// Registry — executor'ы (если nil — NewRegistry(nil, RepoURL)).
	Registry *Registry

	// RepoURL — репозиторий для шага checkout.
	RepoURL string

	// Conn — RabbitMQ. Если nil, worker работает только на polling и RunPending.
	Conn *mq.Connection

	// WorkDir — родительский каталог рабочих каталогов (default: os.TempDir()).
	WorkDir string

	// JobTimeout — таймаут job, если workflow не задаёт timeout-minutes.
	JobTimeout time.Duration

	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // runs за один poll (default: 50)
	Concurrency  int           // одновременных job'ов (default: 4)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(nil, cfg.RepoURL)
	}

	signals := cfg.Signals
	if signals == nil {
		signals = supervisor.NewSignals(0)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		runs:         cfg.Runs,
		workflows:    cfg.Workflows,
		signals:      signals,
		registry:     registry,
		conn:         cfg.Conn,
		workDir:      cfg.WorkDir,
		jobTimeout:   cfg.JobTimeout,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		slots:        make(chan struct{}, concurrency),
		logger:       logger.With("component", "worker"),
		ctx:          ctx,
		cancelFunc:   cancel,
	}
}

// Signals возвращает реестр отмены worker'а.
// В однопроцессном режиме он же передаётся supervisor'у как Canceller.
func (w *Worker) Signals() *supervisor.Signals {
	return w.signals
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для lintgate.runs.pending и lintgate.cancel (если есть Conn)
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			w.cancelFunc()
		case <-w.ctx.Done():
		}
	}()
	ctx = w.ctx

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"concurrency", cap(w.slots),
		"mq", w.conn != nil,
	)

	if w.conn != nil {
		w.pendingConsumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueRunsPending),
			Handler:  w.handleRunPending,
			Prefetch: cap(w.slots),
		})
		w.cancelConsumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Broadcast: mq.ExchangeCancel,
			Handler:   w.handleRunCancelled,
			Prefetch:  50,
		})

		for _, c := range []*mq.Consumer{w.pendingConsumer, w.cancelConsumer} {
			w.wg.Add(1)
			go func(c *mq.Consumer) {
				defer w.wg.Done()
				if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					w.logger.Error("consumer error", "error", err)
				}
			}(c)
		}
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения job'ов.
// Выполняющиеся job'ы прерываются и отчитываются как INFRASTRUCTURE_ERROR.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	w.cancelFunc()

	if w.pendingConsumer != nil {
		w.pendingConsumer.Stop()
	}
	if w.cancelConsumer != nil {
		w.cancelConsumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// RunPending реализует supervisor.Notifier для однопроцессного режима:
// run берётся в работу сразу, без брокера.
func (w *Worker) RunPending(_ context.Context, run *domain.Run) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.processRun(w.ctx, run.ID); err != nil {
			w.logger.Error("failed to process run", "run_id", run.ID, "error", err)
		}
	}()
	return nil
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем runs, допущенные пока были выключены)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	runs, err := w.runs.Pending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list pending runs", "error", err)
		return
	}

	if len(runs) == 0 {
		return
	}

	w.logger.Debug("poll found pending runs", "count", len(runs))

	for _, run := range runs {
		if ctx.Err() != nil {
			return
		}
		if err := w.processRun(ctx, run.ID); err != nil {
			w.logger.Error("failed to process run from poll",
				"run_id", run.ID,
				"error", err,
			)
		}
	}
}
