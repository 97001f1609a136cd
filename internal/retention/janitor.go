package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/lintgate/internal/telemetry"
)

// Archiver — хранилище, умеющее архивировать финальные runs.
type Archiver interface {
	ArchiveFinished(ctx context.Context, before time.Time, limit int) (int, error)
}

// Janitor — периодическая архивация старых runs.
type Janitor struct {
	store     Archiver
	leader    Leader
	maxAge    time.Duration
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

// Config — конфигурация Janitor.
type Config struct {
	Store Archiver

	// Leader — выборы лидера (default: AlwaysLeader).
	Leader Leader

	// MaxAge — сколько хранить финальные runs (default: 30 дней).
	MaxAge time.Duration

	// BatchSize — runs за одну транзакцию (default: 500).
	BatchSize int

	Now    func() time.Time
	Logger *slog.Logger
}

// New создаёт Janitor.
func New(cfg Config) *Janitor {
	j := &Janitor{
		store:     cfg.Store,
		leader:    cfg.Leader,
		maxAge:    cfg.MaxAge,
		batchSize: cfg.BatchSize,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
	if j.leader == nil {
		j.leader = AlwaysLeader{}
	}
	if j.maxAge <= 0 {
		j.maxAge = 30 * 24 * time.Hour
	}
	if j.batchSize <= 0 {
		j.batchSize = 500
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	j.logger = j.logger.With("component", "retention")
	return j
}

// Tick архивирует runs, завершённые раньше now-MaxAge.
//
// Работает пачками по BatchSize, пока есть что архивировать.
// Не лидер пропускает тик и возвращает 0.
func (j *Janitor) Tick(ctx context.Context) (int, error) {
	leader, err := j.leader.TryAcquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("leader election: %w", err)
	}
	if !leader {
		j.logger.Debug("not a leader, skipping tick")
		return 0, nil
	}

	before := j.now().Add(-j.maxAge)

	var total int
	for {
		n, err := j.store.ArchiveFinished(ctx, before, j.batchSize)
		total += n
		telemetry.RunsArchived.Add(float64(n))
		if err != nil {
			return total, fmt.Errorf("archive finished runs: %w", err)
		}
		if n < j.batchSize || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		j.logger.Info("retention tick completed", "archived", total, "before", before)
	}
	return total, nil
}

// Run выполняет Tick по расписанию до отмены ctx.
// Тик, не успевший закончиться к следующему срабатыванию, не дублируется.
func (j *Janitor) Run(ctx context.Context, schedule string) error {
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if _, err := c.AddFunc(schedule, func() {
		if _, err := j.Tick(ctx); err != nil {
			j.logger.Error("retention tick failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	j.logger.Info("retention started", "schedule", schedule, "max_age", j.maxAge)
	c.Start()

	<-ctx.Done()

	<-c.Stop().Done()
	j.leader.Release(context.Background())
	j.logger.Info("retention stopped")
	return nil
}
