package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
	"github.com/shaiso/lintgate/internal/repo"
	"github.com/shaiso/lintgate/internal/telemetry"
)

// Supervisor — единственный владелец статусов runs.
//
// Все переходы статусов проходят через Supervisor; worker'ы
// и API только вызывают Start/Complete и читают runs.
type Supervisor struct {
	store     Store
	grouper   Grouper
	canceller Canceller
	notifier  Notifier
	now       func() time.Time
	logger    *slog.Logger

	stopped   bool
	stoppedMu sync.RWMutex
}

// Config — конфигурация Supervisor.
type Config struct {
	// Store — хранилище runs (обязательно).
	Store Store

	// Grouper — вычисление ключа группы (default: "<workflow>:<ref>").
	Grouper Grouper

	// Canceller — доставка отмены вытесненным runs (опционально).
	Canceller Canceller

	// Notifier — уведомление исполнителей о новых runs (опционально).
	Notifier Notifier

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Supervisor.
func New(cfg Config) *Supervisor {
	grouper := cfg.Grouper
	if grouper == nil {
		grouper = defaultGrouper{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		store:     cfg.Store,
		grouper:   grouper,
		canceller: cfg.Canceller,
		notifier:  cfg.Notifier,
		now:       now,
		logger:    logger.With("component", "supervisor"),
	}
}

// Admit допускает trigger: создаёт PENDING run и вытесняет активный
// run той же группы.
//
// Вытеснение и вставка атомарны относительно других Admit той же
// группы. Сигнал отмены доставляется после фиксации; ошибка доставки
// логируется и не отменяет допуск.
func (s *Supervisor) Admit(ctx context.Context, t domain.Trigger) (*domain.Run, error) {
	if s.IsStopped() {
		return nil, ErrStopped
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	run := domain.NewRun(t, s.now())
	run.GroupKey = s.grouper.GroupKey(t, run.ID)

	cancelled, err := s.store.ReplaceActive(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("admit run: %w", err)
	}

	logger := telemetry.WithRun(s.logger, run.ID.String(), run.GroupKey, run.Workflow)
	logger.Info("run admitted", "event", run.Event, "ref", run.Ref)
	telemetry.RunsAdmitted.WithLabelValues(string(run.Event)).Inc()

	if cancelled != nil {
		logger.Info("run superseded",
			"cancelled_run_id", cancelled.ID,
			"was_running", cancelled.StartedAt != nil,
		)
		telemetry.RunsSuperseded.Inc()
		s.signalCancel(ctx, cancelled)
	}

	if s.notifier != nil {
		if err := s.notifier.RunPending(ctx, run); err != nil {
			// Worker подхватит run через polling
			logger.Warn("failed to notify about pending run", "error", err)
		}
	}

	return run, nil
}

// signalCancel доставляет отмену, не блокируя допуск на ошибках.
func (s *Supervisor) signalCancel(ctx context.Context, run *domain.Run) {
	if s.canceller == nil {
		return
	}
	if err := s.canceller.Cancel(ctx, run); err != nil {
		s.logger.Warn("failed to deliver cancellation",
			"run_id", run.ID,
			"group_key", run.GroupKey,
			"error", err,
		)
	}
}

// Start переводит run в RUNNING перед запуском job.
//
// Для уже отменённого run это no-op без ошибки: возвращается run
// в статусе CANCELLED, и вызывающий не должен запускать job.
func (s *Supervisor) Start(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	var current *domain.Run

	run, err := s.store.Update(ctx, id, func(r *domain.Run) error {
		if r.Status == domain.RunStatusCancelled {
			current = r.Clone()
			return errNoop
		}
		return r.MarkRunning(s.now())
	})
	switch {
	case errors.Is(err, errNoop):
		s.logger.Debug("start ignored, run already cancelled", "run_id", id)
		return current, nil
	case err != nil:
		return nil, s.wrapNotFound(id, err)
	}

	telemetry.WithRun(s.logger, run.ID.String(), run.GroupKey, run.Workflow).Info("run started")
	return run, nil
}

// Complete записывает результат job.
//
// Результат для уже отменённого (или уже завершённого) run отбрасывается:
// статус не меняется, ошибки нет. Результат для PENDING run —
// ErrIllegalTransition: job не мог завершиться, не стартовав.
func (s *Supervisor) Complete(ctx context.Context, id uuid.UUID, res domain.Result) (*domain.Run, error) {
	var current *domain.Run

	run, err := s.store.Update(ctx, id, func(r *domain.Run) error {
		if r.IsFinished() {
			current = r.Clone()
			return errNoop
		}
		return r.MarkCompleted(res, s.now())
	})
	switch {
	case errors.Is(err, errNoop):
		s.logger.Info("late result discarded",
			"run_id", id,
			"status", current.Status,
			"reported_outcome", res.Outcome,
		)
		telemetry.LateResults.Inc()
		return current, nil
	case err != nil:
		return nil, s.wrapNotFound(id, err)
	}

	telemetry.WithRun(s.logger, run.ID.String(), run.GroupKey, run.Workflow).Info("run completed",
		"outcome", run.Outcome,
		"failure_kind", run.FailureKind,
		"duration", run.Duration(),
	)
	telemetry.RunsCompleted.WithLabelValues(string(run.Outcome), string(run.FailureKind)).Inc()
	return run, nil
}

// Get возвращает run по ID.
func (s *Supervisor) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.wrapNotFound(id, err)
	}
	return run, nil
}

// List возвращает runs по фильтру.
func (s *Supervisor) List(ctx context.Context, filter repo.RunFilter) ([]*domain.Run, error) {
	return s.store.List(ctx, filter)
}

// Active возвращает активный run группы или nil.
func (s *Supervisor) Active(ctx context.Context, groupKey string) (*domain.Run, error) {
	runs, err := s.store.List(ctx, repo.RunFilter{GroupKey: groupKey, ActiveOnly: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// Pending возвращает PENDING runs для polling fallback worker'ов.
func (s *Supervisor) Pending(ctx context.Context, limit int) ([]*domain.Run, error) {
	return s.store.ListPending(ctx, limit)
}

// Stop запрещает новые допуски. Start/Complete продолжают работать,
// чтобы выполняющиеся job'ы могли отчитаться.
func (s *Supervisor) Stop() {
	s.stoppedMu.Lock()
	s.stopped = true
	s.stoppedMu.Unlock()

	s.logger.Info("supervisor stopped")
}

// IsStopped проверяет, остановлен ли Supervisor.
func (s *Supervisor) IsStopped() bool {
	s.stoppedMu.RLock()
	defer s.stoppedMu.RUnlock()
	return s.stopped
}

func (s *Supervisor) wrapNotFound(id uuid.UUID, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return err
}
