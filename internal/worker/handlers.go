package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
	"github.com/shaiso/lintgate/internal/mq"
	"github.com/shaiso/lintgate/internal/supervisor"
	"github.com/shaiso/lintgate/internal/telemetry"
)

// reportTimeout — сколько ждать Complete при остановке worker'а.
const reportTimeout = 10 * time.Second

// handleRunPending обрабатывает событие о новом run из lintgate.runs.pending.
func (w *Worker) handleRunPending(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.RunPendingPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse run.pending payload", "error", err)
		return err
	}

	w.logger.Debug("received run.pending event",
		"run_id", payload.RunID,
		"group_key", payload.GroupKey,
	)

	return w.processRun(ctx, payload.RunID)
}

// handleRunCancelled останавливает job, если он выполняется в этом процессе.
func (w *Worker) handleRunCancelled(_ context.Context, delivery *mq.Delivery) error {
	if delivery.Message.Type != mq.MessageTypeRunCancelled {
		return fmt.Errorf("%w: %s", mq.ErrUnknownMessage, delivery.Message.Type)
	}

	payload, err := mq.ParsePayload[mq.RunCancelledPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse run.cancelled payload", "error", err)
		return err
	}

	if w.signals.CancelID(payload.RunID) {
		w.logger.Info("job cancelled by newer trigger",
			"run_id", payload.RunID,
			"group_key", payload.GroupKey,
			"superseded_by", payload.SupersededBy,
		)
	}
	return nil
}

// processRun занимает слот, переводит run в RUNNING и запускает job.
//
// Ожидаемые ситуации (run уже взят другим worker'ом, отменён, удалён)
// не являются ошибкой.
func (w *Worker) processRun(ctx context.Context, id uuid.UUID) error {
	select {
	case w.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	release := func() { <-w.slots }

	run, err := w.runs.Start(ctx, id)
	if err != nil {
		release()
		if errors.Is(err, domain.ErrIllegalTransition) || errors.Is(err, supervisor.ErrRunNotFound) {
			w.logger.Debug("run not started", "run_id", id, "reason", err)
			return nil
		}
		return fmt.Errorf("start run: %w", err)
	}

	if run.Status != domain.RunStatusRunning {
		release()
		w.logger.Debug("run already cancelled, skipping", "run_id", id)
		return nil
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer release()
		w.runJob(ctx, run)
	}()
	return nil
}

// runJob выполняет job и сообщает результат supervisor'у.
// Отменённый job ничего не сообщает: его run уже CANCELLED.
func (w *Worker) runJob(ctx context.Context, run *domain.Run) {
	logger := telemetry.WithRun(w.logger, run.ID.String(), run.GroupKey, run.Workflow)
	logger.Info("job started", "ref", run.Ref, "sha", run.SHA)

	started := time.Now()
	res, cancelled := w.execute(ctx, run, logger)
	elapsed := time.Since(started)

	if cancelled {
		telemetry.JobDuration.WithLabelValues("CANCELLED").Observe(elapsed.Seconds())
		logger.Info("job cancelled, result not reported", "duration", elapsed)
		return
	}
	telemetry.JobDuration.WithLabelValues(string(res.Outcome)).Observe(elapsed.Seconds())

	reportCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		reportCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer cancel()
	}

	if _, err := w.runs.Complete(reportCtx, run.ID, res); err != nil {
		logger.Error("failed to report job result", "error", err)
		return
	}

	logger.Info("job finished",
		"outcome", res.Outcome,
		"failure_kind", res.FailureKind,
		"duration", elapsed,
	)
}

// execute выполняет шаги workflow по порядку.
// Возвращает cancelled = true, если job отменён сигналом.
func (w *Worker) execute(ctx context.Context, run *domain.Run, logger *slog.Logger) (domain.Result, bool) {
	wf, err := w.workflows.Get(run.Workflow)
	if err != nil {
		return domain.Failed(domain.FailureInfrastructure, err.Error(), nil), false
	}

	jobCtx, release := w.signals.Register(ctx, run.ID)
	defer release()

	execCtx := jobCtx
	timeout := w.jobTimeout
	if wf.TimeoutMinutes > 0 {
		timeout = time.Duration(wf.TimeoutMinutes) * time.Minute
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(jobCtx, timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp(w.workDir, "lintgate-"+run.ID.String()+"-")
	if err != nil {
		return domain.Failed(domain.FailureInfrastructure, fmt.Sprintf("create workspace: %v", err), nil), false
	}
	defer os.RemoveAll(dir)

	job := &Job{Run: run, Workflow: wf, Dir: dir}
	steps := make([]domain.StepResult, 0, len(wf.Steps))

	for i, step := range wf.Steps {
		if jobCtx.Err() != nil && ctx.Err() == nil {
			return domain.Result{}, true
		}

		executor, err := w.registry.Get(step.Kind)
		if err != nil {
			return domain.Failed(domain.FailureInfrastructure, err.Error(), skipRest(steps, wf.Steps[i:])), false
		}

		logger.Debug("step started", "step", step.Name, "kind", step.Kind)
		res, execErr := executor.Execute(execCtx, job, step)
		steps = append(steps, res)
		rest := wf.Steps[i+1:]

		switch {
		case ctx.Err() != nil:
			return domain.Failed(domain.FailureInfrastructure, ErrWorkerStopped.Error(), skipRest(steps, rest)), false
		case jobCtx.Err() != nil:
			return domain.Result{}, true
		case execCtx.Err() != nil:
			msg := fmt.Sprintf("%s after %s", ErrJobTimeout, timeout)
			return domain.Failed(domain.FailureInfrastructure, msg, skipRest(steps, rest)), false
		case execErr != nil:
			return domain.Failed(domain.FailureInfrastructure, execErr.Error(), skipRest(steps, rest)), false
		case res.Status == domain.StepStatusFailed && step.Lint:
			// Линтер отработал и нашёл нарушения
			return domain.Failed(domain.FailureLint, res.Error, skipRest(steps, rest)), false
		case res.Status == domain.StepStatusFailed:
			return domain.Failed(domain.FailureInfrastructure, res.Error, skipRest(steps, rest)), false
		}
	}

	return domain.Succeeded(steps), false
}

// skipRest дописывает невыполненные шаги со статусом SKIPPED.
func skipRest(done []domain.StepResult, rest []domain.StepDef) []domain.StepResult {
	for _, step := range rest {
		done = append(done, domain.StepResult{
			Name:     step.Name,
			Kind:     step.Kind,
			Status:   domain.StepStatusSkipped,
			ExitCode: -1,
		})
	}
	return done
}
