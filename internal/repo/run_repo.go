package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/lintgate/internal/domain"
)

// pgUniqueViolation — SQLSTATE нарушения уникальности.
const pgUniqueViolation = "23505"

const runColumns = `
	id, workflow, group_key, event, ref, base_ref, sha, status,
	outcome, failure_kind, error, superseded_by, steps,
	started_at, finished_at, created_at`

// RunRepo — хранилище runs в PostgreSQL.
//
// Инвариант "не более одного активного run на группу" держится
// на двух уровнях: ReplaceActive сериализует группу через
// pg_advisory_xact_lock, а частичный уникальный индекс
// runs_one_active_per_group отвергает любые обходные вставки.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// ReplaceActive в одной транзакции отменяет активный run группы
// и вставляет новый. Возвращает отменённый run или nil.
func (r *RunRepo) ReplaceActive(ctx context.Context, run *domain.Run) (*domain.Run, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, run.GroupKey); err != nil {
		return nil, fmt.Errorf("lock group: %w", err)
	}

	prev, err := scanRun(tx.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE group_key = $1 AND status IN ('PENDING', 'RUNNING')
		FOR UPDATE
	`, run.GroupKey))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var cancelled *domain.Run
	if prev != nil {
		if err := prev.MarkCancelled(run.ID, run.CreatedAt); err != nil {
			return nil, err
		}
		if err := updateRun(ctx, tx, prev); err != nil {
			return nil, err
		}
		cancelled = prev
	}

	if err := insertRun(ctx, tx, run); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return cancelled, nil
}

// Get возвращает run по ID.
func (r *RunRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	return scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
}

// Update читает run с блокировкой строки, применяет fn и сохраняет.
// Если fn возвращает ошибку, транзакция откатывается.
func (r *RunRepo) Update(ctx context.Context, id uuid.UUID, fn func(*domain.Run) error) (*domain.Run, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	run, err := scanRun(tx.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if err := fn(run); err != nil {
		return nil, err
	}

	if err := updateRun(ctx, tx, run); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

// List возвращает список runs с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]*domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR workflow = $2)
		  AND ($3::text IS NULL OR group_key = $3)
		  AND (NOT $4::bool OR status IN ('PENDING', 'RUNNING'))
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(filter.Workflow),
		nullString(filter.GroupKey),
		filter.ActiveOnly,
		filter.limit(),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return scanRuns(rows)
}

// ListPending возвращает runs в статусе PENDING, старые первыми.
func (r *RunRepo) ListPending(ctx context.Context, limit int) ([]*domain.Run, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	return scanRuns(rows)
}

// ArchiveFinished переносит в runs_archive до limit финальных runs,
// завершённых раньше before. Возвращает число перенесённых.
func (r *RunRepo) ArchiveFinished(ctx context.Context, before time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		WITH moved AS (
			DELETE FROM runs
			WHERE id IN (
				SELECT id FROM runs
				WHERE status IN ('CANCELLED', 'COMPLETED') AND finished_at < $1
				ORDER BY finished_at
				LIMIT $2
			)
			RETURNING *
		)
		INSERT INTO runs_archive
		SELECT moved.*, now() FROM moved
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("archive runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// --- Helpers ---

func insertRun(ctx context.Context, tx pgx.Tx, run *domain.Run) error {
	stepsJSON, err := marshalSteps(run.Steps)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		run.ID,
		run.Workflow,
		run.GroupKey,
		run.Event,
		run.Ref,
		nullString(run.BaseRef),
		nullString(run.SHA),
		run.Status,
		nullString(string(run.Outcome)),
		nullString(string(run.FailureKind)),
		nullString(run.Error),
		run.SupersededBy,
		stepsJSON,
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func updateRun(ctx context.Context, tx pgx.Tx, run *domain.Run) error {
	stepsJSON, err := marshalSteps(run.Steps)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE runs
		SET status = $2, outcome = $3, failure_kind = $4, error = $5,
		    superseded_by = $6, steps = $7, started_at = $8, finished_at = $9
		WHERE id = $1
	`,
		run.ID,
		run.Status,
		nullString(string(run.Outcome)),
		nullString(string(run.FailureKind)),
		nullString(run.Error),
		run.SupersededBy,
		stepsJSON,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalSteps(steps []domain.StepResult) ([]byte, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("marshal steps: %w", err)
	}
	return b, nil
}

// scanRun сканирует одну строку в Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run                    domain.Run
		baseRef, sha, runError *string
		outcome, failureKind   *string
		stepsJSON              []byte
	)

	err := row.Scan(
		&run.ID,
		&run.Workflow,
		&run.GroupKey,
		&run.Event,
		&run.Ref,
		&baseRef,
		&sha,
		&run.Status,
		&outcome,
		&failureKind,
		&runError,
		&run.SupersededBy,
		&stepsJSON,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
	}

	run.BaseRef = derefString(baseRef)
	run.SHA = derefString(sha)
	run.Error = derefString(runError)
	run.Outcome = domain.Outcome(derefString(outcome))
	run.FailureKind = domain.FailureKind(derefString(failureKind))

	return &run, nil
}

func scanRuns(rows pgx.Rows) ([]*domain.Run, error) {
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
