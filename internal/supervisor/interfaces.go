package supervisor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
	"github.com/shaiso/lintgate/internal/repo"
)

// Store — хранилище runs.
//
// Реализации: repo.MemoryRunRepo, repo.RunRepo (PostgreSQL).
type Store interface {
	// ReplaceActive атомарно отменяет активный run группы run.GroupKey
	// (SupersededBy = run.ID) и сохраняет run. Возвращает отменённый run или nil.
	ReplaceActive(ctx context.Context, run *domain.Run) (*domain.Run, error)

	// Get возвращает run по ID или repo.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// Update применяет fn к run под блокировкой. Ошибка fn отменяет запись.
	Update(ctx context.Context, id uuid.UUID, fn func(*domain.Run) error) (*domain.Run, error)

	List(ctx context.Context, filter repo.RunFilter) ([]*domain.Run, error)
	ListPending(ctx context.Context, limit int) ([]*domain.Run, error)
	ArchiveFinished(ctx context.Context, before time.Time, limit int) (int, error)
}

// Canceller доставляет сигнал отмены исполнителю run.
//
// Отмена кооперативная: запись run уже CANCELLED к моменту вызова,
// Canceller только просит job остановиться.
type Canceller interface {
	Cancel(ctx context.Context, run *domain.Run) error
}

// CancellerFunc — адаптер функции к Canceller.
type CancellerFunc func(ctx context.Context, run *domain.Run) error

// Cancel вызывает f.
func (f CancellerFunc) Cancel(ctx context.Context, run *domain.Run) error {
	return f(ctx, run)
}

// Notifier сообщает исполнителям о новом PENDING run.
type Notifier interface {
	RunPending(ctx context.Context, run *domain.Run) error
}

// NotifierFunc — адаптер функции к Notifier.
type NotifierFunc func(ctx context.Context, run *domain.Run) error

// RunPending вызывает f.
func (f NotifierFunc) RunPending(ctx context.Context, run *domain.Run) error {
	return f(ctx, run)
}

// Grouper вычисляет ключ группы конкурентности для trigger'а.
// Реализация по умолчанию — domain.GroupKey; workflow.Registry
// вычисляет concurrency.group из определения workflow.
type Grouper interface {
	GroupKey(t domain.Trigger, runID uuid.UUID) string
}

type defaultGrouper struct{}

func (defaultGrouper) GroupKey(t domain.Trigger, runID uuid.UUID) string {
	return domain.GroupKey(t.Workflow, t.Ref, runID)
}
