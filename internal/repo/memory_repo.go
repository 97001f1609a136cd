package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
)

// MemoryRunRepo — хранилище runs в памяти процесса.
//
// Используется в однопроцессном режиме (STORE=memory) и в тестах.
// Все операции сериализуются одним мьютексом, поэтому ReplaceActive
// атомарен относительно любых других операций.
type MemoryRunRepo struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*domain.Run
	active   map[string]uuid.UUID // group_key → активный run
	archived map[uuid.UUID]*domain.Run
}

// NewMemoryRunRepo создаёт пустое хранилище.
func NewMemoryRunRepo() *MemoryRunRepo {
	return &MemoryRunRepo{
		runs:     make(map[uuid.UUID]*domain.Run),
		active:   make(map[string]uuid.UUID),
		archived: make(map[uuid.UUID]*domain.Run),
	}
}

// ReplaceActive отменяет активный run группы (если есть) и сохраняет новый.
func (r *MemoryRunRepo) ReplaceActive(_ context.Context, run *domain.Run) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return nil, ErrAlreadyExists
	}

	var cancelled *domain.Run
	if prevID, ok := r.active[run.GroupKey]; ok {
		prev := r.runs[prevID]
		if err := prev.MarkCancelled(run.ID, run.CreatedAt); err != nil {
			return nil, err
		}
		cancelled = prev.Clone()
		delete(r.active, run.GroupKey)
	}

	stored := run.Clone()
	r.runs[stored.ID] = stored
	if stored.Status.IsActive() {
		r.active[stored.GroupKey] = stored.ID
	}
	return cancelled, nil
}

// Get возвращает run по ID.
func (r *MemoryRunRepo) Get(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

// Update применяет fn к run под блокировкой.
// Если fn возвращает ошибку, run не меняется.
func (r *MemoryRunRepo) Update(_ context.Context, id uuid.UUID, fn func(*domain.Run) error) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}

	work := stored.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}

	// Переход в финальный статус освобождает группу
	if !work.Status.IsActive() && r.active[work.GroupKey] == work.ID {
		delete(r.active, work.GroupKey)
	}
	r.runs[id] = work
	return work.Clone(), nil
}

// List возвращает runs по фильтру, новые первыми.
func (r *MemoryRunRepo) List(_ context.Context, filter RunFilter) ([]*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Run
	for _, run := range r.runs {
		if filter.matches(run) {
			out = append(out, run.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPending возвращает PENDING runs, старые первыми.
func (r *MemoryRunRepo) ListPending(_ context.Context, limit int) ([]*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Run
	for _, id := range r.active {
		if run := r.runs[id]; run.Status == domain.RunStatusPending {
			out = append(out, run.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ArchiveFinished переносит в архив финальные runs, завершённые до before.
func (r *MemoryRunRepo) ArchiveFinished(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*domain.Run
	for _, run := range r.runs {
		if run.IsFinished() && run.FinishedAt != nil && run.FinishedAt.Before(before) {
			candidates = append(candidates, run)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].FinishedAt.Before(*candidates[j].FinishedAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	for _, run := range candidates {
		delete(r.runs, run.ID)
		r.archived[run.ID] = run
	}
	return len(candidates), nil
}

// Archived возвращает число runs в архиве.
func (r *MemoryRunRepo) Archived() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.archived)
}
