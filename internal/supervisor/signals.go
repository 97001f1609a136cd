package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
)

const defaultTombstoneTTL = 10 * time.Minute

// Signals — локальный реестр отмены выполняющихся job'ов.
//
// Worker регистрирует job через Register и получает контекст,
// который отменяется при вызове Cancel для этого run. Если отмена
// пришла раньше регистрации (гонка Admit и Start), она запоминается
// и контекст отменяется сразу при Register.
type Signals struct {
	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc

	// tombstones — отмены, пришедшие до Register (runID → время).
	tombstones map[uuid.UUID]time.Time
	ttl        time.Duration
	now        func() time.Time
}

// NewSignals создаёт реестр. ttl — сколько помнить ранние отмены.
func NewSignals(ttl time.Duration) *Signals {
	if ttl <= 0 {
		ttl = defaultTombstoneTTL
	}
	return &Signals{
		running:    make(map[uuid.UUID]context.CancelFunc),
		tombstones: make(map[uuid.UUID]time.Time),
		ttl:        ttl,
		now:        time.Now,
	}
}

// Register возвращает контекст job'а и функцию освобождения.
// release нужно вызвать после завершения job.
func (s *Signals) Register(ctx context.Context, runID uuid.UUID) (jobCtx context.Context, release func()) {
	jobCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	if _, ok := s.tombstones[runID]; ok {
		delete(s.tombstones, runID)
		cancel()
		return jobCtx, func() {}
	}

	s.running[runID] = cancel
	return jobCtx, func() {
		s.mu.Lock()
		delete(s.running, runID)
		s.mu.Unlock()
		cancel()
	}
}

// Cancel реализует Canceller.
func (s *Signals) Cancel(_ context.Context, run *domain.Run) error {
	s.CancelID(run.ID)
	return nil
}

// CancelID отменяет job run'а или запоминает отмену до Register.
// Возвращает true, если job выполнялся в этом процессе.
func (s *Signals) CancelID(runID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	if cancel, ok := s.running[runID]; ok {
		delete(s.running, runID)
		cancel()
		return true
	}
	s.tombstones[runID] = s.now()
	return false
}

// Running возвращает число зарегистрированных job'ов.
func (s *Signals) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Signals) pruneLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, at := range s.tombstones {
		if at.Before(cutoff) {
			delete(s.tombstones, id)
		}
	}
}

// MultiCanceller рассылает отмену нескольким Canceller'ам.
// Например, локальным Signals и брокеру для удалённых worker'ов.
type MultiCanceller []Canceller

// Cancel вызывает все Canceller'ы и объединяет ошибки.
func (m MultiCanceller) Cancel(ctx context.Context, run *domain.Run) error {
	var errs []error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Cancel(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
