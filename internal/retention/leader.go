package retention

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockKey — ключ advisory lock janitor'а.
const LockKey int64 = 424243

// Leader решает, выполняет ли этот процесс Tick.
type Leader interface {
	// TryAcquire захватывает (или подтверждает) лидерство.
	TryAcquire(ctx context.Context) (bool, error)

	// Release отпускает лидерство.
	Release(ctx context.Context)
}

// AlwaysLeader — лидер без выборов (хранилище в памяти, один процесс).
type AlwaysLeader struct{}

// TryAcquire всегда возвращает true.
func (AlwaysLeader) TryAcquire(context.Context) (bool, error) { return true, nil }

// Release ничего не делает.
func (AlwaysLeader) Release(context.Context) {}

// PGLeader — лидерство через pg_try_advisory_lock.
//
// Session-level lock живёт, пока жива сессия, поэтому лидер держит
// выделенное соединение из пула. Потеря соединения — потеря лидерства.
type PGLeader struct {
	pool *pgxpool.Pool
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewPGLeader создаёт PGLeader.
func NewPGLeader(pool *pgxpool.Pool, key int64) *PGLeader {
	return &PGLeader{pool: pool, key: key}
}

// TryAcquire пытается стать лидером или подтверждает лидерство.
func (l *PGLeader) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		// сессия потеряна вместе с lock
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Release отпускает lock и возвращает соединение в пул.
func (l *PGLeader) Release(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(ctx, "select pg_advisory_unlock($1)", l.key)
	l.conn.Release()
	l.conn = nil
}
