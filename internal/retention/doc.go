// Package retention архивирует финальные runs.
//
// Janitor по расписанию переносит CANCELLED и COMPLETED runs,
// завершённые раньше now-MaxAge, из рабочей таблицы в архив.
// Активные runs не трогаются никогда.
//
// Структура:
//   - janitor.go — Janitor (Tick, Run)
//   - cron.go    — разбор расписания
//   - leader.go  — leader election через pg_try_advisory_lock
//
// Использование:
//
//	j := retention.New(retention.Config{
//	    Store:  runRepo,
//	    MaxAge: 30 * 24 * time.Hour,
//	    Leader: retention.NewPGLeader(pool, retention.LockKey),
//	    Logger: logger,
//	})
//	err := j.Run(ctx, "@every 1h")
//
// Несколько janitor'ов могут работать одновременно: Tick выполняет
// только тот, кто держит advisory lock.
package retention
