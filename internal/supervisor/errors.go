package supervisor

import "errors"

// Ошибки supervisor'а.
var (
	// ErrRunNotFound — run не найден в хранилище.
	ErrRunNotFound = errors.New("run not found")

	// ErrStopped — supervisor остановлен и не принимает trigger'ы.
	ErrStopped = errors.New("supervisor stopped")

	// errNoop — внутренний маркер: обновление не требуется.
	errNoop = errors.New("no-op")
)
