package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownStepKind — нет executor'а для данного вида шага.
	ErrUnknownStepKind = errors.New("unknown step kind")

	// ErrNoRepository — не задан URL репозитория для checkout.
	ErrNoRepository = errors.New("repository url is not configured")

	// ErrCheckoutFailed — не удалось получить дерево исходников.
	ErrCheckoutFailed = errors.New("checkout failed")

	// ErrCommandNotStarted — процесс линтера не запустился.
	ErrCommandNotStarted = errors.New("command could not be started")

	// ErrJobTimeout — job превысил таймаут.
	ErrJobTimeout = errors.New("job timed out")

	// ErrWorkerStopped — воркер остановлен во время job.
	ErrWorkerStopped = errors.New("worker stopped")
)
