package workflow

import "errors"

var (
	// ErrNoJobs — workflow не содержит job'ов.
	ErrNoJobs = errors.New("workflow has no jobs")

	// ErrMultipleJobs — workflow содержит больше одного job.
	// Supervisor выполняет ровно один job на run.
	ErrMultipleJobs = errors.New("workflow must define exactly one job")

	// ErrNoSteps — job не содержит шагов.
	ErrNoSteps = errors.New("job has no steps")

	// ErrNoTriggers — workflow не реагирует ни на push, ни на pull_request.
	ErrNoTriggers = errors.New("workflow has no push or pull_request triggers")

	// ErrUnsupportedStep — шаг с неизвестным action.
	ErrUnsupportedStep = errors.New("unsupported step")

	// ErrUnsupportedExpression — выражение вне поддерживаемого подмножества.
	ErrUnsupportedExpression = errors.New("unsupported expression")

	// ErrDuplicateWorkflow — два файла объявляют workflow с одним именем.
	ErrDuplicateWorkflow = errors.New("duplicate workflow name")

	// ErrWorkflowNotFound — workflow с таким именем не загружен.
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// LoadError — ошибка загрузки конкретного файла workflow.
type LoadError struct {
	Path string // файл workflow
	Err  error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *LoadError) Error() string {
	return "workflow " + e.Path + ": " + e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *LoadError) Unwrap() error {
	return e.Err
}
