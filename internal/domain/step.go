package domain

import "time"

// StepKind — тип шага job.
type StepKind string

const (
	// StepKindCheckout — получение снимка дерева исходников.
	StepKindCheckout StepKind = "checkout"

	// StepKindCommand — запуск внешней команды (license linter).
	StepKindCommand StepKind = "command"
)

// StepStatus — статус шага job.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "SUCCEEDED"
	StepStatusFailed    StepStatus = "FAILED"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

// StepResult — результат одного шага job.
//
// Записывается worker'ом в Run.Steps для диагностики.
type StepResult struct {
	// Name — имя шага из workflow.
	Name string `json:"name"`

	// Kind — checkout или command.
	Kind StepKind `json:"kind"`

	// Status — итог шага.
	Status StepStatus `json:"status"`

	// ExitCode — код выхода команды (-1, если процесс не запустился).
	ExitCode int `json:"exit_code"`

	// Error — текст ошибки.
	Error string `json:"error,omitempty"`

	// Output — хвост вывода команды.
	Output string `json:"output,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration возвращает продолжительность шага.
func (s StepResult) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
