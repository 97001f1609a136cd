package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/lintgate/internal/domain"
)

// Job — контекст выполнения одного run на worker'е.
type Job struct {
	Run      *domain.Run
	Workflow *domain.Workflow

	// Dir — рабочий каталог job (удаляется после завершения).
	Dir string
}

// Executor — интерфейс для выполнения конкретного вида шага.
//
// Реализации: CheckoutExecutor, CommandExecutor.
//
// Возвращаемая ошибка означает, что шаг не удалось выполнить
// (инфраструктурный сбой). Команда, которая запустилась и вернула
// ненулевой код, — это не ошибка: StepResult.Status = FAILED.
type Executor interface {
	Execute(ctx context.Context, job *Job, step domain.StepDef) (domain.StepResult, error)
}

// Registry — реестр executor'ов по виду шага.
type Registry struct {
	executors map[domain.StepKind]Executor
}

// NewRegistry создаёт реестр с executor'ами checkout и command.
func NewRegistry(runner CommandRunner, repoURL string) *Registry {
	if runner == nil {
		runner = ExecRunner{}
	}
	r := &Registry{executors: make(map[domain.StepKind]Executor)}
	r.Register(domain.StepKindCheckout, &CheckoutExecutor{Runner: runner, RepoURL: repoURL})
	r.Register(domain.StepKindCommand, &CommandExecutor{Runner: runner})
	return r
}

// Register добавляет executor для вида шага.
func (r *Registry) Register(kind domain.StepKind, executor Executor) {
	r.executors[kind] = executor
}

// Get возвращает executor для вида шага.
func (r *Registry) Get(kind domain.StepKind) (Executor, error) {
	executor, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepKind, kind)
	}
	return executor, nil
}
