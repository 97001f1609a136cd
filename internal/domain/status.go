package domain

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition — переход между статусами запрещён.
var ErrIllegalTransition = errors.New("illegal run status transition")

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	   ↘         ↘
//	    CANCELLED (вытеснен более новым trigger той же группы)
type RunStatus string

const (
	// RunStatusPending — run допущен, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — job (checkout + lint) выполняется.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCancelled — run вытеснен более новым trigger той же группы.
	RunStatusCancelled RunStatus = "CANCELLED"

	// RunStatusCompleted — job завершился, результат в Outcome.
	RunStatusCompleted RunStatus = "COMPLETED"
)

// transitions — единственная таблица допустимых переходов.
var transitions = map[RunStatus][]RunStatus{
	RunStatusPending: {RunStatusRunning, RunStatusCancelled},
	RunStatusRunning: {RunStatusCompleted, RunStatusCancelled},
}

// CanTransition проверяет, допустим ли переход s → to.
func (s RunStatus) CanTransition(to RunStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition возвращает to, если переход допустим, иначе ErrIllegalTransition.
func Transition(from, to RunStatus) (RunStatus, error) {
	if !from.CanTransition(to) {
		return from, fmt.Errorf("%w: %s → %s", ErrIllegalTransition, from, to)
	}
	return to, nil
}

// IsActive возвращает true для статусов, занимающих слот группы.
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCancelled || s == RunStatusCompleted
}

// Valid проверяет, что статус известен.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCancelled, RunStatusCompleted:
		return true
	default:
		return false
	}
}

// Outcome — результат завершённого job.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// Valid проверяет, что outcome известен.
func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// FailureKind — классификация неуспешного результата.
type FailureKind string

const (
	// FailureLint — linter сообщил о нарушениях лицензирования.
	FailureLint FailureKind = "LINT_FAILURE"

	// FailureInfrastructure — checkout или окружение упали.
	FailureInfrastructure FailureKind = "INFRASTRUCTURE_ERROR"
)

// Valid проверяет, что вид ошибки известен.
func (k FailureKind) Valid() bool {
	return k == FailureLint || k == FailureInfrastructure
}
