package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidOutcome — job сообщил неизвестный результат.
var ErrInvalidOutcome = errors.New("invalid run outcome")

// Run — запись о выполнении job для одного допущенного trigger.
//
// Run создаётся при Admit в статусе PENDING. Дальше:
// - Worker переводит его в RUNNING и затем в COMPLETED с результатом
// - Более новый trigger той же группы переводит его в CANCELLED
//
// Внутри группы (GroupKey) одновременно может быть не более одного
// run в PENDING или RUNNING.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Workflow — имя workflow, который выполняется.
	Workflow string `json:"workflow"`

	// GroupKey — ключ группы конкурентности.
	GroupKey string `json:"group_key"`

	// Event — событие, породившее run.
	Event EventKind `json:"event"`

	// Ref — ветка trigger'а.
	Ref string `json:"ref"`

	// BaseRef — целевая ветка pull request.
	BaseRef string `json:"base_ref,omitempty"`

	// SHA — коммит для checkout.
	SHA string `json:"sha,omitempty"`

	// Status — текущий статус.
	Status RunStatus `json:"status"`

	// Outcome — результат (только для COMPLETED).
	Outcome Outcome `json:"outcome,omitempty"`

	// FailureKind — классификация неуспеха (только для FAILURE).
	FailureKind FailureKind `json:"failure_kind,omitempty"`

	// Error — текст ошибки от job.
	Error string `json:"error,omitempty"`

	// SupersededBy — run, вытеснивший этот (только для CANCELLED).
	SupersededBy *uuid.UUID `json:"superseded_by,omitempty"`

	// Steps — результаты шагов job.
	Steps []StepResult `json:"steps,omitempty"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в CANCELLED или COMPLETED.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время допуска.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт PENDING run для trigger'а.
func NewRun(t Trigger, now time.Time) *Run {
	id := uuid.New()
	return &Run{
		ID:        id,
		Workflow:  t.Workflow,
		GroupKey:  GroupKey(t.Workflow, t.Ref, id),
		Event:     t.Event,
		Ref:       t.Ref,
		BaseRef:   t.BaseRef,
		SHA:       t.SHA,
		Status:    RunStatusPending,
		CreatedAt: now,
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run не стартовал или ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run в финальном статусе.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в RUNNING.
func (r *Run) MarkRunning(now time.Time) error {
	status, err := Transition(r.Status, RunStatusRunning)
	if err != nil {
		return err
	}
	r.Status = status
	r.StartedAt = &now
	return nil
}

// MarkCompleted переводит run в COMPLETED с результатом.
func (r *Run) MarkCompleted(res Result, now time.Time) error {
	if !res.Outcome.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, res.Outcome)
	}
	status, err := Transition(r.Status, RunStatusCompleted)
	if err != nil {
		return err
	}
	res = res.Normalize()
	r.Status = status
	r.Outcome = res.Outcome
	r.FailureKind = res.FailureKind
	r.Error = res.Error
	if len(res.Steps) > 0 {
		r.Steps = res.Steps
	}
	r.FinishedAt = &now
	return nil
}

// MarkCancelled переводит run в CANCELLED.
// by — run, который вытеснил этот (uuid.Nil, если неизвестен).
func (r *Run) MarkCancelled(by uuid.UUID, now time.Time) error {
	status, err := Transition(r.Status, RunStatusCancelled)
	if err != nil {
		return err
	}
	r.Status = status
	if by != uuid.Nil {
		r.SupersededBy = &by
	}
	r.FinishedAt = &now
	return nil
}

// Clone возвращает копию run, безопасную для передачи наружу из хранилища.
func (r *Run) Clone() *Run {
	c := *r
	if r.SupersededBy != nil {
		id := *r.SupersededBy
		c.SupersededBy = &id
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	if r.Steps != nil {
		c.Steps = append([]StepResult(nil), r.Steps...)
	}
	return &c
}

// Result — то, что job сообщает при завершении.
type Result struct {
	Outcome     Outcome      `json:"outcome"`
	FailureKind FailureKind  `json:"failure_kind,omitempty"`
	Error       string       `json:"error,omitempty"`
	Steps       []StepResult `json:"steps,omitempty"`
}

// Normalize приводит результат к согласованному виду:
// у успеха нет вида ошибки, неуспех без вида считается инфраструктурным.
func (r Result) Normalize() Result {
	switch r.Outcome {
	case OutcomeSuccess:
		r.FailureKind = ""
	case OutcomeFailure:
		if !r.FailureKind.Valid() {
			r.FailureKind = FailureInfrastructure
		}
	}
	return r
}

// Succeeded возвращает результат SUCCESS.
func Succeeded(steps []StepResult) Result {
	return Result{Outcome: OutcomeSuccess, Steps: steps}
}

// Failed возвращает результат FAILURE указанного вида.
func Failed(kind FailureKind, msg string, steps []StepResult) Result {
	return Result{Outcome: OutcomeFailure, FailureKind: kind, Error: msg, Steps: steps}
}
