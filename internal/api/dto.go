package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
)

// Trigger DTOs

// TriggerRequest — запрос на допуск trigger'а.
type TriggerRequest struct {
	Event   domain.EventKind `json:"event"`
	Ref     string           `json:"ref"`
	BaseRef string           `json:"base_ref,omitempty"`
	SHA     string           `json:"sha,omitempty"`
	Action  string           `json:"action,omitempty"`

	// Workflow — ограничить допуск одним workflow. Пустой — все подходящие.
	Workflow string `json:"workflow,omitempty"`
}

// ToDomain конвертирует запрос в domain.Trigger без workflow.
func (r TriggerRequest) ToDomain() domain.Trigger {
	return domain.Trigger{
		Event:   r.Event,
		Ref:     r.Ref,
		BaseRef: r.BaseRef,
		SHA:     r.SHA,
		Action:  r.Action,
	}
}

// TriggerResponse — runs, допущенные по trigger'у.
// Пустой список — ни один workflow не реагирует на событие.
type TriggerResponse struct {
	Runs []RunResponse `json:"runs"`
}

// Run DTOs

// CompleteRunRequest — результат job от внешнего worker'а.
type CompleteRunRequest struct {
	Outcome     domain.Outcome      `json:"outcome"`
	FailureKind domain.FailureKind  `json:"failure_kind,omitempty"`
	Error       string              `json:"error,omitempty"`
	Steps       []domain.StepResult `json:"steps,omitempty"`
}

// ToDomain конвертирует запрос в domain.Result.
func (r CompleteRunRequest) ToDomain() domain.Result {
	return domain.Result{
		Outcome:     r.Outcome,
		FailureKind: r.FailureKind,
		Error:       r.Error,
		Steps:       r.Steps,
	}
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID           uuid.UUID           `json:"id"`
	Workflow     string              `json:"workflow"`
	GroupKey     string              `json:"group_key"`
	Event        domain.EventKind    `json:"event"`
	Ref          string              `json:"ref"`
	BaseRef      string              `json:"base_ref,omitempty"`
	SHA          string              `json:"sha,omitempty"`
	Status       domain.RunStatus    `json:"status"`
	Outcome      domain.Outcome      `json:"outcome,omitempty"`
	FailureKind  domain.FailureKind  `json:"failure_kind,omitempty"`
	Error        string              `json:"error,omitempty"`
	SupersededBy *uuid.UUID          `json:"superseded_by,omitempty"`
	Steps        []domain.StepResult `json:"steps,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r *domain.Run) RunResponse {
	return RunResponse{
		ID:           r.ID,
		Workflow:     r.Workflow,
		GroupKey:     r.GroupKey,
		Event:        r.Event,
		Ref:          r.Ref,
		BaseRef:      r.BaseRef,
		SHA:          r.SHA,
		Status:       r.Status,
		Outcome:      r.Outcome,
		FailureKind:  r.FailureKind,
		Error:        r.Error,
		SupersededBy: r.SupersededBy,
		Steps:        r.Steps,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}

// Workflow DTOs

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	Name             string                                  `json:"name"`
	Path             string                                  `json:"path,omitempty"`
	On               map[domain.EventKind]domain.EventFilter `json:"on"`
	ConcurrencyGroup string                                  `json:"concurrency_group"`
	CancelInProgress bool                                    `json:"cancel_in_progress"`
	Job              string                                  `json:"job"`
	Steps            []domain.StepDef                        `json:"steps"`
	TimeoutMinutes   int                                     `json:"timeout_minutes,omitempty"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(w *domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		Name:             w.Name,
		Path:             w.Path,
		On:               w.On,
		ConcurrencyGroup: w.Concurrency.Group,
		CancelInProgress: w.Concurrency.CancelInProgress,
		Job:              w.Job,
		Steps:            w.Steps,
		TimeoutMinutes:   w.TimeoutMinutes,
	}
}

// GitHub webhook payloads (только используемые поля)

type pushEvent struct {
	Ref     string `json:"ref"`
	After   string `json:"after"`
	Deleted bool   `json:"deleted"`
}

type pullRequestEvent struct {
	Action      string `json:"action"`
	PullRequest struct {
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}
