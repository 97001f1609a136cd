package domain

// Workflow — определение CI workflow.
//
// Workflow — это "рецепт" job'а: когда запускаться (триггеры),
// как группировать конкурентные запуски и какие шаги выполнять.
// Загружается из YAML в синтаксисе GitHub Actions (подмножество).
type Workflow struct {
	// Name — идентичность workflow (часть ключа группы).
	Name string `json:"name"`

	// Path — файл, из которого загружен workflow.
	Path string `json:"path,omitempty"`

	// On — фильтры триггеров по типу события.
	On map[EventKind]EventFilter `json:"on"`

	// Concurrency — политика конкурентности.
	Concurrency Concurrency `json:"concurrency"`

	// Job — имя единственного job'а.
	Job string `json:"job"`

	// Steps — шаги job'а в порядке выполнения.
	Steps []StepDef `json:"steps"`

	// TimeoutMinutes — таймаут job'а (0 — без таймаута).
	TimeoutMinutes int `json:"timeout_minutes,omitempty"`
}

// EventFilter — фильтры веток для события.
type EventFilter struct {
	// Branches — glob-шаблоны допустимых веток.
	Branches []string `json:"branches,omitempty"`

	// BranchesIgnore — glob-шаблоны исключённых веток.
	BranchesIgnore []string `json:"branches_ignore,omitempty"`

	// Types — типы действий (для pull_request: opened, synchronize, ...).
	Types []string `json:"types,omitempty"`
}

// Concurrency — блок concurrency workflow.
type Concurrency struct {
	// Group — выражение ключа группы, например
	// "${{ github.workflow }}-${{ github.ref }}".
	Group string `json:"group"`

	// CancelInProgress — отменять ли активный run группы.
	CancelInProgress bool `json:"cancel_in_progress"`
}

// StepDef — определение шага job'а.
type StepDef struct {
	// Name — имя шага.
	Name string `json:"name"`

	// Kind — checkout или command.
	Kind StepKind `json:"kind"`

	// Uses — action, из которого выведен шаг (actions/checkout@v4).
	Uses string `json:"uses,omitempty"`

	// Run — команда для шага command.
	Run string `json:"run,omitempty"`

	// With — параметры action.
	With map[string]string `json:"with,omitempty"`

	// Lint — шаг линтера. Только его ненулевой код даёт LINT_FAILURE,
	// сбой остальных шагов — инфраструктурный.
	Lint bool `json:"lint,omitempty"`
}

// Triggers возвращает true, если workflow реагирует на событие.
func (w *Workflow) Triggers(event EventKind) bool {
	_, ok := w.On[event]
	return ok
}
