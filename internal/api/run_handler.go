package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
	"github.com/shaiso/lintgate/internal/repo"
	"github.com/shaiso/lintgate/internal/telemetry"
)

// defaultListLimit — лимит списка runs по умолчанию.
const defaultListLimit = 50

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?status=...&workflow=...&group=...&active=true&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.RunFilter{
		Workflow: q.Get("workflow"),
		GroupKey: q.Get("group"),
		Limit:    parseInt(q.Get("limit"), defaultListLimit),
		Offset:   parseInt(q.Get("offset"), 0),
	}

	if status := q.Get("status"); status != "" {
		filter.Status = domain.RunStatus(status)
		if !filter.Status.Valid() {
			BadRequest(w, "invalid status")
			return
		}
	}

	if active := q.Get("active"); active != "" {
		v, err := strconv.ParseBool(active)
		if err != nil {
			BadRequest(w, "invalid active flag")
			return
		}
		filter.ActiveOnly = v
	}

	runs, err := h.runs.List(r.Context(), filter)
	if HandleError(w, telemetry.FromContext(r.Context()), err) {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// ActiveRun возвращает PENDING или RUNNING run группы.
// GET /api/v1/runs/active?group=...
func (h *Handler) ActiveRun(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	if group == "" {
		BadRequest(w, "group is required")
		return
	}

	run, err := h.runs.Active(r.Context(), group)
	if HandleError(w, telemetry.FromContext(r.Context()), err) {
		return
	}
	if run == nil {
		NotFound(w, "no active run in group")
		return
	}

	Success(w, RunFromDomain(run))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if HandleError(w, telemetry.FromContext(r.Context()), err) {
		return
	}

	Success(w, RunFromDomain(run))
}

// StartRun переводит run в RUNNING перед запуском job внешним worker'ом.
// Для отменённого run возвращает его без изменений: job запускать не нужно.
// POST /api/v1/runs/{id}/start
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	run, err := h.runs.Start(r.Context(), id)
	if HandleError(w, telemetry.FromContext(r.Context()), err) {
		return
	}

	Success(w, RunFromDomain(run))
}

// CompleteRun записывает результат job.
// POST /api/v1/runs/{id}/complete
func (h *Handler) CompleteRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	var req CompleteRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	run, err := h.runs.Complete(r.Context(), id, req.ToDomain())
	if HandleError(w, telemetry.FromContext(r.Context()), err) {
		return
	}

	Success(w, RunFromDomain(run))
}

func runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

// parseInt парсит строку в int с дефолтным значением.
func parseInt(s string, defaultVal int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
