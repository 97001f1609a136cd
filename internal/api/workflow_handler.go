package api

import (
	"net/http"

	"github.com/shaiso/lintgate/internal/telemetry"
)

// ListWorkflows возвращает загруженные workflow.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows := h.workflows.List()

	result := make([]WorkflowResponse, len(workflows))
	for i, wf := range workflows {
		result[i] = WorkflowFromDomain(wf)
	}

	List(w, result, len(result))
}

// GetWorkflow возвращает workflow по имени.
// GET /api/v1/workflows/{name}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.workflows.Get(r.PathValue("name"))
	if HandleError(w, telemetry.FromContext(r.Context()), err) {
		return
	}

	Success(w, WorkflowFromDomain(wf))
}
