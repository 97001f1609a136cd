package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Triggers
	mux.Handle("POST /api/v1/triggers", chain(http.HandlerFunc(h.CreateTrigger)))
	mux.Handle("POST /webhooks/github", chain(http.HandlerFunc(h.GitHubWebhook)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/active", chain(http.HandlerFunc(h.ActiveRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/runs/{id}/start", chain(http.HandlerFunc(h.StartRun)))
	mux.Handle("POST /api/v1/runs/{id}/complete", chain(http.HandlerFunc(h.CompleteRun)))

	// Workflows
	mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("GET /api/v1/workflows/{name}", chain(http.HandlerFunc(h.GetWorkflow)))
}
