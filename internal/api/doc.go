// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (supervisor, workflows, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - trigger_handler.go  — приём trigger'ов: /triggers и GitHub webhook
//   - run_handler.go      — обработчики для /runs
//   - workflow_handler.go — обработчики для /workflows
//
// Trigger проходит фильтры workflow и допускается supervisor'ом;
// worker'ы вне процесса отчитываются через /runs/{id}/start и /complete.
package api
