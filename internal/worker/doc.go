// Package worker выполняет lint job'ы для runs.
//
// # Обзор
//
// Worker — stateless компонент, который берёт PENDING runs,
// выполняет шаги workflow (checkout, затем линтер лицензий)
// и сообщает результат supervisor'у:
//
//   - Получение runs из очереди RabbitMQ (event-driven)
//   - Периодическая проверка PENDING runs (polling fallback)
//   - Остановка job по сигналу run.cancelled
//   - Классификация неуспеха: LINT_FAILURE или INFRASTRUCTURE_ERROR
//
// Workers масштабируются горизонтально: Start переводит run в RUNNING
// атомарно, поэтому один run выполняет ровно один worker.
//
// # Executor
//
// Интерфейс для выполнения вида шага:
//
//	type Executor interface {
//	    Execute(ctx context.Context, job *Job, step domain.StepDef) (domain.StepResult, error)
//	}
//
// Реализации:
//   - CheckoutExecutor — git init / fetch --depth=1 / checkout --detach
//   - CommandExecutor — sh -c <команда> в рабочем каталоге
//
// # Классификация результата
//
//   - Шаг линтера (StepDef.Lint) вернул ненулевой код → FAILURE / LINT_FAILURE
//   - Checkout или подготовительный шаг не удался, команда не запустилась
//     (в том числе код 126/127 от sh), таймаут → FAILURE / INFRASTRUCTURE_ERROR
//   - Job отменён сигналом → результат не сообщается
package worker
