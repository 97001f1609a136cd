// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация run.pending и run.cancelled
//   - consumer.go   — потребление из очереди или fanout exchange
//
// Типы сообщений:
//   - run.pending    — новый run ожидает worker'а
//   - run.cancelled  — run вытеснен, worker должен остановить job
//
// Exchanges:
//   - lintgate.runs   — новые runs (direct, competing workers)
//   - lintgate.cancel — отмена (fanout, все workers)
//   - lintgate.dlq    — dead letter queue
package mq
