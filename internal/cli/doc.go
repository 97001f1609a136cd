// Package cli реализует инструмент командной строки lintgate.
//
// # Обзор
//
// CLI — клиентская утилита для lintgate API: отправка trigger'ов,
// просмотр runs и отчёт внешнего worker'а о результате job.
// Работает через HTTP и не импортирует серверные пакеты; исключение —
// "workflow check", который разбирает файлы workflow локально.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует HTTP-запросы, парсинг ответов
// (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	runs, err := client.ListRuns(cli.ListRunsOpts{Active: true})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: lintgate run list --json | jq .
//
// ## Commands
//
//   - trigger: push|pull_request REF
//   - run: list, show, start, complete
//   - workflow: list, check
//
// Каждая группа создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
