// Package supervisor управляет жизненным циклом CI runs.
//
// Supervisor отвечает за:
//   - Допуск trigger'ов (Admit): новый run вытесняет активный run группы
//   - Перевод run в RUNNING, когда job стартует (Start)
//   - Запись результата job (Complete)
//   - Доставку сигнала отмены исполнителю вытесненного run
//
// Группа конкурентности — "<workflow>:<ref>". В каждой группе не более
// одного run в PENDING или RUNNING; последний допущенный trigger всегда
// побеждает.
package supervisor
