// Package workflow загружает CI workflow из YAML и решает,
// какие trigger'ы к ним относятся.
//
// Включает:
//   - loader.go   — чтение подмножества синтаксиса GitHub Actions
//   - match.go    — фильтры on.push / on.pull_request (branches, types)
//   - expr.go     — вычисление выражения concurrency.group
//   - registry.go — набор загруженных workflow и вычисление ключа группы
//
// Supervisor не знает о фильтрах: они применяются на входе (API),
// до Admit.
package workflow
