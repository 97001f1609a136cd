package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики supervisor'а и worker'а.
//
// Регистрируются в глобальном реестре Prometheus и отдаются
// через promhttp.Handler() на /metrics.
var (
	// RunsAdmitted — допущенные trigger'ы по типу события.
	RunsAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lintgate",
		Name:      "runs_admitted_total",
		Help:      "Triggers admitted as new runs",
	}, []string{"event"})

	// RunsSuperseded — активные runs, отменённые более новым trigger'ом.
	RunsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lintgate",
		Name:      "runs_superseded_total",
		Help:      "Active runs cancelled by a newer trigger in the same group",
	})

	// RunsCompleted — завершённые runs по результату и виду ошибки.
	RunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lintgate",
		Name:      "runs_completed_total",
		Help:      "Runs completed, by outcome and failure kind",
	}, []string{"outcome", "failure_kind"})

	// LateResults — результаты, пришедшие для уже отменённых runs.
	LateResults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lintgate",
		Name:      "late_results_total",
		Help:      "Completion reports discarded because the run was already final",
	})

	// JobDuration — длительность job на worker'е.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lintgate",
		Name:      "job_duration_seconds",
		Help:      "Wall time of a lint job on a worker",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"outcome"})

	// RunsArchived — runs, перенесённые в архив janitor'ом.
	RunsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lintgate",
		Name:      "runs_archived_total",
		Help:      "Finished runs moved to the archive by retention",
	})
)
