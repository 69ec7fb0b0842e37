package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счётчики конвейера. Регистрируются в default registry и отдаются
// через /metrics в каждом демоне.
var (
	// CyclesTotal — завершённые циклы опроса по агентам.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_agent_cycles_total",
		Help: "Completed poll cycles per agent.",
	}, []string{"agent"})

	// ItemsTotal — обработанные requests по агенту и исходу
	// (advanced, retried, failed).
	ItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_agent_items_total",
		Help: "Processed requests per agent and outcome.",
	}, []string{"agent", "outcome"})

	// InvocationsTotal — групповые вызовы плагинов по агенту и этапу.
	InvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_plugin_invocations_total",
		Help: "Plugin group invocations per agent and stage.",
	}, []string{"agent", "stage"})

	// LockContentionsTotal — пропуски из-за чужого lock по агентам.
	LockContentionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_lock_contentions_total",
		Help: "Requests skipped because another worker holds the lock.",
	}, []string{"agent"})

	// StoreErrorsTotal — отказы store, поставившие цикл на паузу.
	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_store_errors_total",
		Help: "Store failures that paused an agent poll loop.",
	}, []string{"agent"})

	// JanitorSweepsTotal — строки, обработанные уборкой, по операциям
	// (expired_locks, overdue_requests).
	JanitorSweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_janitor_rows_total",
		Help: "Rows touched by janitor sweeps per operation.",
	}, []string{"operation"})
)

// Значения label outcome в ItemsTotal.
const (
	OutcomeAdvanced = "advanced"
	OutcomeRetried  = "retried"
	OutcomeFailed   = "failed"
)
