package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Dispatcher раздаёт захваченный batch обработчику этапа группами
// и разводит исходы по отдельным записям store.
//
// Группы не больше GroupSize; каждая инвокация ограничена
// InvokeTimeout, чтобы зависший backend не остановил воркера на
// весь lease. Частичный успех группы штатен: каждый request получает
// свой исход, успех соседа не откатывается из-за чужого отказа.
type Dispatcher struct {
	agent         string
	store         RequestStore
	groupSize     int
	maxRetries    int
	invokeTimeout time.Duration
	logger        *slog.Logger
}

// DispatcherConfig — конфигурация Dispatcher.
type DispatcherConfig struct {
	// Agent — имя агента-владельца.
	Agent string

	// Store — хранилище requests.
	Store RequestStore

	// GroupSize — максимум requests в одной групповой инвокации (default: 10).
	GroupSize int

	// MaxRetries — бюджет попыток этапа (default: 3).
	MaxRetries int

	// InvokeTimeout — таймаут одной групповой инвокации (default: 60s).
	InvokeTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// NewDispatcher создаёт новый Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	groupSize := cfg.GroupSize
	if groupSize <= 0 {
		groupSize = defaultBulkSize
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	invokeTimeout := cfg.InvokeTimeout
	if invokeTimeout <= 0 {
		invokeTimeout = defaultInvokeTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		agent:         cfg.Agent,
		store:         cfg.Store,
		groupSize:     groupSize,
		maxRetries:    maxRetries,
		invokeTimeout: invokeTimeout,
		logger:        logger,
	}
}

// DispatchStats — счётчики исходов одного Dispatch.
type DispatchStats struct {
	// Advanced — requests, переведённые на следующий этап.
	Advanced int

	// Retried — requests с отказом, оставшиеся на этапе до следующей попытки.
	Retried int

	// Failed — requests, ушедшие в Failed по исчерпании бюджета попыток.
	Failed int
}

// Dispatch обрабатывает batch группами не больше groupSize.
//
// Batch из N requests даёт ceil(N/groupSize) инвокаций обработчика.
// Возвращает счётчики исходов; сами исходы уже записаны в store.
func (d *Dispatcher) Dispatch(ctx context.Context, owner string, task StageTask, batch []*domain.Request) DispatchStats {
	var stats DispatchStats

	for start := 0; start < len(batch); start += d.groupSize {
		end := min(start+d.groupSize, len(batch))
		group := batch[start:end]

		outcomes := d.invoke(ctx, task, group)

		for _, oc := range outcomes {
			d.apply(ctx, owner, task.Stage, oc, &stats)
		}
	}

	return stats
}

// invoke выполняет одну групповую инвокацию с таймаутом и выравнивает
// её исходы: каждый request группы получает ровно один Outcome.
// Request без исхода остался бы под lock'ом до конца lease.
func (d *Dispatcher) invoke(ctx context.Context, task StageTask, group []*domain.Request) []Outcome {
	telemetry.InvocationsTotal.WithLabelValues(d.agent, string(task.Stage)).Inc()

	ictx, cancel := context.WithTimeout(ctx, d.invokeTimeout)
	defer cancel()

	outcomes := task.Handler.HandleBatch(ictx, group)

	byID := make(map[uuid.UUID]Outcome, len(outcomes))
	for _, oc := range outcomes {
		byID[oc.ID] = oc
	}

	full := make([]Outcome, 0, len(group))
	for _, req := range group {
		oc, ok := byID[req.ID]
		if !ok {
			oc = Outcome{ID: req.ID, Err: fmt.Errorf("handler returned no outcome for request")}
		}
		full = append(full, oc)
	}

	return full
}

// apply записывает один исход в store.
//
// Успех: перевод этапа и снятие lock. Отказ: инкремент retry; при
// исчерпании бюджета request уходит в Failed с последней причиной,
// иначе lock снимается и request подберёт один из следующих циклов.
func (d *Dispatcher) apply(ctx context.Context, owner string, from domain.Stage, oc Outcome, stats *DispatchStats) {
	if oc.Err == nil {
		// Агент пишет только переходы своего этапа
		if !from.CanTransitionTo(oc.NextStage) {
			d.logger.Error("handler produced illegal transition",
				"request_id", oc.ID,
				"from", from,
				"to", oc.NextStage,
			)
			d.release(ctx, owner, oc.ID)
			return
		}

		if err := d.store.Advance(ctx, oc.ID, owner, oc.NextStage, oc.Delta); err != nil {
			d.logger.Error("failed to advance request",
				"request_id", oc.ID,
				"stage", oc.NextStage,
				"error", err,
			)
			d.release(ctx, owner, oc.ID)
			return
		}

		d.release(ctx, owner, oc.ID)

		stats.Advanced++
		telemetry.ItemsTotal.WithLabelValues(d.agent, telemetry.OutcomeAdvanced).Inc()

		d.logger.Info("request advanced",
			"request_id", oc.ID,
			"from", from,
			"to", oc.NextStage,
		)
		return
	}

	// Отказ backend'а: бюджет попыток решает между retry и Failed
	retries, err := d.store.IncrementRetry(ctx, oc.ID)
	if err != nil {
		d.logger.Error("failed to increment retry",
			"request_id", oc.ID,
			"error", err,
		)
		d.release(ctx, owner, oc.ID)
		return
	}

	if retries >= d.maxRetries {
		// MarkFailed снимает lock сам
		if err := d.store.MarkFailed(ctx, oc.ID, oc.Err.Error()); err != nil {
			d.logger.Error("failed to mark request failed",
				"request_id", oc.ID,
				"error", err,
			)
			d.release(ctx, owner, oc.ID)
			return
		}

		stats.Failed++
		telemetry.ItemsTotal.WithLabelValues(d.agent, telemetry.OutcomeFailed).Inc()

		d.logger.Warn("retry budget exhausted, request failed",
			"request_id", oc.ID,
			"retries", retries,
			"reason", oc.Err.Error(),
		)
		return
	}

	d.release(ctx, owner, oc.ID)

	stats.Retried++
	telemetry.ItemsTotal.WithLabelValues(d.agent, telemetry.OutcomeRetried).Inc()

	d.logger.Warn("request failed, will retry",
		"request_id", oc.ID,
		"retries", retries,
		"max_retries", d.maxRetries,
		"error", oc.Err,
	)
}

// release снимает lock, не считая потерю lock'а ошибкой: lease мог
// истечь, и request уже перехвачен или подчищен уборкой.
func (d *Dispatcher) release(ctx context.Context, owner string, id uuid.UUID) {
	err := d.store.Release(ctx, id, owner)
	if err != nil && !errors.Is(err, repo.ErrLockNotHeld) {
		d.logger.Warn("failed to release request",
			"request_id", id,
			"error", err,
		)
	}
}
