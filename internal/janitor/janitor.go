package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Default configuration values.
const (
	defaultSchedule = "*/10 * * * *"
)

// ErrNoStore — janitor'у не передано хранилище requests.
var ErrNoStore = errors.New("janitor has no request store")

// RequestSweeper — операции уборки над Request Store.
// Реализуется repo.RequestRepo.
type RequestSweeper interface {
	// SweepExpiredLocks очищает lock-колонки строк с истёкшим lease.
	// Возвращает число затронутых строк.
	SweepExpiredLocks(ctx context.Context) (int64, error)

	// ExpireOverdue переводит requests с истёкшим lifetime в Failed.
	// Возвращает число затронутых строк.
	ExpireOverdue(ctx context.Context, grace time.Duration) (int64, error)
}

// Janitor — периодическая уборка Request Store.
//
// Каждый тик:
//   - снимает lock'и с истёкшим lease (Fetch и Lock и так считают их
//     свободными; уборка держит таблицу наблюдаемой)
//   - переводит requests, пережившие свой lifetime, в Failed
//
// Расписание — cron-выражение [janitor] schedule; первый тик
// выполняется сразу при старте, чтобы подчистить после рестарта.
type Janitor struct {
	store    RequestSweeper
	schedule cron.Schedule
	grace    time.Duration
	logger   *slog.Logger

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Janitor.
type Config struct {
	// Store — хранилище requests.
	Store RequestSweeper

	// Schedule — cron-выражение запуска уборки (default: */10 * * * *).
	Schedule string

	// GracePeriod — отсрочка после expires_at, в течение которой
	// просроченный request ещё не переводится в Failed (default: 0).
	GracePeriod time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Janitor. Невалидное cron-выражение — ошибка
// конфигурации.
func New(cfg Config) (*Janitor, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = defaultSchedule
	}

	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	grace := cfg.GracePeriod
	if grace < 0 {
		grace = 0
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		store:    cfg.Store,
		schedule: schedule,
		grace:    grace,
		logger:   logger,
	}, nil
}

// Start запускает цикл уборки.
func (j *Janitor) Start(ctx context.Context) error {
	if j.store == nil {
		return ErrNoStore
	}

	ctx, cancel := context.WithCancel(ctx)
	j.cancelFunc = cancel

	j.logger.Info("starting janitor", "grace_period", j.grace)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.workLoop(ctx)
	}()

	return nil
}

// Stop останавливает janitor и ждёт завершения цикла.
func (j *Janitor) Stop() {
	j.stoppedMu.Lock()
	j.stopped = true
	j.stoppedMu.Unlock()

	if j.cancelFunc != nil {
		j.cancelFunc()
	}

	j.wg.Wait()

	j.logger.Info("janitor stopped")
}

// IsStopped проверяет, остановлен ли janitor.
func (j *Janitor) IsStopped() bool {
	j.stoppedMu.RLock()
	defer j.stoppedMu.RUnlock()
	return j.stopped
}

// workLoop выполняет тики по расписанию.
func (j *Janitor) workLoop(ctx context.Context) {
	// Первый тик сразу при старте
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := j.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			j.logger.Error("janitor tick failed", "error", err)
		}

		now := time.Now()
		next := j.schedule.Next(now)
		j.logger.Debug("next sweep scheduled", "at", next)
		timer.Reset(next.Sub(now))
	}
}

// Tick выполняет одну уборку.
//
// 1. Снимает протухшие lock'и
// 2. Переводит просроченные requests в Failed
//
// Отказ одной операции не блокирует другую.
func (j *Janitor) Tick(ctx context.Context) error {
	started := time.Now()

	// 1. Протухшие lock'и
	swept, sweepErr := j.store.SweepExpiredLocks(ctx)
	if sweepErr != nil {
		j.logger.Error("failed to sweep expired locks", "error", sweepErr)
	} else if swept > 0 {
		telemetry.JanitorSweepsTotal.WithLabelValues("expired_locks").Add(float64(swept))
	}

	// 2. Просроченные requests
	expired, expireErr := j.store.ExpireOverdue(ctx, j.grace)
	if expireErr != nil {
		j.logger.Error("failed to expire overdue requests", "error", expireErr)
	} else if expired > 0 {
		telemetry.JanitorSweepsTotal.WithLabelValues("overdue_requests").Add(float64(expired))
	}

	if sweepErr != nil {
		return fmt.Errorf("sweep expired locks: %w", sweepErr)
	}
	if expireErr != nil {
		return fmt.Errorf("expire overdue requests: %w", expireErr)
	}

	j.logger.Info("janitor tick completed",
		"swept_locks", swept,
		"expired_requests", expired,
		"elapsed", time.Since(started),
	)

	return nil
}
