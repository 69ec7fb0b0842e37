package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Default configuration values.
const (
	defaultNumThreads    = 1
	defaultPollPeriod    = 30 * time.Second
	defaultBulkSize      = 10
	defaultMaxRetries    = 3
	defaultLeasePeriod   = time.Hour
	defaultInvokeTimeout = 60 * time.Second

	// Пауза цикла при отказе store: начинается с initialStoreBackoff,
	// удваивается до maxStoreBackoff, сбрасывается успешным циклом.
	initialStoreBackoff = time.Second
	maxStoreBackoff     = 60 * time.Second
)

// RequestStore — контракт хранилища requests, нужный runtime'у агента.
// Реализуется repo.RequestRepo.
type RequestStore interface {
	// Fetch возвращает до limit requests этапа stage, самые давно
	// обновлённые первыми. При excludeLocked пропускаются requests
	// под чужим живым lock'ом.
	Fetch(ctx context.Context, stage domain.Stage, limit int, excludeLocked bool) ([]domain.Request, error)

	// Lock атомарно захватывает request на срок lease. Возвращает
	// repo.ErrLockContention, если lock держит другой владелец.
	Lock(ctx context.Context, id uuid.UUID, ownerToken string, lease time.Duration) error

	// Advance переводит request на newStage и мержит delta в payload.
	Advance(ctx context.Context, id uuid.UUID, ownerToken string, newStage domain.Stage, delta map[string]any) error

	// Release снимает lock владельца.
	Release(ctx context.Context, id uuid.UUID, ownerToken string) error

	// IncrementRetry увеличивает retry-счётчик, возвращает новое значение.
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)

	// MarkFailed переводит request в Failed с причиной и снимает lock.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Outcome — исход обработки одного request'а в группе.
type Outcome struct {
	// ID — идентификатор request'а.
	ID uuid.UUID

	// NextStage — этап, на который переводится request при успехе.
	NextStage domain.Stage

	// Delta — изменения payload, мержатся при переводе этапа.
	Delta map[string]any

	// Err — отказ backend-вызова; nil при успехе.
	Err error
}

// Handler выполняет операцию этапа над группой requests.
//
// Возвращает по одному Outcome на каждый request группы. Отказ одного
// request'а выражается его Outcome.Err и не влияет на соседей.
type Handler interface {
	HandleBatch(ctx context.Context, batch []*domain.Request) []Outcome
}

// StageTask — одна обязанность агента: этап выборки и его обработчик.
type StageTask struct {
	Stage   domain.Stage
	Handler Handler
}

// Agent — универсальный poll-execute-sleep runtime одного агента.
//
// Агент:
//   - Каждые poll_time_period выбирает из store до retrieve_bulk_size
//     requests своего этапа (старые по updated_at первыми)
//   - Захватывает каждый кандидат атомарным lock'ом с lease;
//     занятые другим воркером пропускает
//   - Передаёт захваченный batch диспетчеру, который группами зовёт
//     обработчик этапа и разводит исходы по отдельным записям store
//   - При отказе store ставит цикл на экспоненциальную паузу
//
// num_threads воркеров гоняют один и тот же цикл параллельно; за
// раздельность их работы отвечает locking-контракт store, никакого
// разделяемого состояния между воркерами нет. Несколько этапов у
// одного агента (carrier: Submitted и Polling) обходятся в каждом
// цикле по порядку.
type Agent struct {
	name  string
	tasks []StageTask

	store      RequestStore
	dispatcher *Dispatcher

	numThreads  int
	pollPeriod  time.Duration
	bulkSize    int
	leasePeriod time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Agent.
type Config struct {
	// Name — имя агента (collector, transformer, ...).
	Name string

	// Tasks — этапы агента с обработчиками, в порядке обхода.
	Tasks []StageTask

	// Store — хранилище requests.
	Store RequestStore

	// NumThreads — число параллельных воркеров (default: 1).
	NumThreads int

	// PollPeriod — период цикла опроса (default: 30s).
	PollPeriod time.Duration

	// BulkSize — максимум requests за выборку и максимум элементов
	// в одной групповой инвокации (default: 10).
	BulkSize int

	// MaxRetries — бюджет попыток этапа (default: 3).
	MaxRetries int

	// LeasePeriod — срок lease при захвате lock (default: 1h).
	LeasePeriod time.Duration

	// InvokeTimeout — таймаут одной групповой инвокации (default: 60s).
	InvokeTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Agent.
func New(cfg Config) *Agent {
	numThreads := cfg.NumThreads
	if numThreads <= 0 {
		numThreads = defaultNumThreads
	}

	pollPeriod := cfg.PollPeriod
	if pollPeriod <= 0 {
		pollPeriod = defaultPollPeriod
	}

	bulkSize := cfg.BulkSize
	if bulkSize <= 0 {
		bulkSize = defaultBulkSize
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	leasePeriod := cfg.LeasePeriod
	if leasePeriod <= 0 {
		leasePeriod = defaultLeasePeriod
	}

	invokeTimeout := cfg.InvokeTimeout
	if invokeTimeout <= 0 {
		invokeTimeout = defaultInvokeTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithAgent(logger, cfg.Name)

	return &Agent{
		name:        cfg.Name,
		tasks:       cfg.Tasks,
		store:       cfg.Store,
		numThreads:  numThreads,
		pollPeriod:  pollPeriod,
		bulkSize:    bulkSize,
		leasePeriod: leasePeriod,
		logger:      logger,
		dispatcher: NewDispatcher(DispatcherConfig{
			Agent:         cfg.Name,
			Store:         cfg.Store,
			GroupSize:     bulkSize,
			MaxRetries:    maxRetries,
			InvokeTimeout: invokeTimeout,
			Logger:        logger,
		}),
	}
}

// Name возвращает имя агента.
func (a *Agent) Name() string {
	return a.name
}

// Start запускает воркеров агента.
func (a *Agent) Start(ctx context.Context) error {
	if a.store == nil {
		return ErrNoStore
	}
	if len(a.tasks) == 0 {
		return ErrNoTasks
	}
	if a.IsStopped() {
		return ErrAgentStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel

	stages := make([]string, 0, len(a.tasks))
	for _, task := range a.tasks {
		stages = append(stages, string(task.Stage))
	}

	a.logger.Info("starting agent",
		"stages", stages,
		"threads", a.numThreads,
		"poll_period", a.pollPeriod,
		"bulk_size", a.bulkSize,
	)

	hostname, _ := os.Hostname()

	for i := 0; i < a.numThreads; i++ {
		// owner уникален на воркер и на запуск процесса: два процесса
		// одного агента на одной машине не делят lock'и.
		owner := fmt.Sprintf("%s@%s/%d/%s", a.name, hostname, i, uuid.NewString())

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.workLoop(ctx, owner)
		}()
	}

	a.logger.Info("agent started")
	return nil
}

// Stop останавливает агента и ждёт завершения воркеров.
func (a *Agent) Stop() {
	a.stoppedMu.Lock()
	a.stopped = true
	a.stoppedMu.Unlock()

	a.logger.Info("stopping agent...")

	if a.cancelFunc != nil {
		a.cancelFunc()
	}

	// Ждём завершения горутин
	a.wg.Wait()

	a.logger.Info("agent stopped")
}

// IsStopped проверяет, остановлен ли агент.
func (a *Agent) IsStopped() bool {
	a.stoppedMu.RLock()
	defer a.stoppedMu.RUnlock()
	return a.stopped
}

// workLoop — цикл poll-execute-sleep одного воркера.
//
// Такт отсчитывается от начала цикла к началу следующего: затянувшийся
// цикл начинает преемника сразу, не накапливая задержку. Отказ store
// заменяет обычный такт экспоненциальной паузой.
func (a *Agent) workLoop(ctx context.Context, owner string) {
	// Первый цикл сразу при старте
	timer := time.NewTimer(0)
	defer timer.Stop()

	backoff := initialStoreBackoff

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		started := time.Now()
		processed, err := a.cycle(ctx, owner)

		if err != nil {
			if ctx.Err() != nil {
				return
			}

			telemetry.StoreErrorsTotal.WithLabelValues(a.name).Inc()
			a.logger.Error("cycle failed, backing off",
				"owner", owner,
				"delay", backoff,
				"error", err,
			)

			timer.Reset(backoff)
			backoff = min(backoff*2, maxStoreBackoff)
			continue
		}

		backoff = initialStoreBackoff
		telemetry.CyclesTotal.WithLabelValues(a.name).Inc()

		if processed > 0 {
			a.logger.Debug("cycle finished",
				"processed", processed,
				"elapsed", time.Since(started),
			)
		}

		wait := a.pollPeriod - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// cycle выполняет по одной выборке на каждый этап агента.
func (a *Agent) cycle(ctx context.Context, owner string) (int, error) {
	processed := 0

	for _, task := range a.tasks {
		n, err := a.runStage(ctx, owner, task)
		if err != nil {
			return processed, err
		}
		processed += n
	}

	return processed, nil
}

// runStage выполняет fetch → lock → dispatch для одного этапа.
func (a *Agent) runStage(ctx context.Context, owner string, task StageTask) (int, error) {
	// 1. Кандидаты этапа, давно не обновлявшиеся первыми
	candidates, err := a.store.Fetch(ctx, task.Stage, a.bulkSize, true)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", task.Stage, err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	// 2. Захватываем по одному. Contention не ошибка: request уже
	// достался другому воркеру
	locked := make([]*domain.Request, 0, len(candidates))
	for i := range candidates {
		req := &candidates[i]

		err := a.store.Lock(ctx, req.ID, owner, a.leasePeriod)
		if errors.Is(err, repo.ErrLockContention) {
			telemetry.LockContentionsTotal.WithLabelValues(a.name).Inc()
			a.logger.Debug("lock contention, skipping", "request_id", req.ID)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("lock %s: %w", req.ID, err)
		}

		locked = append(locked, req)
	}

	if len(locked) == 0 {
		return 0, nil
	}

	// 3. Группы — диспетчеру; исходы он разводит по записям store сам
	a.dispatcher.Dispatch(ctx, owner, task, locked)

	return len(locked), nil
}
