package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// lockedBatch кладёт requests в store под lock владельца, как это
// делает воркер перед Dispatch.
func lockedBatch(t *testing.T, store *fakeStore, owner string, reqs ...*domain.Request) []*domain.Request {
	t.Helper()
	batch := make([]*domain.Request, 0, len(reqs))
	for _, r := range reqs {
		if err := store.Lock(context.Background(), r.ID, owner, time.Hour); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		batch = append(batch, r)
	}
	return batch
}

// --- Dispatcher Config Tests ---

func TestNewDispatcher_Defaults(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Agent: "collector"})

	if d.groupSize != defaultBulkSize {
		t.Errorf("expected default group size %d, got %d", defaultBulkSize, d.groupSize)
	}
	if d.maxRetries != defaultMaxRetries {
		t.Errorf("expected default max retries %d, got %d", defaultMaxRetries, d.maxRetries)
	}
	if d.invokeTimeout != defaultInvokeTimeout {
		t.Errorf("expected default invoke timeout %v, got %v", defaultInvokeTimeout, d.invokeTimeout)
	}
}

// --- Grouping Tests ---

func TestDispatcher_GroupsBySize(t *testing.T) {
	var reqs []*domain.Request
	for i := 0; i < 25; i++ {
		reqs = append(reqs, newRequest(domain.StageCreated))
	}
	store := newFakeStore(reqs...)
	owner := "collector@test/0/a"
	batch := lockedBatch(t, store, owner, reqs...)

	rec := &recordingHandler{inner: advanceAll(domain.StageCollectionListed, nil)}
	d := NewDispatcher(DispatcherConfig{
		Agent:     "collector",
		Store:     store,
		GroupSize: 10,
		Logger:    quietLogger(),
	})

	stats := d.Dispatch(context.Background(), owner, StageTask{Stage: domain.StageCreated, Handler: rec}, batch)

	// 25 requests при группе 10 — ровно 3 инвокации: 10, 10, 5
	if rec.calls() != 3 {
		t.Fatalf("expected 3 invocations, got %d", rec.calls())
	}
	sizes := []int{len(rec.batches[0]), len(rec.batches[1]), len(rec.batches[2])}
	if sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Errorf("expected group sizes [10 10 5], got %v", sizes)
	}
	if stats.Advanced != 25 {
		t.Errorf("expected 25 advanced, got %+v", stats)
	}
}

func TestDispatcher_SingleGroup(t *testing.T) {
	var reqs []*domain.Request
	for i := 0; i < 4; i++ {
		reqs = append(reqs, newRequest(domain.StageCreated))
	}
	store := newFakeStore(reqs...)
	owner := "collector@test/0/a"
	batch := lockedBatch(t, store, owner, reqs...)

	rec := &recordingHandler{inner: advanceAll(domain.StageCollectionListed, nil)}
	d := NewDispatcher(DispatcherConfig{
		Agent:     "collector",
		Store:     store,
		GroupSize: 10,
		Logger:    quietLogger(),
	})

	d.Dispatch(context.Background(), owner, StageTask{Stage: domain.StageCreated, Handler: rec}, batch)

	if rec.calls() != 1 {
		t.Errorf("expected 1 invocation for batch below group size, got %d", rec.calls())
	}
}

// --- Outcome Tests ---

func TestDispatcher_PartialFailure(t *testing.T) {
	ok1 := newRequest(domain.StageCreated)
	bad := newRequest(domain.StageCreated)
	ok2 := newRequest(domain.StageCreated)
	store := newFakeStore(ok1, bad, ok2)
	owner := "collector@test/0/a"
	batch := lockedBatch(t, store, owner, ok1, bad, ok2)

	handler := funcHandler(func(_ context.Context, group []*domain.Request) []Outcome {
		outcomes := make([]Outcome, 0, len(group))
		for _, r := range group {
			if r.ID == bad.ID {
				outcomes = append(outcomes, Outcome{ID: r.ID, Err: errors.New("listing failed")})
				continue
			}
			outcomes = append(outcomes, Outcome{ID: r.ID, NextStage: domain.StageCollectionListed})
		}
		return outcomes
	})

	d := NewDispatcher(DispatcherConfig{
		Agent:      "collector",
		Store:      store,
		MaxRetries: 3,
		Logger:     quietLogger(),
	})

	stats := d.Dispatch(context.Background(), owner, StageTask{Stage: domain.StageCreated, Handler: handler}, batch)

	if stats.Advanced != 2 || stats.Retried != 1 || stats.Failed != 0 {
		t.Fatalf("expected 2 advanced / 1 retried, got %+v", stats)
	}

	// Успехи продвинуты, отказ остался на этапе с инкрементом retry
	for _, id := range []*domain.Request{ok1, ok2} {
		got := store.get(t, id.ID)
		if got.Stage != domain.StageCollectionListed {
			t.Errorf("request %s should be advanced, got %s", id.ID, got.Stage)
		}
		if got.LockedBy != nil {
			t.Errorf("request %s should be released", id.ID)
		}
	}

	failed := store.get(t, bad.ID)
	if failed.Stage != domain.StageCreated {
		t.Errorf("failed request should stay in Created, got %s", failed.Stage)
	}
	if failed.Retries != 1 {
		t.Errorf("failed request should have 1 retry, got %d", failed.Retries)
	}
	if failed.LockedBy != nil {
		t.Error("failed request should be released for the next cycle")
	}
}

func TestDispatcher_MissingOutcome(t *testing.T) {
	answered := newRequest(domain.StageCreated)
	ignored := newRequest(domain.StageCreated)
	store := newFakeStore(answered, ignored)
	owner := "collector@test/0/a"
	batch := lockedBatch(t, store, owner, answered, ignored)

	// Обработчик молчит про второй request
	handler := funcHandler(func(_ context.Context, _ []*domain.Request) []Outcome {
		return []Outcome{{ID: answered.ID, NextStage: domain.StageCollectionListed}}
	})

	d := NewDispatcher(DispatcherConfig{
		Agent:      "collector",
		Store:      store,
		MaxRetries: 3,
		Logger:     quietLogger(),
	})

	stats := d.Dispatch(context.Background(), owner, StageTask{Stage: domain.StageCreated, Handler: handler}, batch)

	if stats.Advanced != 1 || stats.Retried != 1 {
		t.Fatalf("expected 1 advanced / 1 retried, got %+v", stats)
	}

	// Пропущенный request не брошен под lock'ом
	got := store.get(t, ignored.ID)
	if got.LockedBy != nil {
		t.Error("ignored request should be released")
	}
	if got.Retries != 1 {
		t.Errorf("ignored request should have 1 retry, got %d", got.Retries)
	}
}

func TestDispatcher_IllegalTransition(t *testing.T) {
	req := newRequest(domain.StageCreated)
	store := newFakeStore(req)
	owner := "collector@test/0/a"
	batch := lockedBatch(t, store, owner, req)

	// Created → Notified вне конвейера collector'а
	handler := advanceAll(domain.StageNotified, nil)

	d := NewDispatcher(DispatcherConfig{
		Agent:  "collector",
		Store:  store,
		Logger: quietLogger(),
	})

	stats := d.Dispatch(context.Background(), owner, StageTask{Stage: domain.StageCreated, Handler: handler}, batch)

	if stats.Advanced != 0 || stats.Retried != 0 || stats.Failed != 0 {
		t.Fatalf("illegal transition should not be recorded as an outcome, got %+v", stats)
	}

	got := store.get(t, req.ID)
	if got.Stage != domain.StageCreated {
		t.Errorf("request should stay in Created, got %s", got.Stage)
	}
	if got.LockedBy != nil {
		t.Error("request should be released")
	}
}

func TestDispatcher_RetryBudgetExhausted(t *testing.T) {
	req := newRequest(domain.StageSubmitted)
	req.Retries = 2 // две попытки уже потрачены
	store := newFakeStore(req)
	owner := "carrier@test/0/a"
	batch := lockedBatch(t, store, owner, req)

	handler := funcHandler(func(_ context.Context, group []*domain.Request) []Outcome {
		return []Outcome{{ID: group[0].ID, Err: errors.New("transfer tool rejected the rule")}}
	})

	d := NewDispatcher(DispatcherConfig{
		Agent:      "carrier",
		Store:      store,
		MaxRetries: 3,
		Logger:     quietLogger(),
	})

	stats := d.Dispatch(context.Background(), owner, StageTask{Stage: domain.StageSubmitted, Handler: handler}, batch)

	if stats.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", stats)
	}

	got := store.get(t, req.ID)
	if got.Stage != domain.StageFailed {
		t.Errorf("expected Failed stage, got %s", got.Stage)
	}
	if got.Reason != "transfer tool rejected the rule" {
		t.Errorf("last error should be stored as reason, got %q", got.Reason)
	}
	if got.LockedBy != nil {
		t.Error("failed request should carry no lock")
	}
}

func TestDispatcher_BudgetNotExhaustedOnLastChance(t *testing.T) {
	// max_retries−1 отказов уже было; успех на последней попытке
	// продвигает request как ни в чём не бывало
	req := newRequest(domain.StageCreated)
	req.Retries = 2
	store := newFakeStore(req)
	owner := "collector@test/0/a"
	batch := lockedBatch(t, store, owner, req)

	d := NewDispatcher(DispatcherConfig{
		Agent:      "collector",
		Store:      store,
		MaxRetries: 3,
		Logger:     quietLogger(),
	})

	stats := d.Dispatch(context.Background(), owner,
		StageTask{Stage: domain.StageCreated, Handler: advanceAll(domain.StageCollectionListed, nil)}, batch)

	if stats.Advanced != 1 {
		t.Fatalf("expected 1 advanced, got %+v", stats)
	}

	got := store.get(t, req.ID)
	if got.Stage != domain.StageCollectionListed {
		t.Errorf("expected CollectionListed, got %s", got.Stage)
	}
	if got.Retries != 0 {
		t.Errorf("advance should reset retries, got %d", got.Retries)
	}
}

func TestDispatcher_InvokeTimeout(t *testing.T) {
	req := newRequest(domain.StageCreated)
	store := newFakeStore(req)
	owner := "collector@test/0/a"
	batch := lockedBatch(t, store, owner, req)

	// Обработчик висит до конца контекста инвокации
	stuck := funcHandler(func(ctx context.Context, group []*domain.Request) []Outcome {
		<-ctx.Done()
		return []Outcome{{ID: group[0].ID, Err: ctx.Err()}}
	})

	d := NewDispatcher(DispatcherConfig{
		Agent:         "collector",
		Store:         store,
		MaxRetries:    3,
		InvokeTimeout: 30 * time.Millisecond,
		Logger:        quietLogger(),
	})

	start := time.Now()
	stats := d.Dispatch(context.Background(), owner, StageTask{Stage: domain.StageCreated, Handler: stuck}, batch)
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Fatalf("dispatch should be bounded by invoke timeout, took %v", elapsed)
	}
	if stats.Retried != 1 {
		t.Fatalf("expected 1 retried, got %+v", stats)
	}

	got := store.get(t, req.ID)
	if got.Stage != domain.StageCreated {
		t.Errorf("request should stay in Created, got %s", got.Stage)
	}
	if got.LockedBy != nil {
		t.Error("request should be released after timeout")
	}
}
