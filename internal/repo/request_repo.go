package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// requestColumns — список колонок requests в порядке сканирования.
const requestColumns = `id, scope, name, requester, priority, stage, payload, retries,
	       reason, locked_by, lock_expires_at, expires_at, created_at, updated_at`

// RequestRepo — Request Store: единственный источник правды о requests.
//
// Вся межпроцессная координация агентов идёт через его атомарные
// примитивы Lock/Advance/Release: никакого разделяемого состояния
// в памяти между агентами нет.
type RequestRepo struct {
	pool *pgxpool.Pool
}

// NewRequestRepo создаёт новый RequestRepo.
func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

// Create создаёт новый request.
func (r *RequestRepo) Create(ctx context.Context, req *domain.Request) error {
	payloadJSON, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO requests (id, scope, name, requester, priority, stage, payload,
		                      retries, reason, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		req.ID,
		req.Scope,
		req.Name,
		nullString(req.Requester),
		req.Priority,
		req.Stage,
		payloadJSON,
		req.Retries,
		nullString(req.Reason),
		req.ExpiresAt,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetByID возвращает request по ID.
func (r *RequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	return r.scanRequest(r.pool.QueryRow(ctx, query, id))
}

// Fetch возвращает requests этапа stage, самые давно обновлённые первыми.
//
// С excludeLocked пропускаются строки с живым lease; истёкший lease
// эквивалентен свободному. Конкурентные Fetch могут вернуть одни и те
// же свободные строки — арбитраж делает Lock.
func (r *RequestRepo) Fetch(ctx context.Context, stage domain.Stage, limit int, excludeLocked bool) ([]domain.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE stage = $1
		  AND (NOT $3::bool OR locked_by IS NULL OR lock_expires_at <= now())
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, stage, limit, excludeLocked)
	if err != nil {
		return nil, fmt.Errorf("fetch requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.Request
	for rows.Next() {
		req, err := r.scanRequestFromRows(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// Lock атомарно захватывает request на lease.
//
// Успех, если request свободен, его lease истёк, либо он уже удержан
// этим же владельцем (продление). Иначе ErrLockContention. Исчезнувший
// request (ушёл с этапа, удалён) тоже даёт ErrLockContention: для
// воркера оба случая значат "пропусти".
func (r *RequestRepo) Lock(ctx context.Context, id uuid.UUID, ownerToken string, lease time.Duration) error {
	query := `
		UPDATE requests
		SET locked_by = $2, lock_expires_at = now() + make_interval(secs => $3)
		WHERE id = $1
		  AND (locked_by IS NULL OR locked_by = $2 OR lock_expires_at <= now())
	`
	result, err := r.pool.Exec(ctx, query, id, ownerToken, lease.Seconds())
	if err != nil {
		return fmt.Errorf("lock request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLockContention
	}
	return nil
}

// Advance атомарно переводит request на этап newStage и мержит delta
// в payload. Всё или ничего: этап, payload и updated_at меняются одним
// UPDATE под живым lock владельца; retry-счётчик этапа сбрасывается.
// Lock остаётся за владельцем — снимается отдельным Release.
func (r *RequestRepo) Advance(ctx context.Context, id uuid.UUID, ownerToken string, newStage domain.Stage, delta map[string]any) error {
	deltaJSON := []byte(`{}`)
	if len(delta) > 0 {
		var err error
		deltaJSON, err = json.Marshal(delta)
		if err != nil {
			return fmt.Errorf("marshal payload delta: %w", err)
		}
	}

	query := `
		UPDATE requests
		SET stage = $3,
		    payload = COALESCE(payload, '{}'::jsonb) || $4::jsonb,
		    retries = 0,
		    reason = NULL,
		    updated_at = now()
		WHERE id = $1 AND locked_by = $2 AND lock_expires_at > now()
	`
	result, err := r.pool.Exec(ctx, query, id, ownerToken, newStage, deltaJSON)
	if err != nil {
		return fmt.Errorf("advance request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Release снимает lock владельца. Работает и после истечения lease,
// пока lock не перехвачен другим владельцем.
func (r *RequestRepo) Release(ctx context.Context, id uuid.UUID, ownerToken string) error {
	query := `
		UPDATE requests
		SET locked_by = NULL, lock_expires_at = NULL
		WHERE id = $1 AND locked_by = $2
	`
	result, err := r.pool.Exec(ctx, query, id, ownerToken)
	if err != nil {
		return fmt.Errorf("release request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// IncrementRetry увеличивает retry-счётчик и возвращает новое значение.
func (r *RequestRepo) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		UPDATE requests
		SET retries = retries + 1, updated_at = now()
		WHERE id = $1
		RETURNING retries
	`
	var retries int
	err := r.pool.QueryRow(ctx, query, id).Scan(&retries)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment retry: %w", err)
	}
	return retries, nil
}

// MarkFailed переводит request в Failed с причиной и снимает lock.
func (r *RequestRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE requests
		SET stage = 'Failed', reason = $2, locked_by = NULL,
		    lock_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("mark request failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetFailed возвращает Failed request в работу на указанный этап.
// Единственный легальный выход из Failed; выполняется только вручную.
func (r *RequestRepo) ResetFailed(ctx context.Context, id uuid.UUID, stage domain.Stage) error {
	query := `
		UPDATE requests
		SET stage = $2, retries = 0, reason = NULL, locked_by = NULL,
		    lock_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND stage = 'Failed'
	`
	result, err := r.pool.Exec(ctx, query, id, stage)
	if err != nil {
		return fmt.Errorf("reset request: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidState
	}
	return nil
}

// List возвращает requests с фильтрацией для admin-инструментов.
func (r *RequestRepo) List(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE ($1::text IS NULL OR stage = $1)
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, nullString(string(filter.Stage)), limit)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.Request
	for rows.Next() {
		req, err := r.scanRequestFromRows(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// SweepExpiredLocks очищает lock-колонки строк с истёкшим lease.
// Для корректности не обязателен (Fetch и Lock сами считают истёкший
// lease свободным); держит таблицу наблюдаемой. Возвращает число строк.
func (r *RequestRepo) SweepExpiredLocks(ctx context.Context) (int64, error) {
	query := `
		UPDATE requests
		SET locked_by = NULL, lock_expires_at = NULL
		WHERE locked_by IS NOT NULL AND lock_expires_at <= now()
	`
	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("sweep expired locks: %w", err)
	}
	return result.RowsAffected(), nil
}

// ExpireOverdue переводит просроченные requests (lifetime + grace
// истекли) в Failed. Терминальные этапы не трогает.
func (r *RequestRepo) ExpireOverdue(ctx context.Context, grace time.Duration) (int64, error) {
	query := `
		UPDATE requests
		SET stage = 'Failed', reason = 'request lifetime exceeded',
		    locked_by = NULL, lock_expires_at = NULL, updated_at = now()
		WHERE expires_at IS NOT NULL
		  AND expires_at + make_interval(secs => $1) <= now()
		  AND stage NOT IN ('Notified', 'Failed')
	`
	result, err := r.pool.Exec(ctx, query, grace.Seconds())
	if err != nil {
		return 0, fmt.Errorf("expire overdue requests: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Helpers ---

// RequestFilter — параметры фильтрации requests.
type RequestFilter struct {
	Stage domain.Stage
	Limit int
}

// scanRequest сканирует одну строку в Request.
func (r *RequestRepo) scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	var payloadJSON []byte
	var requester, reason *string

	err := row.Scan(
		&req.ID,
		&req.Scope,
		&req.Name,
		&requester,
		&req.Priority,
		&req.Stage,
		&payloadJSON,
		&req.Retries,
		&reason,
		&req.LockedBy,
		&req.LockExpiresAt,
		&req.ExpiresAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &req.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if requester != nil {
		req.Requester = *requester
	}
	if reason != nil {
		req.Reason = *reason
	}

	return &req, nil
}

// scanRequestFromRows сканирует строку из rows в Request.
func (r *RequestRepo) scanRequestFromRows(rows pgx.Rows) (*domain.Request, error) {
	var req domain.Request
	var payloadJSON []byte
	var requester, reason *string

	err := rows.Scan(
		&req.ID,
		&req.Scope,
		&req.Name,
		&requester,
		&req.Priority,
		&req.Stage,
		&payloadJSON,
		&req.Retries,
		&reason,
		&req.LockedBy,
		&req.LockExpiresAt,
		&req.ExpiresAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &req.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if requester != nil {
		req.Requester = *requester
	}
	if reason != nil {
		req.Reason = *reason
	}

	return &req, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
