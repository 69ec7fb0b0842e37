package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// defaultInsertBatch — размер под-партии при массовой регистрации contents.
const defaultInsertBatch = 100

// ContentRepo — репозиторий contents, обнаруженных листингом коллекций.
type ContentRepo struct {
	pool *pgxpool.Pool
}

// NewContentRepo создаёт новый ContentRepo.
func NewContentRepo(pool *pgxpool.Pool) *ContentRepo {
	return &ContentRepo{pool: pool}
}

// RegisterBatch регистрирует contents под-партиями по defaultInsertBatch.
//
// Повторная регистрация той же записи (retry этапа transporter)
// игнорируется по уникальному ключу (request_id, scope, name, min_id,
// max_id). Возвращает число фактически вставленных строк.
func (r *ContentRepo) RegisterBatch(ctx context.Context, contents []domain.Content) (int64, error) {
	query := `
		INSERT INTO contents (id, request_id, scope, name, min_id, max_id,
		                      content_type, bytes, adler32, path, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (request_id, scope, name, min_id, max_id) DO NOTHING
	`

	var inserted int64
	for start := 0; start < len(contents); start += defaultInsertBatch {
		end := start + defaultInsertBatch
		if end > len(contents) {
			end = len(contents)
		}

		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			c := &contents[i]
			batch.Queue(query,
				c.ID,
				c.RequestID,
				c.Scope,
				c.Name,
				c.MinID,
				c.MaxID,
				c.ContentType,
				c.Bytes,
				nullString(c.Adler32),
				nullString(c.Path),
				c.Status,
				c.CreatedAt,
			)
		}

		results := r.pool.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return inserted, fmt.Errorf("register contents batch: %w", err)
			}
			inserted += tag.RowsAffected()
		}
		if err := results.Close(); err != nil {
			return inserted, fmt.Errorf("close contents batch: %w", err)
		}
	}

	return inserted, nil
}

// ListByRequest возвращает contents одного request.
func (r *ContentRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]domain.Content, error) {
	query := `
		SELECT id, request_id, scope, name, min_id, max_id, content_type,
		       bytes, adler32, path, status, created_at
		FROM contents
		WHERE request_id = $1
		ORDER BY scope, name, min_id
	`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	defer rows.Close()

	var contents []domain.Content
	for rows.Next() {
		var c domain.Content
		var adler32, path *string
		err := rows.Scan(
			&c.ID,
			&c.RequestID,
			&c.Scope,
			&c.Name,
			&c.MinID,
			&c.MaxID,
			&c.ContentType,
			&c.Bytes,
			&adler32,
			&path,
			&c.Status,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		if adler32 != nil {
			c.Adler32 = *adler32
		}
		if path != nil {
			c.Path = *path
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

// CountByRequest возвращает число contents одного request.
func (r *ContentRepo) CountByRequest(ctx context.Context, requestID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM contents WHERE request_id = $1`, requestID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count contents: %w", err)
	}
	return count, nil
}
