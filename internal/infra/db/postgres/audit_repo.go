package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"iamoneai-gateway/internal/domain"
	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/repository"
)

var _ repository.AuditRepository = (*auditRepo)(nil)

// auditRepo appends exchange and outcome records. Rows are never updated
// or deleted here; IDs are ULIDs so insertion order is recoverable from
// the key alone.
//
// Expected schema (see cmd/migrate):
//
//	chat_exchanges(id text pk, user_id text, message text, response text,
//	               model text, metadata jsonb, created_at timestamptz)
//	request_logs(id text pk, user_id text, endpoint text, model text,
//	             latency_ms int, success bool, error text, created_at timestamptz)
type auditRepo struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

// NewAuditRepo accepts a nil pool, which means "unconfigured": every
// operation degrades instead of crashing.
func NewAuditRepo(pool *pgxpool.Pool, logger *zerolog.Logger) repository.AuditRepository {
	return &auditRepo{pool: pool, log: logger}
}

func (r *auditRepo) RecordExchange(ctx context.Context, owner, message, response, modelName string, metadata map[string]any) error {
	if r.pool == nil {
		return domain.ErrStoreUnavailable
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO chat_exchanges (id, user_id, message, response, model, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())`

	_, err = r.pool.Exec(ctx, q, ulid.Make().String(), owner, message, response, modelName, meta)
	if err != nil {
		r.logWriteError(err, "chat_exchanges")
		return err
	}
	return nil
}

func (r *auditRepo) RecordOutcome(ctx context.Context, owner, endpoint, modelName string, latencyMs int, success bool, errMsg string) error {
	if r.pool == nil {
		return domain.ErrStoreUnavailable
	}

	const q = `
INSERT INTO request_logs (id, user_id, endpoint, model, latency_ms, success, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), now())`

	_, err := r.pool.Exec(ctx, q, ulid.Make().String(), owner, endpoint, modelName, latencyMs, success, errMsg)
	if err != nil {
		r.logWriteError(err, "request_logs")
		return err
	}
	return nil
}

func (r *auditRepo) RecentExchanges(ctx context.Context, owner string, limit int) ([]model.ChatExchange, error) {
	if r.pool == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	const q = `
SELECT id, user_id, message, response, model, metadata, created_at
FROM chat_exchanges
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`

	rows, err := r.pool.Query(ctx, q, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChatExchange
	for rows.Next() {
		var ex model.ChatExchange
		var meta []byte
		var createdAt time.Time
		if err := rows.Scan(&ex.ID, &ex.UserID, &ex.Message, &ex.Response, &ex.Model, &meta, &createdAt); err != nil {
			return nil, err
		}
		ex.CreatedAt = createdAt
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &ex.Metadata)
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// logWriteError keeps the postgres error code visible in logs; audit
// writes are best-effort so this is the only place failures surface.
func (r *auditRepo) logWriteError(err error, table string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		r.log.Warn().Str("table", table).Str("code", pgErr.Code).Str("detail", pgErr.Message).Msg("audit write failed")
		return
	}
	r.log.Warn().Str("table", table).Err(err).Msg("audit write failed")
}
