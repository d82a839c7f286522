package repository

import (
	"context"

	"iamoneai-gateway/internal/domain/model"
)

// AuditRepository appends exchange and outcome records to the durable
// store. Writes are best-effort: callers log failures and move on, the
// records are never on the critical path of a chat request.
type AuditRepository interface {
	RecordExchange(ctx context.Context, owner, message, response, modelName string, metadata map[string]any) error
	RecordOutcome(ctx context.Context, owner, endpoint, modelName string, latencyMs int, success bool, errMsg string) error
	RecentExchanges(ctx context.Context, owner string, limit int) ([]model.ChatExchange, error)
}
