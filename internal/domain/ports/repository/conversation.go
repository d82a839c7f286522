package repository

import (
	"context"

	"iamoneai-gateway/internal/domain/model"
)

// ConversationRepository stores one transcript per owner with a sliding
// TTL. Load returns an empty transcript when the store is absent or
// unconfigured; Save resets the TTL on every write.
type ConversationRepository interface {
	Load(ctx context.Context, owner string) ([]model.Message, error)
	Save(ctx context.Context, owner string, messages []model.Message) error
	Clear(ctx context.Context, owner string) error
}
