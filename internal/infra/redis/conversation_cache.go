package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

var _ repository.ConversationRepository = (*ConversationCache)(nil)

// ConversationCache keeps one transcript per owner under conv:<owner>.
// Every save resets the TTL (sliding expiry). The stored transcript is
// never truncated here; only the upstream-bound tail is clipped, by the
// orchestrator.
type ConversationCache struct {
	client RedisClient
	ttl    time.Duration
	log    *zerolog.Logger
}

// NewConversationCache accepts a nil client, which means "unconfigured":
// loads come back empty and saves are no-ops.
func NewConversationCache(client RedisClient, ttl time.Duration, logger *zerolog.Logger) *ConversationCache {
	return &ConversationCache{client: client, ttl: ttl, log: logger}
}

func (c *ConversationCache) Load(ctx context.Context, owner string) ([]model.Message, error) {
	if c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, convKey(owner))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		c.log.Warn().Err(err).Str("owner", owner).Msg("conversation load failed, treating as empty")
		return nil, nil
	}

	var conv model.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		c.log.Warn().Err(err).Str("owner", owner).Msg("corrupt conversation record, treating as empty")
		return nil, nil
	}
	return conv.Messages, nil
}

func (c *ConversationCache) Save(ctx context.Context, owner string, messages []model.Message) error {
	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(model.Conversation{Messages: messages, UpdatedAt: time.Now()})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, convKey(owner), data, c.ttl)
}

func (c *ConversationCache) Clear(ctx context.Context, owner string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, convKey(owner))
}

func convKey(owner string) string { return "conv:" + owner }
