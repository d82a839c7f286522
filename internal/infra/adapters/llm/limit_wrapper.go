package llm

import (
	"context"

	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.LLMAdapter = (*limitedLLM)(nil)

type limitedLLM struct {
	inner adapter.LLMAdapter
	sem   chan struct{}
}

// NewLimitedLLM caps concurrent upstream calls on the wrapped adapter.
func NewLimitedLLM(inner adapter.LLMAdapter, maxConcurrent int) adapter.LLMAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedLLM{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedLLM) Provider() adapter.Provider { return l.inner.Provider() }

func (l *limitedLLM) Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResult, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Chat(ctx, req)
}

func (l *limitedLLM) HealthCheck(ctx context.Context) []adapter.ComponentHealth {
	return l.inner.HealthCheck(ctx)
}
