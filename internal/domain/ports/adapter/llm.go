package adapter

import (
	"context"

	"iamoneai-gateway/internal/domain/model"
)

// Provider names an upstream inference service.
type Provider string

const (
	ProviderRunPod Provider = "runpod"
	ProviderGroq   Provider = "groq"
)

// ComponentHealth is the probe result for one upstream endpoint or store.
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"` // healthy | unhealthy | not_configured | error
	Detail string `json:"detail,omitempty"`
}

// LLMAdapter is the port for one upstream provider. Chat dispatches a
// canonical request and returns a canonical result; failures are
// domain.ErrTimeout, domain.ErrTransport or *domain.UpstreamError.
type LLMAdapter interface {
	Provider() Provider
	Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResult, error)
	HealthCheck(ctx context.Context) []ComponentHealth
}

// ModelRouter resolves a caller-supplied model name onto an adapter.
// Unknown names fall back to the configured default rather than failing.
type ModelRouter interface {
	Resolve(name string) (model.ModelID, LLMAdapter)
	Models() []string
	HealthCheck(ctx context.Context) []ComponentHealth
}

// TokenEstimator approximates usage when a provider reports none
// (metrics need numbers even for providers that omit accounting).
type TokenEstimator interface {
	Estimate(messages []model.Message, reply string) *model.Usage
}
