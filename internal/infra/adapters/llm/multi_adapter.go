// File: internal/infra/adapters/llm/multi_adapter.go
package llm

import (
	"context"
	"sort"

	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/adapter"
	"iamoneai-gateway/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.ModelRouter = (*MultiAdapter)(nil)

// MultiAdapter is the model directory: each model name maps to the
// provider adapter that serves it. An unknown name falls back to the
// default model rather than failing. Fallbacks mask client typos, so
// every one is logged and counted.
type MultiAdapter struct {
	defaultModel model.ModelID
	byModel      map[model.ModelID]adapter.LLMAdapter
	log          *zerolog.Logger
}

func NewMultiAdapter(defaultModel model.ModelID, byModel map[model.ModelID]adapter.LLMAdapter, logger *zerolog.Logger) *MultiAdapter {
	return &MultiAdapter{
		defaultModel: defaultModel,
		byModel:      byModel,
		log:          logger,
	}
}

func (m *MultiAdapter) Resolve(name string) (model.ModelID, adapter.LLMAdapter) {
	if id, ok := model.ParseModel(name); ok {
		if a := m.byModel[id]; a != nil {
			return id, a
		}
	}
	if name != "" && name != string(m.defaultModel) {
		m.log.Warn().Str("requested", name).Str("fallback", string(m.defaultModel)).
			Msg("unknown or unconfigured model, falling back to default")
		metrics.ModelFallback(name)
	}
	if a := m.byModel[m.defaultModel]; a != nil {
		return m.defaultModel, a
	}
	// last resort: first available
	for id, a := range m.byModel {
		if a != nil {
			return id, a
		}
	}
	return m.defaultModel, nil
}

func (m *MultiAdapter) Models() []string {
	out := make([]string, 0, len(m.byModel))
	for id := range m.byModel {
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}

func (m *MultiAdapter) HealthCheck(ctx context.Context) []adapter.ComponentHealth {
	seen := map[adapter.LLMAdapter]struct{}{}
	var out []adapter.ComponentHealth
	for _, a := range m.byModel {
		if a == nil {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a.HealthCheck(ctx)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
