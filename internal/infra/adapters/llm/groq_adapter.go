package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"iamoneai-gateway/internal/config"
	"iamoneai-gateway/internal/domain"
	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/adapter"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.LLMAdapter = (*GroqAdapter)(nil)

const groqTimeout = 60 * time.Second

// GroqAdapter talks to Groq's OpenAI-compatible gateway through the
// OpenAI SDK with a swapped base URL. The raw response JSON still flows
// through the shape normalizer so Groq and RunPod yield one canonical
// result, whatever either decides to answer with.
type GroqAdapter struct {
	client    openai.Client
	modelName string // upstream model, e.g. llama-3.1-8b-instant
	log       *zerolog.Logger
}

func NewGroqAdapter(cfg config.GroqConfig, logger *zerolog.Logger) (*GroqAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("groq api key empty")
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(groqTimeout),
		option.WithMaxRetries(0), // retry policy belongs to the caller
	)
	return &GroqAdapter{client: client, modelName: cfg.Model, log: logger}, nil
}

func (g *GroqAdapter) Provider() adapter.Provider { return adapter.ProviderGroq }

func (g *GroqAdapter) Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResult, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.modelName),
		Messages:    msgs,
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &domain.UpstreamError{Provider: "groq", Status: apiErr.StatusCode, Body: truncate(apiErr.Error(), 2048)}
		}
		return nil, classifyTransport("groq", err)
	}

	raw := []byte(resp.RawJSON())
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &domain.UpstreamError{Provider: "groq", Status: 200, Body: truncate(string(raw), 2048)}
	}

	return &model.ChatResult{
		Text:  ExtractText(v),
		Usage: ExtractUsage(v),
		Raw:   raw,
	}, nil
}

func (g *GroqAdapter) HealthCheck(ctx context.Context) []adapter.ComponentHealth {
	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := g.client.Models.List(hctx)
	if err != nil {
		return []adapter.ComponentHealth{{Name: "llm_groq", Status: "error", Detail: err.Error()}}
	}
	return []adapter.ComponentHealth{{Name: "llm_groq", Status: "healthy"}}
}
