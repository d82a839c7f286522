package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"iamoneai-gateway/internal/config"
	"iamoneai-gateway/internal/domain"
	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.LLMAdapter = (*RunPodAdapter)(nil)

const runpodTimeout = 120 * time.Second // runsync is a job queue, cold starts are slow

// RunPodAdapter dispatches against RunPod serverless runsync endpoints.
// Each model has its own endpoint ID; payload and response shapes follow
// the serverless vLLM convention and are normalized on the way back.
type RunPodAdapter struct {
	apiKey    string
	base      string // e.g., https://api.runpod.ai/v2
	endpoints map[model.ModelID]string
	client    *http.Client
	log       *zerolog.Logger
}

func NewRunPodAdapter(cfg config.RunPodConfig, logger *zerolog.Logger) (*RunPodAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("runpod api key empty")
	}
	endpoints := make(map[model.ModelID]string, len(cfg.Endpoints))
	for name, id := range cfg.Endpoints {
		if m, ok := model.ParseModel(name); ok && id != "" {
			endpoints[m] = id
		}
	}
	if len(endpoints) == 0 {
		return nil, errors.New("no runpod endpoints configured")
	}
	return &RunPodAdapter{
		apiKey:    cfg.APIKey,
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		endpoints: endpoints,
		client:    &http.Client{Timeout: runpodTimeout},
		log:       logger,
	}, nil
}

func (r *RunPodAdapter) Provider() adapter.Provider { return adapter.ProviderRunPod }

// Models lists the model names this adapter can serve.
func (r *RunPodAdapter) Models() []model.ModelID {
	out := make([]model.ModelID, 0, len(r.endpoints))
	for m := range r.endpoints {
		out = append(out, m)
	}
	return out
}

type runpodPayload struct {
	Input struct {
		Messages    []model.Message `json:"messages"`
		MaxTokens   int             `json:"max_tokens"`
		Temperature float64         `json:"temperature"`
	} `json:"input"`
}

func (r *RunPodAdapter) Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResult, error) {
	endpointID, ok := r.endpoints[req.Model]
	if !ok {
		return nil, fmt.Errorf("runpod: model %q: %w", req.Model, domain.ErrInvalidArgument)
	}

	var payload runpodPayload
	payload.Input.Messages = req.Messages
	payload.Input.MaxTokens = req.MaxTokens
	payload.Input.Temperature = req.Temperature

	b, _ := json.Marshal(payload)
	url := fmt.Sprintf("%s/%s/runsync", r.base, endpointID)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport("runpod", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return nil, fmt.Errorf("runpod read body: %w", domain.ErrTransport)
	}
	if resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{Provider: "runpod", Status: resp.StatusCode, Body: truncate(string(body), 2048)}
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &domain.UpstreamError{Provider: "runpod", Status: resp.StatusCode, Body: truncate(string(body), 2048)}
	}

	return &model.ChatResult{
		Text:  ExtractText(v),
		Usage: ExtractUsage(v),
		Raw:   body,
	}, nil
}

func (r *RunPodAdapter) HealthCheck(ctx context.Context) []adapter.ComponentHealth {
	out := make([]adapter.ComponentHealth, 0, len(r.endpoints))
	for m, endpointID := range r.endpoints {
		name := "llm_" + string(m)

		hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		url := fmt.Sprintf("%s/%s/health", r.base, endpointID)
		req, _ := http.NewRequestWithContext(hctx, http.MethodGet, url, nil)
		req.Header.Set("Authorization", "Bearer "+r.apiKey)

		resp, err := r.client.Do(req)
		cancel()
		if err != nil {
			out = append(out, adapter.ComponentHealth{Name: name, Status: "error", Detail: err.Error()})
			continue
		}
		resp.Body.Close()
		status := "healthy"
		if resp.StatusCode != http.StatusOK {
			status = "unhealthy"
		}
		out = append(out, adapter.ComponentHealth{Name: name, Status: status})
	}
	return out
}

// classifyTransport distinguishes deadline expiry from other network
// failures so the orchestrator can report a typed error.
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", provider, domain.ErrTimeout)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", provider, domain.ErrTimeout)
	}
	return fmt.Errorf("%s: %v: %w", provider, err, domain.ErrTransport)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
