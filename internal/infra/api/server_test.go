// File: internal/infra/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"iamoneai-gateway/internal/config"
	"iamoneai-gateway/internal/domain"
	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/adapter"
	"iamoneai-gateway/internal/usecase"
)

type fakeChatUC struct {
	reply   *usecase.ChatReply
	err     error
	lastIn  usecase.ChatInput
	history []model.ChatExchange
	cleared []string
}

func (f *fakeChatUC) Chat(_ context.Context, in usecase.ChatInput) (*usecase.ChatReply, error) {
	f.lastIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeChatUC) Complete(_ context.Context, in usecase.CompleteInput) (*usecase.ChatReply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeChatUC) History(_ context.Context, owner string, limit int) ([]model.ChatExchange, error) {
	if len(f.history) > limit {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeChatUC) ClearHistory(_ context.Context, owner string) error {
	f.cleared = append(f.cleared, owner)
	return nil
}

func (f *fakeChatUC) Models() []string { return []string{"llama3", "groq"} }

type fakeModelRouter struct{ health []adapter.ComponentHealth }

func (f *fakeModelRouter) Resolve(string) (model.ModelID, adapter.LLMAdapter) {
	return model.ModelLlama3, nil
}
func (f *fakeModelRouter) Models() []string { return []string{"llama3"} }
func (f *fakeModelRouter) HealthCheck(context.Context) []adapter.ComponentHealth {
	return f.health
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func defaultsForTest() config.DefaultsConfig {
	return config.DefaultsConfig{Model: "llama3", MaxTokens: 1024, Temperature: 0.7}
}

func newTestServer(uc *fakeChatUC) *Server {
	logger := zerolog.Nop()
	return NewServer(uc, &fakeModelRouter{}, nil, nil, defaultsForTest(), &logger)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	uc := &fakeChatUC{reply: &usecase.ChatReply{
		Text: "hello world", Model: model.ModelLlama3, Provider: adapter.ProviderRunPod,
		LatencyMs: 42, Usage: &model.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		ConversationID: "u1",
	}}
	h := newTestServer(uc).Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message":"hi","use_history":true}`, map[string]string{"X-User-ID": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["success"] != true || got["response"] != "hello world" {
		t.Errorf("body = %v", got)
	}
	if got["model"] != "llama3" || got["provider"] != "runpod" {
		t.Errorf("provenance = %v/%v", got["model"], got["provider"])
	}
	if got["conversation_id"] != "u1" {
		t.Errorf("conversation_id = %v", got["conversation_id"])
	}
	usage, ok := got["usage"].(map[string]any)
	if !ok || usage["total_tokens"] != float64(5) {
		t.Errorf("usage = %v", got["usage"])
	}

	// defaults applied when the body omits tuning fields
	if uc.lastIn.Model != "llama3" || uc.lastIn.MaxTokens != 1024 || uc.lastIn.Temperature != 0.7 {
		t.Errorf("defaults not applied: %+v", uc.lastIn)
	}
}

func TestChatEndpointHistoryOptIn(t *testing.T) {
	uc := &fakeChatUC{reply: &usecase.ChatReply{Text: "ok", Model: model.ModelLlama3, Provider: adapter.ProviderRunPod}}
	h := newTestServer(uc).Routes()

	t.Run("omitted means off", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message":"hi"}`, map[string]string{"X-User-ID": "u1"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if uc.lastIn.UseHistory {
			t.Errorf("use_history omitted but history turned on")
		}
	})

	t.Run("explicit opt-in", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message":"hi","use_history":true}`, map[string]string{"X-User-ID": "u1"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !uc.lastIn.UseHistory {
			t.Errorf("use_history=true ignored")
		}
	})
}

func TestChatEndpointOverrides(t *testing.T) {
	uc := &fakeChatUC{reply: &usecase.ChatReply{Text: "ok", Model: model.ModelGroq, Provider: adapter.ProviderGroq}}
	h := newTestServer(uc).Routes()

	body := `{"message":"hi","model":"groq","max_tokens":64,"temperature":0.1,"use_history":false}`
	rec := doJSON(t, h, http.MethodPost, "/api/chat", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if uc.lastIn.Model != "groq" || uc.lastIn.MaxTokens != 64 || uc.lastIn.Temperature != 0.1 {
		t.Errorf("overrides lost: %+v", uc.lastIn)
	}
	if uc.lastIn.UseHistory {
		t.Errorf("use_history=false ignored")
	}
}

func TestChatEndpointErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid argument", domain.ErrInvalidArgument, http.StatusBadRequest},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"upstream", &domain.UpstreamError{Provider: "runpod", Status: 502, Body: "boom"}, http.StatusBadGateway},
		{"timeout", domain.ErrTimeout, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &fakeChatUC{err: tc.err}
			h := newTestServer(uc).Routes()
			rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			var got map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got["detail"] == "" {
				t.Errorf("missing detail in %s", rec.Body.String())
			}
			if tc.name == "upstream" && strings.Contains(got["detail"], "boom") {
				t.Errorf("upstream body leaked to caller: %q", got["detail"])
			}
		})
	}

	t.Run("rate limit message", func(t *testing.T) {
		uc := &fakeChatUC{err: domain.ErrRateLimited}
		h := newTestServer(uc).Routes()
		rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
		var got map[string]string
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if !strings.Contains(got["detail"], "Rate limit exceeded") {
			t.Errorf("detail = %q", got["detail"])
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		uc := &fakeChatUC{}
		h := newTestServer(uc).Routes()
		rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message":`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestCompleteEndpoint(t *testing.T) {
	uc := &fakeChatUC{reply: &usecase.ChatReply{Text: "classified", Model: model.ModelNemotron, Provider: adapter.ProviderRunPod}}
	h := newTestServer(uc).Routes()

	body := `{"messages":[{"role":"user","content":"route this"}],"model":"nemotron"}`
	rec := doJSON(t, h, http.MethodPost, "/api/chat/complete", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["response"] != "classified" {
		t.Errorf("body = %v", got)
	}
	if _, present := got["conversation_id"]; present {
		t.Errorf("complete should not return a conversation id")
	}
}

func TestHistoryEndpoints(t *testing.T) {
	uc := &fakeChatUC{history: []model.ChatExchange{
		{ID: "1", UserID: "u1", Message: "hi", Response: "hello", Model: "llama3"},
		{ID: "2", UserID: "u1", Message: "more", Response: "sure", Model: "llama3"},
	}}
	h := newTestServer(uc).Routes()

	t.Run("requires user header", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/chat/history", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("lists exchanges", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/chat/history", "", map[string]string{"X-User-ID": "u1"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got struct {
			Success bool                 `json:"success"`
			Count   int                  `json:"count"`
			History []model.ChatExchange `json:"history"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !got.Success || got.Count != 2 || len(got.History) != 2 {
			t.Errorf("body = %+v", got)
		}
	})

	t.Run("honors limit", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/chat/history?limit=1", "", map[string]string{"X-User-ID": "u1"})
		var got struct {
			Count int `json:"count"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if got.Count != 1 {
			t.Errorf("count = %d, want 1", got.Count)
		}
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/chat/history?limit=zero", "", map[string]string{"X-User-ID": "u1"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("clear", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodDelete, "/api/chat/history", "", map[string]string{"X-User-ID": "u1"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if len(uc.cleared) != 1 || uc.cleared[0] != "u1" {
			t.Errorf("cleared = %v", uc.cleared)
		}
		var got map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if got["message"] != "Conversation history cleared" {
			t.Errorf("message = %v", got["message"])
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	uc := &fakeChatUC{}
	logger := zerolog.Nop()

	t.Run("basic", func(t *testing.T) {
		h := newTestServer(uc).Routes()
		rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("detailed degrades on unhealthy store", func(t *testing.T) {
		router := &fakeModelRouter{health: []adapter.ComponentHealth{
			{Name: "runpod/llama3", Status: "healthy"},
		}}
		srv := NewServer(uc, router, &fakePinger{err: errors.New("down")}, nil, defaultsForTest(), &logger)
		rec := doJSON(t, srv.Routes(), http.MethodGet, "/health/detailed", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got struct {
			Status     string                    `json:"status"`
			Components []adapter.ComponentHealth `json:"components"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Status != "degraded" {
			t.Errorf("status = %q, want degraded", got.Status)
		}
		byName := map[string]string{}
		for _, c := range got.Components {
			byName[c.Name] = c.Status
		}
		if byName["redis"] != "unhealthy" || byName["postgres"] != "not_configured" {
			t.Errorf("components = %v", byName)
		}
	})

	t.Run("ready fails on configured store down", func(t *testing.T) {
		srv := NewServer(uc, &fakeModelRouter{}, &fakePinger{err: errors.New("down")}, nil, defaultsForTest(), &logger)
		rec := doJSON(t, srv.Routes(), http.MethodGet, "/health/ready", "", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("live and ready", func(t *testing.T) {
		h := newTestServer(uc).Routes()
		if rec := doJSON(t, h, http.MethodGet, "/health/live", "", nil); rec.Code != http.StatusOK {
			t.Errorf("live status = %d", rec.Code)
		}
		if rec := doJSON(t, h, http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusOK {
			t.Errorf("ready status = %d", rec.Code)
		}
	})
}

func TestModelsEndpoint(t *testing.T) {
	uc := &fakeChatUC{}
	h := newTestServer(uc).Routes()
	rec := doJSON(t, h, http.MethodGet, "/api/models", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Models) != 2 || got.Default != "llama3" {
		t.Errorf("body = %+v", got)
	}
}
