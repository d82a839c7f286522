// File: internal/infra/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"iamoneai-gateway/internal/domain"
	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/adapter"
	"iamoneai-gateway/internal/infra/logging"
	"iamoneai-gateway/internal/usecase"
)

const probeTimeout = 10 * time.Second

type chatRequest struct {
	Message      string   `json:"message"`
	Model        string   `json:"model,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	UseHistory   *bool    `json:"use_history,omitempty"`
}

type completeRequest struct {
	Messages    []model.Message `json:"messages"`
	Model       string          `json:"model,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type chatResponse struct {
	Success        bool         `json:"success"`
	Response       string       `json:"response"`
	Model          string       `json:"model"`
	Provider       string       `json:"provider"`
	LatencyMs      int          `json:"latency_ms"`
	Usage          *model.Usage `json:"usage,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// History is opt-in: an omitted use_history means off.
	in := usecase.ChatInput{
		UserID:       r.Header.Get("X-User-ID"),
		Message:      req.Message,
		Model:        req.Model,
		MaxTokens:    s.defaults.MaxTokens,
		Temperature:  s.defaults.Temperature,
		SystemPrompt: req.SystemPrompt,
		UseHistory:   false,
	}
	if req.Model == "" {
		in.Model = s.defaults.Model
	}
	if req.MaxTokens != nil {
		in.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		in.Temperature = *req.Temperature
	}
	if req.UseHistory != nil {
		in.UseHistory = *req.UseHistory
	}

	reply, err := s.chat.Chat(r.Context(), in)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, replyToResponse(reply))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := usecase.CompleteInput{
		UserID:      r.Header.Get("X-User-ID"),
		Messages:    req.Messages,
		Model:       req.Model,
		MaxTokens:   s.defaults.MaxTokens,
		Temperature: s.defaults.Temperature,
	}
	if req.Model == "" {
		in.Model = s.defaults.Model
	}
	if req.MaxTokens != nil {
		in.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		in.Temperature = *req.Temperature
	}

	reply, err := s.chat.Complete(r.Context(), in)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, replyToResponse(reply))
}

func replyToResponse(reply *usecase.ChatReply) chatResponse {
	return chatResponse{
		Success:        true,
		Response:       reply.Text,
		Model:          string(reply.Model),
		Provider:       string(reply.Provider),
		LatencyMs:      reply.LatencyMs,
		Usage:          reply.Usage,
		ConversationID: reply.ConversationID,
	}
}

func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	l := logging.With(r.Context(), s.log)
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please wait before sending more messages.")
	case errors.As(err, &upstream), errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrTransport):
		// upstream details stay in the log, never in the response body
		l.Error().Err(err).Msg("upstream failure")
		writeError(w, http.StatusBadGateway, "upstream request failed")
	default:
		l.Error().Err(err).Msg("chat request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get("X-User-ID")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	exchanges, err := s.chat.History(r.Context(), owner, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if exchanges == nil {
		exchanges = []model.ChatExchange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user_id": owner,
		"count":   len(exchanges),
		"history": exchanges,
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get("X-User-ID")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}
	if err := s.chat.ClearHistory(r.Context(), owner); err != nil {
		writeError(w, http.StatusInternalServerError, "history clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Conversation history cleared",
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  s.chat.Models(),
		"default": s.defaults.Model,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "iamoneai-gateway",
		"status":  "running",
		"endpoints": []string{
			"POST /api/chat",
			"POST /api/chat/complete",
			"GET /api/chat/history",
			"DELETE /api/chat/history",
			"GET /api/models",
			"GET /health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "iamoneai-gateway",
	})
}

// handleHealthDetailed probes every component. Overall status degrades,
// never fails: a dead optional store must not take readiness down with it.
func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	components := s.router.HealthCheck(ctx)
	components = append(components, pingHealth(ctx, "redis", s.redis))
	components = append(components, pingHealth(ctx, "postgres", s.db))

	status := "healthy"
	for _, c := range components {
		if c.Status == "unhealthy" || c.Status == "error" {
			status = "degraded"
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"components": components,
	})
}

// handleReady reports 503 only for conditions the gateway cannot serve
// through: no providers, or a store that is configured yet unreachable.
// An unconfigured store does not block readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	notReady := func(reason string) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":  false,
			"reason": reason,
		})
	}
	if len(s.chat.Models()) == 0 {
		notReady("no providers configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()
	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			notReady("redis unreachable")
			return
		}
	}
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			notReady("postgres unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alive": true})
}

func pingHealth(ctx context.Context, name string, p Pinger) adapter.ComponentHealth {
	if p == nil {
		return adapter.ComponentHealth{Name: name, Status: "not_configured"}
	}
	if err := p.Ping(ctx); err != nil {
		return adapter.ComponentHealth{Name: name, Status: "unhealthy", Detail: err.Error()}
	}
	return adapter.ComponentHealth{Name: name, Status: "healthy"}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
