// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"iamoneai-gateway/internal/domain"
	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/adapter"
	"iamoneai-gateway/internal/domain/ports/repository"
	"iamoneai-gateway/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

const (
	endpointChat     = "/api/chat"
	endpointComplete = "/api/chat/complete"

	storeTimeout = 10 * time.Second
)

// ChatInput is one caller request before orchestration.
type ChatInput struct {
	UserID       string
	Message      string
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	UseHistory   bool
}

// CompleteInput carries a caller-supplied full transcript.
type CompleteInput struct {
	UserID      string
	Messages    []model.Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatReply is the canonical caller-facing outcome.
type ChatReply struct {
	Text           string
	Model          model.ModelID
	Provider       adapter.Provider
	LatencyMs      int
	Usage          *model.Usage
	ConversationID string
}

// Limits is the per-caller admission policy.
type Limits struct {
	PerWindow int
	Window    time.Duration
}

type ChatUseCase interface {
	Chat(ctx context.Context, in ChatInput) (*ChatReply, error)
	Complete(ctx context.Context, in CompleteInput) (*ChatReply, error)
	History(ctx context.Context, owner string, limit int) ([]model.ChatExchange, error)
	ClearHistory(ctx context.Context, owner string) error
	Models() []string
}

type chatUC struct {
	router  adapter.ModelRouter
	limiter repository.RateLimiter
	conv    repository.ConversationRepository
	audit   repository.AuditRepository
	est     adapter.TokenEstimator
	limits  Limits
	log     *zerolog.Logger
}

func NewChatUseCase(
	router adapter.ModelRouter,
	limiter repository.RateLimiter,
	conv repository.ConversationRepository,
	audit repository.AuditRepository,
	est adapter.TokenEstimator,
	limits Limits,
	logger *zerolog.Logger,
) *chatUC {
	return &chatUC{
		router:  router,
		limiter: limiter,
		conv:    conv,
		audit:   audit,
		est:     est,
		limits:  limits,
		log:     logger,
	}
}

func (c *chatUC) Chat(ctx context.Context, in ChatInput) (*ChatReply, error) {
	start := time.Now()
	owner := ownerOf(in.UserID)

	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, fmt.Errorf("empty message: %w", domain.ErrInvalidArgument)
	}

	if err := c.admit(ctx, owner); err != nil {
		return nil, err
	}

	// Assemble the upstream transcript: optional system prompt, then the
	// remembered tail, then the current message. The full stored history
	// is kept aside so the save below never truncates it.
	var msgs []model.Message
	if in.SystemPrompt != "" {
		msgs = append(msgs, model.Message{Role: "system", Content: in.SystemPrompt})
	}

	useHistory := in.UseHistory && owner != model.AnonymousUser
	var history []model.Message
	if useHistory {
		history, _ = c.conv.Load(ctx, owner)
		conv := model.Conversation{Messages: history}
		msgs = append(msgs, conv.Tail(model.HistoryWindow)...)
		c.log.Debug().Str("user_id", owner).Int("history", len(history)).Msg("loaded conversation history")
	}
	msgs = append(msgs, model.Message{Role: "user", Content: message})

	reply, err := c.dispatch(ctx, owner, endpointChat, msgs, in.Model, in.MaxTokens, in.Temperature, start)
	if err != nil {
		return nil, err
	}

	if useHistory {
		history = append(history,
			model.Message{Role: "user", Content: message},
			model.Message{Role: "assistant", Content: reply.Text},
		)
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		if err := c.conv.Save(sctx, owner, history); err != nil {
			c.log.Warn().Err(err).Str("user_id", owner).Msg("conversation save failed")
		}
		cancel()
		reply.ConversationID = owner
	}

	if owner != model.AnonymousUser {
		c.recordExchange(owner, message, reply)
	}
	c.recordOutcome(owner, endpointChat, string(reply.Model), reply.LatencyMs, true, "")
	return reply, nil
}

func (c *chatUC) Complete(ctx context.Context, in CompleteInput) (*ChatReply, error) {
	start := time.Now()
	owner := ownerOf(in.UserID)

	if len(in.Messages) == 0 {
		return nil, fmt.Errorf("empty messages: %w", domain.ErrInvalidArgument)
	}

	if err := c.admit(ctx, owner); err != nil {
		return nil, err
	}

	reply, err := c.dispatch(ctx, owner, endpointComplete, in.Messages, in.Model, in.MaxTokens, in.Temperature, start)
	if err != nil {
		return nil, err
	}
	c.recordOutcome(owner, endpointComplete, string(reply.Model), reply.LatencyMs, true, "")
	return reply, nil
}

func (c *chatUC) History(ctx context.Context, owner string, limit int) ([]model.ChatExchange, error) {
	return c.audit.RecentExchanges(ctx, owner, limit)
}

func (c *chatUC) ClearHistory(ctx context.Context, owner string) error {
	return c.conv.Clear(ctx, owner)
}

func (c *chatUC) Models() []string { return c.router.Models() }

// admit applies the fixed-window rate limit. Rejection short-circuits the
// whole pipeline: no upstream call, no history, no exchange record.
func (c *chatUC) admit(ctx context.Context, owner string) error {
	allowed, count, err := c.limiter.Check(ctx, rateKey(owner), c.limits.PerWindow, c.limits.Window)
	if err != nil {
		// limiter implementations fail open; an error here is unexpected
		c.log.Warn().Err(err).Str("user_id", owner).Msg("rate limit check errored, admitting")
		return nil
	}
	if !allowed {
		metrics.RateLimitRejected()
		c.log.Info().Str("user_id", owner).Int("count", count).Msg("rate limit exceeded")
		return domain.ErrRateLimited
	}
	return nil
}

// dispatch resolves the model, clamps bounds, calls the provider and
// post-processes the text. On failure exactly one outcome row records the
// error before it surfaces.
func (c *chatUC) dispatch(ctx context.Context, owner, endpoint string, msgs []model.Message, modelName string, maxTokens int, temperature float64, start time.Time) (*ChatReply, error) {
	resolved, a := c.router.Resolve(modelName)
	if a == nil {
		return nil, fmt.Errorf("no provider configured for %q: %w", modelName, domain.ErrTransport)
	}

	req := model.ChatRequest{
		Messages:    msgs,
		Model:       resolved,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	req.Clamp()

	c.log.Info().Str("user_id", owner).Str("model", string(resolved)).Int("messages", len(msgs)).Msg("dispatching chat")

	res, err := a.Chat(ctx, req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		c.log.Error().Err(err).Str("user_id", owner).Str("model", string(resolved)).Msg("upstream call failed")
		c.recordOutcome(owner, endpoint, string(resolved), latency, false, err.Error())
		metrics.ObserveChatUsage(string(a.Provider()), string(resolved), 0, 0, 0, latency, false)
		return nil, err
	}

	text := StripReasoning(res.Text)

	usage := res.Usage
	observed := usage
	if observed == nil && c.est != nil {
		observed = c.est.Estimate(req.Messages, text)
	}
	if observed != nil {
		metrics.ObserveChatUsage(string(a.Provider()), string(resolved),
			observed.PromptTokens, observed.CompletionTokens, observed.TotalTokens, latency, true)
	}

	return &ChatReply{
		Text:      text,
		Model:     resolved,
		Provider:  a.Provider(),
		LatencyMs: latency,
		Usage:     usage,
	}, nil
}

func (c *chatUC) recordExchange(owner, message string, reply *ChatReply) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := c.audit.RecordExchange(ctx, owner, message, reply.Text, string(reply.Model), map[string]any{
		"latency_ms": reply.LatencyMs,
		"provider":   string(reply.Provider),
	})
	if err != nil {
		c.log.Debug().Err(err).Str("user_id", owner).Msg("exchange record skipped")
	}
}

// recordOutcome runs on a detached context: an upstream timeout kills the
// request context but the failed outcome must still be written.
func (c *chatUC) recordOutcome(owner, endpoint, modelName string, latencyMs int, success bool, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.audit.RecordOutcome(ctx, owner, endpoint, modelName, latencyMs, success, errMsg); err != nil {
		c.log.Debug().Err(err).Str("user_id", owner).Msg("outcome record skipped")
	}
}

func ownerOf(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return model.AnonymousUser
	}
	return userID
}

func rateKey(owner string) string { return "rate:" + owner }

// Models may leak internal deliberation wrapped in <think> tags; those
// spans never reach the caller.
var thinkRE = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes paired <think>...</think> spans and trims the
// result. Unterminated tags are left structurally intact rather than
// guessing where the span was meant to end.
func StripReasoning(s string) string {
	if s == "" {
		return s
	}
	return strings.TrimSpace(thinkRE.ReplaceAllString(s, ""))
}
