package model

import (
	"encoding/json"
	"time"
)

// AnonymousUser is the sentinel identity assigned to callers that supply no
// X-User-ID header. Anonymous callers never read or write history.
const AnonymousUser = "anonymous"

// ModelID selects one of the configured upstream models.
type ModelID string

const (
	ModelLlama3   ModelID = "llama3"   // RunPod, chat responses
	ModelNemotron ModelID = "nemotron" // RunPod, classification/routing
	ModelGroq     ModelID = "groq"     // OpenAI-compatible low-latency
)

// ParseModel maps a caller-supplied name onto a known model. Unknown names
// report ok=false; the caller decides the fallback (and logs it).
func ParseModel(name string) (ModelID, bool) {
	switch ModelID(name) {
	case ModelLlama3, ModelNemotron, ModelGroq:
		return ModelID(name), true
	}
	return "", false
}

// Message represents one chat message.
type Message struct {
	Role    string `json:"role"` // "user" | "assistant" | "system"
	Content string `json:"content"`
}

// Request bounds. Out-of-range values are clamped, not rejected.
const (
	MinMaxTokens   = 1
	MaxMaxTokens   = 4096
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// ChatRequest is the canonical, provider-independent form of a chat call.
type ChatRequest struct {
	Messages    []Message
	Model       ModelID
	MaxTokens   int
	Temperature float64
}

// Clamp forces MaxTokens and Temperature into their declared ranges.
// Always applied before dispatch.
func (r *ChatRequest) Clamp() {
	if r.MaxTokens < MinMaxTokens {
		r.MaxTokens = MinMaxTokens
	}
	if r.MaxTokens > MaxMaxTokens {
		r.MaxTokens = MaxMaxTokens
	}
	if r.Temperature < MinTemperature {
		r.Temperature = MinTemperature
	}
	if r.Temperature > MaxTemperature {
		r.Temperature = MaxTemperature
	}
}

// Usage is token accounting for a single chat call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is the canonical outcome of an upstream call. Text is the
// empty string (never absent) when no content-bearing field was found.
// Raw keeps the upstream payload for diagnostics.
type ChatResult struct {
	Text  string
	Usage *Usage
	Raw   json.RawMessage
}

// Conversation is the cached transcript for one owner. Only the most
// recent messages are forwarded upstream; the stored transcript itself is
// bounded by TTL, not by length.
type Conversation struct {
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryWindow is the number of trailing messages (10 exchanges) that a
// new upstream call may carry.
const HistoryWindow = 20

// Tail returns the most recent n messages of the transcript.
func (c *Conversation) Tail(n int) []Message {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// ChatExchange is one durably logged request/response pair.
type ChatExchange struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Message   string         `json:"message"`
	Response  string         `json:"response"`
	Model     string         `json:"model"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
