package llm

import (
	"sync"

	"iamoneai-gateway/internal/domain/model"
	"iamoneai-gateway/internal/domain/ports/adapter"

	"github.com/pkoukk/tiktoken-go"
)

var _ adapter.TokenEstimator = (*Estimator)(nil)

// Estimator approximates token usage for providers that report none.
// Counts use the cl100k_base encoding; when the encoding cannot be loaded
// a bytes/4 heuristic keeps the numbers plausible rather than zero.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewEstimator() *Estimator { return &Estimator{} }

func (e *Estimator) Estimate(messages []model.Message, reply string) *model.Usage {
	prompt := 0
	for _, m := range messages {
		prompt += e.count(m.Content) + 4 // rough per-message wrapping overhead
	}
	completion := e.count(reply)
	return &model.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

func (e *Estimator) count(text string) int {
	e.once.Do(func() {
		e.enc, _ = tiktoken.GetEncoding("cl100k_base")
	})
	if e.enc == nil {
		return len(text) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}
