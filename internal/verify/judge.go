package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/resilience"
	"github.com/sells-group/verify-cli/pkg/anthropic"
)

// JudgeResult is the external judgment service's verdict for one field.
type JudgeResult struct {
	Passed    bool   `json:"passed"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// Judge is Layer 3: a final judgment call delegated to an external service.
// It only runs on fields that already passed Layers 1 and 2.
type Judge interface {
	// Available reports whether the service is worth calling at all.
	Available() bool
	// Verify judges one field value. Any error (timeout, unreachable
	// service, unparsable output) must be treated by the caller as
	// not-passed, never as an optimistic pass.
	Verify(ctx context.Context, field, value, contextText string) (JudgeResult, error)
}

const judgePrompt = `You are a data quality reviewer for enriched outreach profiles.

Field: %s
Value: %s

Available context:
%s

Judge whether the value is plausible for this field, internally consistent, and supported by the context. Return a valid JSON object:
{"passed": <true|false>, "score": <0-100>, "reasoning": "<brief explanation>"}`

// ModelJudge implements Judge on the Anthropic Messages API, guarded by a
// bounded timeout, call-level retry, and a circuit breaker.
type ModelJudge struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	breaker   *resilience.CircuitBreaker
	retryCfg  resilience.RetryConfig
}

// NewModelJudge creates a model-backed judge. A nil client produces a judge
// that reports itself unavailable.
func NewModelJudge(client anthropic.Client, model string, timeout time.Duration) *ModelJudge {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("judge", "verify")
	return &ModelJudge{
		client:    client,
		model:     model,
		maxTokens: 512,
		timeout:   timeout,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("judge circuit state change",
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
		retryCfg: retryCfg,
	}
}

// Available reports whether the judge is configured and its circuit closed.
func (j *ModelJudge) Available() bool {
	return j.client != nil && j.breaker.State() != resilience.CircuitOpen
}

// Verify asks the judgment service about one field value.
func (j *ModelJudge) Verify(ctx context.Context, field, value, contextText string) (JudgeResult, error) {
	if j.client == nil {
		return JudgeResult{}, eris.New("judge: no client configured")
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	cfg := j.retryCfg
	cfg.ShouldRetry = func(err error) bool {
		return resilience.IsTransient(err) && !errors.Is(err, resilience.ErrCircuitOpen)
	}

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return j.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     j.model,
				MaxTokens: j.maxTokens,
				Messages: []anthropic.Message{{
					Role:    "user",
					Content: fmt.Sprintf(judgePrompt, field, value, contextText),
				}},
			})
		})
	})
	if err != nil {
		return JudgeResult{}, eris.Wrap(err, "judge: verify call")
	}

	result, err := parseJudgeJSON(resp.Text())
	if err != nil {
		return JudgeResult{}, eris.Wrapf(err, "judge: unparsable verdict for field %s", field)
	}
	return result, nil
}

// parseJudgeJSON extracts the verdict JSON, tolerating markdown code fences
// and surrounding prose.
func parseJudgeJSON(text string) (JudgeResult, error) {
	var result JudgeResult

	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return result, eris.New("no JSON object in response")
	}

	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &result); err != nil {
		return result, eris.Wrap(err, "unmarshal verdict")
	}
	if result.Score < 0 || result.Score > 100 {
		return result, eris.Errorf("score %d out of range", result.Score)
	}
	return result, nil
}
