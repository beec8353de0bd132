package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/pkg/anthropic"
)

type fakeAnthropicClient struct {
	text  string
	err   error
	calls int
}

func (f *fakeAnthropicClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.text}},
	}, nil
}

func TestParseJudgeJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    JudgeResult
		wantErr bool
	}{
		{
			name: "plain json",
			text: `{"passed": true, "score": 92, "reasoning": "consistent"}`,
			want: JudgeResult{Passed: true, Score: 92, Reasoning: "consistent"},
		},
		{
			name: "fenced json",
			text: "```json\n{\"passed\": false, \"score\": 20, \"reasoning\": \"implausible\"}\n```",
			want: JudgeResult{Passed: false, Score: 20, Reasoning: "implausible"},
		},
		{
			name: "surrounding prose",
			text: `Here is my verdict: {"passed": true, "score": 80, "reasoning": "ok"} as requested.`,
			want: JudgeResult{Passed: true, Score: 80, Reasoning: "ok"},
		},
		{name: "no json", text: "I cannot judge this.", wantErr: true},
		{name: "score out of range", text: `{"passed": true, "score": 150, "reasoning": "x"}`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseJudgeJSON(tc.text)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestModelJudgeNilClient(t *testing.T) {
	j := NewModelJudge(nil, "claude-sonnet-4-5", time.Second)
	assert.False(t, j.Available())

	_, err := j.Verify(context.Background(), "email", "jane@acme.io", "")
	assert.Error(t, err)
}

func TestModelJudgeVerify(t *testing.T) {
	client := &fakeAnthropicClient{text: `{"passed": true, "score": 88, "reasoning": "plausible"}`}
	j := NewModelJudge(client, "claude-sonnet-4-5", time.Second)
	require.True(t, j.Available())

	result, err := j.Verify(context.Background(), "seeking", "Looking to meet founders", "bio: ...")
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, 88, result.Score)
	assert.Equal(t, 1, client.calls)
}

func TestModelJudgeVerifyNonTransientError(t *testing.T) {
	client := &fakeAnthropicClient{err: errors.New("invalid api key")}
	j := NewModelJudge(client, "claude-sonnet-4-5", time.Second)

	_, err := j.Verify(context.Background(), "email", "jane@acme.io", "")
	require.Error(t, err)
	assert.Equal(t, 1, client.calls, "non-transient errors must not be retried")
}

func TestModelJudgeCircuitOpensAfterFailures(t *testing.T) {
	client := &fakeAnthropicClient{err: errors.New("boom")}
	j := NewModelJudge(client, "claude-sonnet-4-5", time.Second)

	for i := 0; i < 5; i++ {
		_, err := j.Verify(context.Background(), "email", "jane@acme.io", "")
		require.Error(t, err)
	}
	assert.False(t, j.Available())

	calls := client.calls
	_, err := j.Verify(context.Background(), "email", "jane@acme.io", "")
	require.Error(t, err)
	assert.Equal(t, calls, client.calls, "open circuit must short-circuit the call")
}
