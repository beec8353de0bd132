package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/strategy"
	"github.com/sells-group/verify-cli/pkg/anthropic"
)

const researchSystem = `You are a research assistant re-extracting specific profile fields that failed verification. Use only the provided material; never invent values. For every field you fill, include a short verbatim quote from the material as evidence. Omit fields the material does not support.`

const researchPrompt = `Profile: %s

Known fields:
%s

Source material:
%s

Re-extract ONLY these fields: %s

Return a valid JSON object:
{"fields": {"<field>": "<value>"}, "evidence": {"<field>": "<verbatim quote>"}}`

// Researcher is the universal fallback method: a multi-query model pass
// over everything known about the profile.
type Researcher struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewResearcher creates the deep_research method.
func NewResearcher(client anthropic.Client, modelName string, timeout time.Duration) *Researcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Researcher{
		client:    client,
		model:     modelName,
		maxTokens: 1024,
		timeout:   timeout,
	}
}

func (r *Researcher) Name() string { return strategy.MethodDeepResearch }

func (r *Researcher) Extract(ctx context.Context, rec *model.CandidateRecord, fields []string) (*Result, error) {
	if r.client == nil {
		return nil, eris.New("extractor: research client not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	source := rec.RawSourceContent
	if len(source) > 12000 {
		source = source[:12000]
	}
	if strings.TrimSpace(source) == "" {
		source = "(none)"
	}

	resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		System:    researchSystem,
		Messages: []anthropic.Message{{
			Role: "user",
			Content: fmt.Sprintf(researchPrompt,
				rec.ProfileName, formatFields(rec.Fields), source, strings.Join(fields, ", ")),
		}},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extractor: research %s", rec.ProfileID)
	}

	parsed, err := parseResearchJSON(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "extractor: unparsable research output for %s", rec.ProfileID)
	}

	// Keep only the fields that were asked for; a model that volunteers
	// extras must not overwrite fields that already verified.
	requested := make(map[string]bool, len(fields))
	for _, f := range fields {
		requested[f] = true
	}
	result := &Result{
		Fields:   make(map[string]string),
		Evidence: make(map[string]string),
	}
	for k, v := range parsed.Fields {
		if requested[k] && strings.TrimSpace(v) != "" {
			result.Fields[k] = v
			result.Evidence[k] = parsed.Evidence[k]
		}
	}
	return result, nil
}

type researchOutput struct {
	Fields   map[string]string `json:"fields"`
	Evidence map[string]string `json:"evidence"`
}

// parseResearchJSON extracts the output JSON, tolerating code fences and
// surrounding prose.
func parseResearchJSON(text string) (researchOutput, error) {
	var out researchOutput

	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return out, eris.New("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &out); err != nil {
		return out, eris.Wrap(err, "unmarshal research output")
	}
	return out, nil
}

func formatFields(fields map[string]string) string {
	var b strings.Builder
	for k, v := range fields {
		if strings.TrimSpace(v) == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", k, v)
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return b.String()
}

var (
	_ Method = (*EmailVerifier)(nil)
	_ Method = (*SiteCrawler)(nil)
	_ Method = (*Researcher)(nil)
)
