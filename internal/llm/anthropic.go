package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-20241022"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicClient is the Anthropic LLM client.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return string(ProviderAnthropic)
}

// Models returns available models.
func (c *AnthropicClient) Models() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-haiku-20240307",
	}
}

// Complete sends a completion request.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropicParams(req)
	params.Model = anthropic.F(model)
	params.MaxTokens = anthropic.F(int64(maxTokens))

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Content) == 0 {
		return nil, ErrEmptyResponse
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}

	return &CompletionResponse{
		Content:       content,
		Model:         resp.Model,
		TokensIn:      int(resp.Usage.InputTokens),
		TokensOut:     int(resp.Usage.OutputTokens),
		UsageReported: resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0,
		StopReason:    string(resp.StopReason),
		LatencyMs:     time.Since(start).Milliseconds(),
	}, nil
}

// anthropicParams maps req onto the Messages API, which takes system text
// separately and requires alternating turns that open with the user.
func anthropicParams(req *CompletionRequest) anthropic.MessageNewParams {
	system, turns := alternateTurns(req.System, req.Messages)

	messages := make([]anthropic.MessageParam, len(turns))
	for i, msg := range turns {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}

	params := anthropic.MessageNewParams{Messages: anthropic.F(messages)}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(system),
		}})
	}
	return params
}

// alternateTurns folds system messages into the system prompt, drops
// assistant turns before the first user turn and joins consecutive turns from
// the same role.
func alternateTurns(system string, msgs []ChatMessage) (string, []ChatMessage) {
	var out []ChatMessage
	for _, m := range msgs {
		switch {
		case m.Role == "system":
			system = joinText(system, m.Content)
		case len(out) == 0 && m.Role != "user":
			// skipped
		case len(out) > 0 && out[len(out)-1].Role == m.Role:
			out[len(out)-1].Content = joinText(out[len(out)-1].Content, m.Content)
		default:
			out = append(out, m)
		}
	}
	return system, out
}

func joinText(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n\n" + b
}
