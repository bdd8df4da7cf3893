// Package anthropic adapts the Anthropic Messages API to llm.Generator.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmerrors"
)

// WebSearchMaxUses bounds hosted search calls per request.
const WebSearchMaxUses = 5

// Client calls Messages.New with a single user turn.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// New returns a Client for model; maxTokens is used when a request sets none.
func New(apiKey, model string, maxTokens int, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if strings.TrimSpace(req.User) == "" {
		return llm.Response{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "empty prompt")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.User))},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.WebSearch {
		params.Tools = []anthropic.ToolUnionParam{{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{MaxUses: anthropic.Int(WebSearchMaxUses)},
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Anthropic")
	}

	// With web search the reply interleaves tool blocks; only text blocks count.
	var parts []string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}

	return llm.Response{
		Text:         strings.TrimSpace(strings.Join(parts, "\n")),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		StopReason:   stopReason(resp.StopReason),
		Model:        c.model,
	}, nil
}

func stopReason(r anthropic.StopReason) llm.StopReason {
	switch r {
	case anthropic.StopReasonMaxTokens:
		return llm.StopTruncated
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return llm.StopEnd
	default:
		return llm.StopOther
	}
}

func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if e, ok := llmerrors.FromStatus(apiErr.StatusCode, err); ok {
			return e
		}
	}
	return llmerrors.Classify(err)
}
