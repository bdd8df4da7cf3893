// Package openai adapts the OpenAI Responses API to llm.Generator.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmerrors"
)

// Client calls Responses.New with the user prompt as plain input.
type Client struct {
	client    openai.Client
	model     string
	maxTokens int
}

// New returns a Client for model.
func New(apiKey, model string, maxTokens int, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		client:    openai.NewClient(opts...),
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

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(req.User)},
	}
	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}
	if req.WebSearch {
		params.Tools = []responses.ToolUnionParam{{
			OfWebSearchPreview: &responses.WebSearchToolParam{Type: responses.WebSearchToolTypeWebSearchPreview},
		}}
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.Response{}, classifyError(err)
	}
	if resp == nil {
		return llm.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI")
	}

	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return llm.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no text in OpenAI response")
	}

	return llm.Response{
		Text:         text,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		StopReason:   stopReason(resp),
		Model:        c.model,
	}, nil
}

func stopReason(resp *responses.Response) llm.StopReason {
	if resp.Status != responses.ResponseStatusIncomplete {
		return llm.StopEnd
	}
	if resp.IncompleteDetails.Reason == "max_output_tokens" {
		return llm.StopTruncated
	}
	return llm.StopOther
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if e, ok := llmerrors.FromStatus(apiErr.StatusCode, err); ok {
			return e
		}
	}
	return llmerrors.Classify(err)
}
