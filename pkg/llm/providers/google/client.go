// Package google adapts Gemini (google.golang.org/genai) to llm.Generator.
package google

import (
	"context"
	"errors"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmerrors"
)

// Client lazily creates the genai client on first use.
type Client struct {
	mu        sync.Mutex
	client    *genai.Client
	apiKey    string
	model     string
	maxTokens int
}

func New(apiKey, model string, maxTokens int) *Client {
	return &Client{apiKey: apiKey, model: model, maxTokens: maxTokens}
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) ensure(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	c.client = client
	return client, nil
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if strings.TrimSpace(req.User) == "" {
		return llm.Response{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "empty prompt")
	}
	client, err := c.ensure(ctx)
	if err != nil {
		return llm.Response{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	config := &genai.GenerateContentConfig{
		//nolint:gosec // bounded by configuration
		MaxOutputTokens: int32(maxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.WebSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.User}}}}

	result, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return llm.Response{}, classifyError(err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return llm.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini")
	}

	out := llm.Response{
		Text:       strings.TrimSpace(result.Text()),
		StopReason: stopReason(result.Candidates[0].FinishReason),
		Model:      c.model,
	}
	if u := result.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
	}
	return out, nil
}

func stopReason(r genai.FinishReason) llm.StopReason {
	switch r {
	case genai.FinishReasonMaxTokens:
		return llm.StopTruncated
	case genai.FinishReasonStop, "":
		return llm.StopEnd
	default:
		return llm.StopOther
	}
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if e, ok := llmerrors.FromStatus(apiErr.Code, err); ok {
			return e
		}
	}
	return llmerrors.Classify(err)
}
