// Package ollama adapts a local Ollama server to llm.Generator.
// Ollama has no hosted search, so Request.WebSearch is ignored.
package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/llmerrors"
)

// DefaultHost is used when the configured host does not parse.
const DefaultHost = "http://localhost:11434"

type Client struct {
	client    *api.Client
	model     string
	maxTokens int
}

// New returns a Client talking to hostURL, e.g. "http://localhost:11434".
func New(hostURL, model string, maxTokens int) *Client {
	parsed, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsed, _ = url.Parse(DefaultHost)
	}
	return &Client{
		client:    api.NewClient(parsed, http.DefaultClient),
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

	var messages []api.Message
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.User})

	stream := false
	chat := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]any{"num_predict": maxTokens},
	}

	var final api.ChatResponse
	err := c.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		final = resp
		return nil
	})
	if err != nil {
		return llm.Response{}, classifyError(err)
	}

	text := strings.TrimSpace(final.Message.Content)
	if text == "" {
		return llm.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Ollama")
	}
	return llm.Response{
		Text:         text,
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		StopReason:   stopReason(&final),
		Model:        c.model,
	}, nil
}

func stopReason(resp *api.ChatResponse) llm.StopReason {
	switch resp.DoneReason {
	case "length":
		return llm.StopTruncated
	case "stop", "":
		return llm.StopEnd
	default:
		return llm.StopOther
	}
}

func classifyError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if e, ok := llmerrors.FromStatus(statusErr.StatusCode, err); ok {
			return e
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Ollama server not reachable")
	case strings.Contains(msg, "model") && strings.Contains(msg, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
	}
	return llmerrors.Classify(err)
}
