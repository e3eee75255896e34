// Package openai provides a thin wrapper around the official OpenAI Go SDK
// for chat-completion based query classification.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"

	"github.com/testvault/portal/internal/models"
)

var (
	// ErrEmptyPrompt is returned when Complete is called with an empty user prompt.
	ErrEmptyPrompt = errors.New("openai: user prompt is empty")
	// ErrEmptyCompletion is returned when the API response contains no usable
	// completion (no choices, or blocked/empty content).
	ErrEmptyCompletion = errors.New("openai: empty completion in response")
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 512
	defaultTemperature = 0.1
)

// Client calls the OpenAI chat completions API via the official SDK.
type Client struct {
	sdk         openaisdk.Client
	model       string
	maxTokens   int
	temperature float64
	baseURL     string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel sets the chat model name. Empty keeps the default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxTokens bounds the completion length.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature. Classification wants a low
// value so repeated queries parse to the same structure.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithBaseURL points the client at an alternate endpoint, for tests and
// OpenAI-compatible gateways. Empty keeps the default API host.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// NewClient creates an OpenAI chat client using the official SDK.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		model:       defaultModel,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}

	for _, opt := range opts {
		opt(client)
	}

	sdkOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if client.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(client.baseURL))
	}

	client.sdk = openaisdk.NewClient(sdkOpts...)

	return client
}

// Complete sends a system+user prompt pair and returns the completion text
// and token usage. The context deadline bounds the call; callers set one so a
// slow model cannot starve the request path.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, models.TokenUsage, error) {
	usage := models.TokenUsage{}

	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", usage, ErrEmptyPrompt
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(userPrompt),
		},
		MaxTokens:   param.NewOpt(int64(c.maxTokens)),
		Temperature: param.NewOpt(c.temperature),
		// JSON mode keeps the completion parseable without fence stripping.
		ResponseFormat: openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", usage, fmt.Errorf("openai chat completion: %w", err)
	}

	usage.PromptTokens = int(resp.Usage.PromptTokens)
	usage.CompletionTokens = int(resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", usage, ErrEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", usage, ErrEmptyCompletion
	}

	return content, usage, nil
}
