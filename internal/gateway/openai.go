// Package gateway wraps the external text-generation API behind the two
// narrow operations the conversation engine needs: free-text completion and
// structured (JSON object) completion.
package gateway

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Message is one prompt turn sent to the text-generation API.
type Message struct {
	Role    string
	Content string
}

// Client calls the OpenAI chat completions API.
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewClient creates a gateway client. If model is empty it defaults to
// "gpt-4o-mini".
func NewClient(apiKey, model string, maxTokens int, logger *zap.Logger) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		client:    openai.NewClient(apiKey),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// CompleteText sends a system prompt plus conversation turns and returns the
// model's free-form reply.
func (c *Client) CompleteText(ctx context.Context, system string, msgs []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.buildMessages(system, msgs),
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}
	return c.complete(ctx, req)
}

// CompleteJSON sends a system prompt plus a single user message and returns
// the raw bytes of a JSON-object response. The caller owns interpretation;
// malformed output is the caller's recoverable condition, not this layer's.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) ([]byte, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: c.buildMessages(system, []Message{
			{Role: openai.ChatMessageRoleUser, Content: user},
		}),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	out, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	c.logger.Debug("calling text-generation API",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
	)

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("text-generation API call failed", zap.Error(err))
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}

	c.logger.Debug("text-generation API call completed",
		zap.Int("tokensIn", resp.Usage.PromptTokens),
		zap.Int("tokensOut", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// buildMessages prepends the system prompt and converts turns into the API
// message format.
func (c *Client) buildMessages(system string, msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}
