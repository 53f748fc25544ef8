package agent

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const maxTokens = 4096

// SDKClient backs AIClient with the go-openai SDK. It is an alternative to
// the hand-rolled Client for deployments that prefer the official wire
// types (and works with any OpenAI-compatible endpoint).
type SDKClient struct {
	client *openai.Client
	model  string
}

func NewSDKClient(apiKey, baseURL, model string) *SDKClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &SDKClient{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *SDKClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *SDKClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	completion, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return completion.Choices[0].Message.Content, nil
}
