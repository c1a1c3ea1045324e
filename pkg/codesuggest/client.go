// Package codesuggest calls an OpenAI-compatible completion API for code suggestions.
package codesuggest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"robo-chat-go/internal/config"
	"robo-chat-go/internal/model"
	"robo-chat-go/pkg/log"
)

// Client returns a single code suggestion for a prompt.
type Client interface {
	Suggest(ctx context.Context, prompt string) model.Outcome
}

type openAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewClient builds a suggestion client from config. The timeout covers the
// whole request including reading the body.
func NewClient(cfg config.CodeSuggestConfig) Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &openAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

func (c *openAIClient) Suggest(ctx context.Context, prompt string) model.Outcome {
	if strings.TrimSpace(prompt) == "" {
		return model.Fail(model.KindEmptyInput, "No prompt provided.", nil)
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Warnw("code suggestion request failed", "model", c.model, "error", err)
		return classify(err)
	}
	if len(resp.Choices) == 0 {
		return model.Fail(model.KindNoContent, "No choices returned from the code suggestion API.", nil)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return model.Fail(model.KindNoContent, "No suggestion returned.", nil)
	}
	return model.Succeed(content)
}

func classify(err error) model.Outcome {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return model.Fail(model.KindNetwork, fmt.Sprintf("HTTP error occurred: %d %s", apiErr.HTTPStatusCode, apiErr.Message), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return model.Fail(model.KindNetwork, fmt.Sprintf("HTTP error occurred: %d", reqErr.HTTPStatusCode), err)
	}
	return model.Fail(model.KindNetwork, fmt.Sprintf("Request failed: %v", err), err)
}
