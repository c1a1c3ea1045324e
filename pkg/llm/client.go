// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"robo-chat-go/internal/config"
	"robo-chat-go/internal/model"
)

// Client defines the interface for a streaming chat LLM client.
type Client interface {
	// StreamChatMessages 以 role-based 消息与可选生成参数调用聊天接口，返回可取消的分块流。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) *Stream
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a chat client for an OpenAI-compatible streaming endpoint.
// The configured timeout bounds the wait for response headers only, so long
// replies are not cut off mid-stream.
func NewClient(cfg config.LLMConfig) Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessagesFromHistory converts stored turns into request messages.
func MessagesFromHistory(turns []model.ConversationTurn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

func (c *openAICompatibleClient) buildRequest(messages []Message, gen *GenerationParams) chatRequest {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   true,
	}
	// 传参优先，否则从全局配置注入（若非零值）
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
		return reqBody
	}
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		reqBody.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		reqBody.MaxTokens = &m
	}
	return reqBody
}

func (c *openAICompatibleClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) *Stream {
	reqBody := c.buildRequest(messages, gen)
	return NewStream(ctx, func(ctx context.Context, emit Emit) {
		if f := c.stream(ctx, reqBody, emit); f != nil {
			emit(Chunk{Err: f})
		}
	})
}

func (c *openAICompatibleClient) stream(ctx context.Context, reqBody chatRequest, emit Emit) *model.Failure {
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return &model.Failure{Kind: model.KindParse, Message: "failed to marshal chat request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return &model.Failure{Kind: model.KindNetwork, Message: fmt.Sprintf("Request failed: %v", err), Cause: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &model.Failure{Kind: model.KindNetwork, Message: fmt.Sprintf("Request failed: %v", err), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &model.Failure{
			Kind:    model.KindNetwork,
			Message: fmt.Sprintf("HTTP error occurred: %s, body: %s", resp.Status, strings.TrimSpace(string(bodyBytes))),
		}
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			done, ok := c.handleLine(line, emit)
			if !ok || done {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return &model.Failure{Kind: model.KindNetwork, Message: fmt.Sprintf("Stream interrupted: %v", err), Cause: err}
		}
	}
}

// handleLine parses one SSE line. done reports the [DONE] terminator; ok is
// false once the consumer has gone away.
func (c *openAICompatibleClient) handleLine(line string, emit Emit) (done bool, ok bool) {
	if !strings.HasPrefix(line, "data:") {
		return false, true
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" {
		return false, true
	}
	if data == "[DONE]" {
		return true, true
	}

	var chunk chatResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// 跳过格式错误的分块
		return false, true
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return false, true
	}
	return false, emit(Chunk{Text: chunk.Choices[0].Delta.Content})
}
