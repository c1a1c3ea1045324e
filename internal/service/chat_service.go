// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"robo-chat-go/internal/model"
	"robo-chat-go/internal/router"
	"robo-chat-go/pkg/log"
)

// researchPrefix 开头的输入走深度研究流程
const researchPrefix = "research:"

// 回复事件类型
const (
	EventResearch   = "research"
	EventSuggestion = "suggestion"
	EventExecution  = "execution"
	EventError      = "error"
	EventCompletion = "completion"
	EventStop       = "stop"
)

// Event 是一次回复中除流式分块以外的通知。
type Event struct {
	Type      string            `json:"type"`
	Status    string            `json:"status,omitempty"`
	Content   string            `json:"content,omitempty"`
	Kind      model.FailureKind `json:"kind,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Date      string            `json:"date"`
}

// NewEvent 创建带时间戳的事件。
func NewEvent(eventType string) Event {
	now := time.Now()
	return Event{
		Type:      eventType,
		Timestamp: now.UnixMilli(),
		Date:      now.Format("2006-01-02T15:04:05"),
	}
}

// outcomeEvent 把后端结果包装为事件，失败时附带类别。
func outcomeEvent(eventType string, out model.Outcome) Event {
	ev := NewEvent(eventType)
	ev.Content = out.Display()
	if out.Err != nil {
		ev.Status = "failed"
		ev.Kind = out.Err.Kind
	} else {
		ev.Status = "ok"
	}
	return ev
}

// CompletionEvent 表示本次回复结束。
func CompletionEvent() Event {
	ev := NewEvent(EventCompletion)
	ev.Status = "finished"
	ev.Message = "响应已完成"
	return ev
}

// ResponseWriter 接收一次回复的输出，websocket 与 HTTP 各有实现。
type ResponseWriter interface {
	WriteChunk(text string) error
	WriteEvent(event Event) error
}

// Session 是聊天流程需要的会话能力。
type Session interface {
	router.Conversation
	AddToMemory(entry string)
}

// AgentRouter 分发单次 agent 请求。
type AgentRouter interface {
	Route(ctx context.Context, conv router.Conversation, agent router.Agent, prompt string) router.Reply
}

// ChatOptions 控制聊天流程的附加步骤。
type ChatOptions struct {
	SuggestCode        bool
	ExecuteSuggestions bool
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	// Respond 记录用户输入到聊天记忆，然后生成回复。
	Respond(ctx context.Context, sess Session, prompt string, w ResponseWriter) error
	// Answer 生成回复但不写入聊天记忆，用于上传文件等非用户直接输入的内容。
	Answer(ctx context.Context, sess Session, prompt string, w ResponseWriter) error
}

type chatService struct {
	router AgentRouter
	opts   ChatOptions
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(r AgentRouter, opts ChatOptions) ChatService {
	return &chatService{router: r, opts: opts}
}

// ResearchQuery 判断输入是否为 "research:" 前缀（忽略大小写），并返回去掉前缀后的查询。
func ResearchQuery(prompt string) (string, bool) {
	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) < len(researchPrefix) || !strings.EqualFold(trimmed[:len(researchPrefix)], researchPrefix) {
		return "", false
	}
	return strings.TrimSpace(trimmed[len(researchPrefix):]), true
}

func (s *chatService) Respond(ctx context.Context, sess Session, prompt string, w ResponseWriter) error {
	if strings.TrimSpace(prompt) != "" {
		sess.AddToMemory(prompt)
	}
	return s.Answer(ctx, sess, prompt, w)
}

func (s *chatService) Answer(ctx context.Context, sess Session, prompt string, w ResponseWriter) error {
	if strings.TrimSpace(prompt) == "" {
		empty := model.Fail(model.KindEmptyInput, "Please enter a message.", nil)
		if err := w.WriteEvent(outcomeEvent(EventError, empty)); err != nil {
			return err
		}
		return w.WriteEvent(CompletionEvent())
	}

	if query, ok := ResearchQuery(prompt); ok {
		if err := s.research(ctx, sess, prompt, query, w); err != nil {
			return err
		}
		return w.WriteEvent(CompletionEvent())
	}

	reply := s.router.Route(ctx, sess, router.AgentChat, prompt)
	if err := forward(reply, w); err != nil {
		return err
	}
	// 用户中途停止时不再继续后续步骤
	if ctx.Err() != nil {
		return nil
	}

	if s.opts.SuggestCode {
		if err := s.suggest(ctx, sess, prompt, w); err != nil {
			return err
		}
	}
	return w.WriteEvent(CompletionEvent())
}

func (s *chatService) research(ctx context.Context, sess Session, prompt, query string, w ResponseWriter) error {
	reply := s.router.Route(ctx, sess, router.AgentDeepResearch, query)
	out := reply.Collect()

	sess.AddToHistory(model.RoleUser, prompt)
	if out.OK() {
		sess.AddToHistory(model.RoleAssistant, out.Text)
	} else {
		log.Warnw("deep research failed", "query", query, "kind", string(out.Err.Kind), "error", out.Err)
	}
	return w.WriteEvent(outcomeEvent(EventResearch, out))
}

// suggest 生成代码建议，并按配置执行建议的代码。执行器会拒绝失败文本。
func (s *chatService) suggest(ctx context.Context, sess Session, prompt string, w ResponseWriter) error {
	suggestion := s.router.Route(ctx, sess, router.AgentCodeSuggest, prompt).Collect()
	if err := w.WriteEvent(outcomeEvent(EventSuggestion, suggestion)); err != nil {
		return err
	}
	if !s.opts.ExecuteSuggestions {
		return nil
	}
	execution := s.router.Route(ctx, sess, router.AgentCodeExec, suggestion.Display()).Collect()
	return w.WriteEvent(outcomeEvent(EventExecution, execution))
}

// forward 按顺序转发分块；失败分块转为 error 事件。写入失败时关闭上游流。
func forward(reply router.Reply, w ResponseWriter) error {
	if !reply.IsStream() {
		if reply.Outcome.OK() {
			return w.WriteChunk(reply.Outcome.Text)
		}
		return w.WriteEvent(outcomeEvent(EventError, reply.Outcome))
	}

	stream := reply.Stream
	defer stream.Close()
	for c := range stream.C {
		if c.Err != nil {
			if err := w.WriteEvent(outcomeEvent(EventError, model.Outcome{Err: c.Err})); err != nil {
				return err
			}
			continue
		}
		if err := w.WriteChunk(c.Text); err != nil {
			return fmt.Errorf("failed to write chunk: %w", err)
		}
	}
	return nil
}

// CollectingWriter 把一次回复收集到内存，供 HTTP 接口一次性返回。
type CollectingWriter struct {
	Text   strings.Builder
	Events []Event
}

func (c *CollectingWriter) WriteChunk(text string) error {
	c.Text.WriteString(text)
	return nil
}

func (c *CollectingWriter) WriteEvent(event Event) error {
	c.Events = append(c.Events, event)
	return nil
}
