// Package router 把逻辑 agent 名称分发到对应的后端。
package router

import (
	"context"
	"strings"

	"robo-chat-go/internal/model"
	"robo-chat-go/pkg/llm"
	"robo-chat-go/pkg/log"
	"robo-chat-go/pkg/metrics"
)

// Agent 是逻辑 agent 标识。
type Agent string

const (
	AgentChat         Agent = "chat"
	AgentCodeSuggest  Agent = "code_suggest"
	AgentCodeExec     Agent = "code_exec"
	AgentDeepResearch Agent = "deep_research"
)

// Agents 列出全部已知 agent。
var Agents = []Agent{AgentChat, AgentCodeSuggest, AgentCodeExec, AgentDeepResearch}

// Conversation 是路由需要的会话能力。
type Conversation interface {
	AddToHistory(role model.Role, content string)
	ConversationHistory() []model.ConversationTurn
}

type Suggester interface {
	Suggest(ctx context.Context, prompt string) model.Outcome
}

type CodeExecutor interface {
	Execute(ctx context.Context, code string) model.Outcome
}

type Researcher interface {
	Answer(ctx context.Context, query string) model.Outcome
}

// Reply 是统一的返回形态：chat 返回 Stream，其余 agent 返回 Outcome。
type Reply struct {
	Agent   Agent
	Stream  *llm.Stream
	Outcome model.Outcome
}

// IsStream 判断是否为流式回复。
func (r Reply) IsStream() bool { return r.Stream != nil }

// Collect 把流式回复收集为 Outcome。失败分块之前的文本会被丢弃。
func (r Reply) Collect() model.Outcome {
	if r.Stream == nil {
		return r.Outcome
	}
	text, failure := llm.Collect(r.Stream)
	if failure != nil {
		return model.Outcome{Err: failure}
	}
	return model.Succeed(text)
}

// Router 持有四个后端。
type Router struct {
	chat       llm.Client
	suggester  Suggester
	executor   CodeExecutor
	researcher Researcher
}

// New 创建路由器。
func New(chat llm.Client, suggester Suggester, executor CodeExecutor, researcher Researcher) *Router {
	return &Router{chat: chat, suggester: suggester, executor: executor, researcher: researcher}
}

// Route 分发一次请求。未知 agent 返回 unknown_agent 失败，而不是 error。
func (r *Router) Route(ctx context.Context, conv Conversation, agent Agent, prompt string) Reply {
	switch agent {
	case AgentChat:
		conv.AddToHistory(model.RoleUser, prompt)
		messages := llm.MessagesFromHistory(conv.ConversationHistory())
		upstream := r.chat.StreamChatMessages(ctx, messages, nil)
		return Reply{Agent: agent, Stream: r.recordStream(ctx, conv, upstream)}
	case AgentCodeSuggest:
		return r.finish(agent, r.suggester.Suggest(ctx, prompt))
	case AgentCodeExec:
		return r.finish(agent, r.executor.Execute(ctx, prompt))
	case AgentDeepResearch:
		return r.finish(agent, r.researcher.Answer(ctx, prompt))
	default:
		log.Warnw("unknown agent requested", "agent", string(agent))
		return r.finish(agent, model.Fail(model.KindUnknownAgent, "Unknown agent specified.", nil))
	}
}

func (r *Router) finish(agent Agent, out model.Outcome) Reply {
	metrics.AgentRequests.WithLabelValues(agentLabel(agent), metrics.OutcomeLabel(out.Err)).Inc()
	return Reply{Agent: agent, Outcome: out}
}

// recordStream 原样转发分块；流结束后把累积文本记为一条 assistant 轮次。
// 被取消时记录已送达的部分文本，失败的流不记录。
func (r *Router) recordStream(ctx context.Context, conv Conversation, upstream *llm.Stream) *llm.Stream {
	return llm.NewStream(ctx, func(ctx context.Context, emit llm.Emit) {
		defer upstream.Close()

		var b strings.Builder
		var failure *model.Failure
		defer func() {
			metrics.AgentRequests.WithLabelValues(string(AgentChat), metrics.OutcomeLabel(failure)).Inc()
			if failure == nil {
				conv.AddToHistory(model.RoleAssistant, b.String())
			}
		}()

		for {
			select {
			case c, ok := <-upstream.C:
				if !ok {
					return
				}
				if c.Err != nil {
					failure = c.Err
					emit(c)
					return
				}
				if !emit(c) {
					return
				}
				b.WriteString(c.Text)
			case <-ctx.Done():
				return
			}
		}
	})
}

// agentLabel 限制指标标签的取值范围
func agentLabel(agent Agent) string {
	for _, a := range Agents {
		if a == agent {
			return string(a)
		}
	}
	return "unknown"
}
