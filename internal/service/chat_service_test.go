package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robo-chat-go/internal/model"
	"robo-chat-go/internal/router"
	"robo-chat-go/internal/session"
	"robo-chat-go/pkg/llm"
)

type routeCall struct {
	agent  router.Agent
	prompt string
}

type fakeRouter struct {
	calls   []routeCall
	replies map[router.Agent]func(ctx context.Context, conv router.Conversation, prompt string) router.Reply
}

func (f *fakeRouter) Route(ctx context.Context, conv router.Conversation, agent router.Agent, prompt string) router.Reply {
	f.calls = append(f.calls, routeCall{agent, prompt})
	if fn, ok := f.replies[agent]; ok {
		return fn(ctx, conv, prompt)
	}
	return router.Reply{Agent: agent, Outcome: model.Fail(model.KindUnknownAgent, "Unknown agent specified.", nil)}
}

func (f *fakeRouter) agents() []router.Agent {
	out := make([]router.Agent, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.agent
	}
	return out
}

func outcomeReply(out model.Outcome) func(context.Context, router.Conversation, string) router.Reply {
	return func(context.Context, router.Conversation, string) router.Reply {
		return router.Reply{Outcome: out}
	}
}

func streamReply(parts ...string) func(context.Context, router.Conversation, string) router.Reply {
	return func(ctx context.Context, _ router.Conversation, _ string) router.Reply {
		return router.Reply{Agent: router.AgentChat, Stream: llm.TextStream(ctx, parts...)}
	}
}

func eventTypes(w *CollectingWriter) []string {
	out := make([]string, len(w.Events))
	for i, e := range w.Events {
		out[i] = e.Type
	}
	return out
}

func newTestSession() *session.Store {
	return session.New("s1", session.Options{})
}

func TestRespond_ChatSuggestExecute(t *testing.T) {
	r := &fakeRouter{replies: map[router.Agent]func(context.Context, router.Conversation, string) router.Reply{
		router.AgentChat:        streamReply("Hello", " there"),
		router.AgentCodeSuggest: outcomeReply(model.Succeed(`fmt.Println("hi")`)),
		router.AgentCodeExec:    outcomeReply(model.Succeed("hi")),
	}}
	svc := NewChatService(r, ChatOptions{SuggestCode: true, ExecuteSuggestions: true})
	sess := newTestSession()
	w := &CollectingWriter{}

	require.NoError(t, svc.Respond(context.Background(), sess, "say hi", w))

	assert.Equal(t, "Hello there", w.Text.String())
	assert.Equal(t, []string{EventSuggestion, EventExecution, EventCompletion}, eventTypes(w))
	assert.Equal(t, `fmt.Println("hi")`, w.Events[0].Content)
	assert.Equal(t, "hi", w.Events[1].Content)
	assert.Equal(t, "finished", w.Events[2].Status)

	assert.Equal(t, []router.Agent{router.AgentChat, router.AgentCodeSuggest, router.AgentCodeExec}, r.agents())
	assert.Equal(t, `fmt.Println("hi")`, r.calls[2].prompt)
	assert.Equal(t, []string{"say hi"}, sess.ChatMemory())
}

func TestRespond_FailedSuggestionIsPassedAsDisplayText(t *testing.T) {
	r := &fakeRouter{replies: map[router.Agent]func(context.Context, router.Conversation, string) router.Reply{
		router.AgentChat:        streamReply("ok"),
		router.AgentCodeSuggest: outcomeReply(model.Fail(model.KindNetwork, "HTTP error occurred: 500", nil)),
		router.AgentCodeExec:    outcomeReply(model.Fail(model.KindEmptyInput, "Cannot execute: this is not valid Go code.", nil)),
	}}
	svc := NewChatService(r, ChatOptions{SuggestCode: true, ExecuteSuggestions: true})
	w := &CollectingWriter{}

	require.NoError(t, svc.Respond(context.Background(), newTestSession(), "q", w))

	assert.Equal(t, "❌ HTTP error occurred: 500", r.calls[2].prompt)
	require.Len(t, w.Events, 3)
	assert.Equal(t, "failed", w.Events[0].Status)
	assert.Equal(t, model.KindNetwork, w.Events[0].Kind)
	assert.Equal(t, model.KindEmptyInput, w.Events[1].Kind)
}

func TestRespond_SuggestionsDisabled(t *testing.T) {
	r := &fakeRouter{replies: map[router.Agent]func(context.Context, router.Conversation, string) router.Reply{
		router.AgentChat: streamReply("ok"),
	}}
	svc := NewChatService(r, ChatOptions{})
	w := &CollectingWriter{}

	require.NoError(t, svc.Respond(context.Background(), newTestSession(), "q", w))
	assert.Equal(t, []router.Agent{router.AgentChat}, r.agents())
	assert.Equal(t, []string{EventCompletion}, eventTypes(w))
}

func TestRespond_ResearchPrefix(t *testing.T) {
	r := &fakeRouter{replies: map[router.Agent]func(context.Context, router.Conversation, string) router.Reply{
		router.AgentDeepResearch: outcomeReply(model.Succeed("**Summary of Findings:**\n\nx")),
	}}
	svc := NewChatService(r, ChatOptions{SuggestCode: true, ExecuteSuggestions: true})
	sess := newTestSession()
	w := &CollectingWriter{}

	require.NoError(t, svc.Respond(context.Background(), sess, "  Research: golang generics ", w))

	require.Len(t, r.calls, 1)
	assert.Equal(t, routeCall{router.AgentDeepResearch, "golang generics"}, r.calls[0])
	assert.Equal(t, []string{EventResearch, EventCompletion}, eventTypes(w))
	assert.Empty(t, w.Text.String())

	history := sess.ConversationHistory()
	require.Len(t, history, 3)
	assert.Equal(t, model.RoleUser, history[1].Role)
	assert.Equal(t, "**Summary of Findings:**\n\nx", history[2].Content)
}

func TestRespond_FailedResearchRecordsOnlyUserTurn(t *testing.T) {
	r := &fakeRouter{replies: map[router.Agent]func(context.Context, router.Conversation, string) router.Reply{
		router.AgentDeepResearch: outcomeReply(model.Fail(model.KindNoContent, "No results found.", nil)),
	}}
	svc := NewChatService(r, ChatOptions{})
	sess := newTestSession()
	w := &CollectingWriter{}

	require.NoError(t, svc.Respond(context.Background(), sess, "research: nothing", w))

	assert.Equal(t, "⚠️ No results found.", w.Events[0].Content)
	assert.Len(t, sess.ConversationHistory(), 2)
}

func TestRespond_BlankPrompt(t *testing.T) {
	r := &fakeRouter{}
	svc := NewChatService(r, ChatOptions{SuggestCode: true})
	sess := newTestSession()
	w := &CollectingWriter{}

	require.NoError(t, svc.Respond(context.Background(), sess, "   ", w))

	assert.Empty(t, r.calls)
	assert.Empty(t, sess.ChatMemory())
	assert.Equal(t, []string{EventError, EventCompletion}, eventTypes(w))
	assert.Equal(t, model.KindEmptyInput, w.Events[0].Kind)
}

func TestRespond_StreamFailureBecomesErrorEvent(t *testing.T) {
	failure := &model.Failure{Kind: model.KindNetwork, Message: "Request failed: refused"}
	r := &fakeRouter{replies: map[router.Agent]func(context.Context, router.Conversation, string) router.Reply{
		router.AgentChat: func(ctx context.Context, _ router.Conversation, _ string) router.Reply {
			return router.Reply{Stream: llm.FailedStream(ctx, failure)}
		},
	}}
	svc := NewChatService(r, ChatOptions{})
	w := &CollectingWriter{}

	require.NoError(t, svc.Respond(context.Background(), newTestSession(), "q", w))
	require.Equal(t, []string{EventError, EventCompletion}, eventTypes(w))
	assert.Equal(t, "❌ Request failed: refused", w.Events[0].Content)
}

func TestRespond_CancelledSkipsFollowUps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeRouter{replies: map[router.Agent]func(context.Context, router.Conversation, string) router.Reply{
		router.AgentChat: func(ctx context.Context, _ router.Conversation, _ string) router.Reply {
			return router.Reply{Stream: llm.NewStream(ctx, func(ctx context.Context, emit llm.Emit) {
				emit(llm.Chunk{Text: "partial"})
				cancel()
				<-ctx.Done()
			})}
		},
	}}
	svc := NewChatService(r, ChatOptions{SuggestCode: true, ExecuteSuggestions: true})
	w := &CollectingWriter{}

	require.NoError(t, svc.Respond(ctx, newTestSession(), "q", w))
	assert.Equal(t, "partial", w.Text.String())
	assert.Equal(t, []router.Agent{router.AgentChat}, r.agents())
	assert.Empty(t, w.Events)
}

type failingWriter struct{}

func (failingWriter) WriteChunk(string) error { return errors.New("socket closed") }
func (failingWriter) WriteEvent(Event) error  { return errors.New("socket closed") }

func TestRespond_WriteErrorIsReturned(t *testing.T) {
	r := &fakeRouter{replies: map[router.Agent]func(context.Context, router.Conversation, string) router.Reply{
		router.AgentChat: streamReply("a", "b"),
	}}
	svc := NewChatService(r, ChatOptions{})

	err := svc.Respond(context.Background(), newTestSession(), "q", failingWriter{})
	assert.Error(t, err)
}

func TestAnswer_DoesNotTouchChatMemory(t *testing.T) {
	r := &fakeRouter{replies: map[router.Agent]func(context.Context, router.Conversation, string) router.Reply{
		router.AgentChat: streamReply("summary"),
	}}
	svc := NewChatService(r, ChatOptions{})
	sess := newTestSession()

	require.NoError(t, svc.Answer(context.Background(), sess, "file text", &CollectingWriter{}))
	assert.Empty(t, sess.ChatMemory())
}

func TestResearchQuery(t *testing.T) {
	q, ok := ResearchQuery("research: go")
	assert.True(t, ok)
	assert.Equal(t, "go", q)

	q, ok = ResearchQuery("RESEARCH:")
	assert.True(t, ok)
	assert.Empty(t, q)

	_, ok = ResearchQuery("do research: go")
	assert.False(t, ok)

	_, ok = ResearchQuery("res")
	assert.False(t, ok)
}
