package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robo-chat-go/internal/config"
	"robo-chat-go/internal/model"
)

func newTestClient(url string) Client {
	return NewClient(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
}

func deltaLine(text string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", text)
}

func TestStreamChatMessages_ParsesSSE(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, deltaLine("Hel"))
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, "data: \n\n")
		fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		fmt.Fprint(w, deltaLine("lo"))
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, deltaLine("ignored"))
	}))
	defer srv.Close()

	msgs := MessagesFromHistory([]model.ConversationTurn{
		{Role: model.RoleSystem, Content: "persona"},
		{Role: model.RoleUser, Content: "hi"},
	})
	text, failure := Collect(newTestClient(srv.URL).StreamChatMessages(context.Background(), msgs, nil))

	assert.Nil(t, failure)
	assert.Equal(t, "Hello", text)
	assert.True(t, got.Stream)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestStreamChatMessages_GenerationParams(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{
		BaseURL:    srv.URL,
		Generation: config.LLMGenerationConfig{Temperature: 0.5, MaxTokens: 64},
	})
	_, failure := Collect(c.StreamChatMessages(context.Background(), nil, nil))

	assert.Nil(t, failure)
	assert.Equal(t, 0.5, got["temperature"])
	assert.Equal(t, float64(64), got["max_tokens"])
	assert.NotContains(t, got, "top_p")
}

func TestStreamChatMessages_Non200IsSingleFailureChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := newTestClient(srv.URL).StreamChatMessages(context.Background(), nil, nil)
	var chunks []Chunk
	for c := range s.C {
		chunks = append(chunks, c)
	}

	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].Err)
	assert.Equal(t, model.KindNetwork, chunks[0].Err.Kind)
	assert.Contains(t, chunks[0].Err.Message, "401")
	assert.Contains(t, chunks[0].Err.Display(), "❌")
}

func TestStreamChatMessages_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, failure := Collect(newTestClient(url).StreamChatMessages(context.Background(), nil, nil))
	require.NotNil(t, failure)
	assert.Equal(t, model.KindNetwork, failure.Kind)
	assert.Contains(t, failure.Message, "Request failed")
}

func TestStream_CloseStopsFurtherChunks(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, deltaLine("first"))
		flusher.Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	s := newTestClient(srv.URL).StreamChatMessages(context.Background(), nil, nil)
	first := <-s.C
	assert.Equal(t, "first", first.Text)

	s.Close()
	select {
	case c, ok := <-s.C:
		assert.False(t, ok, "unexpected chunk after close: %+v", c)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after Close")
	}
}

func TestTextStreamAndCollect(t *testing.T) {
	text, failure := Collect(TextStream(context.Background(), "a", "b", "c"))
	assert.Nil(t, failure)
	assert.Equal(t, "abc", text)

	f := &model.Failure{Kind: model.KindNetwork, Message: "down"}
	text, failure = Collect(FailedStream(context.Background(), f))
	assert.Empty(t, text)
	assert.Same(t, f, failure)
}
