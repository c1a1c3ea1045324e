package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robo-chat-go/internal/service"
	"robo-chat-go/pkg/llm"
)

func dialChat(t *testing.T, srv *testServer, id string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.engine)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestChatWebsocket_StreamsReply(t *testing.T) {
	srv := newTestServer(nil)
	id := srv.createSession(t)
	conn := dialChat(t, srv, id)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))

	assert.Equal(t, "echo: ", readFrame(t, conn)["chunk"])
	assert.Equal(t, "hello", readFrame(t, conn)["chunk"])
	done := readFrame(t, conn)
	assert.Equal(t, service.EventCompletion, done["type"])
	assert.Equal(t, "finished", done["status"])

	sess, _ := srv.sessions.Get(id)
	assert.Equal(t, []string{"hello"}, sess.ChatMemory())
}

func TestChatWebsocket_StopCancelsReply(t *testing.T) {
	srv := newTestServer(nil)
	cancelled := make(chan struct{})
	srv.router.chat = func(ctx context.Context, _ string) *llm.Stream {
		return llm.NewStream(ctx, func(ctx context.Context, emit llm.Emit) {
			emit(llm.Chunk{Text: "partial"})
			<-ctx.Done()
			close(cancelled)
		})
	}
	id := srv.createSession(t)
	conn := dialChat(t, srv, id)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("long question")))
	assert.Equal(t, "partial", readFrame(t, conn)["chunk"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)))
	stop := readFrame(t, conn)
	assert.Equal(t, service.EventStop, stop["type"])

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("reply was not cancelled")
	}
}

func TestChatWebsocket_UnknownSession(t *testing.T) {
	srv := newTestServer(nil)
	ts := httptest.NewServer(srv.engine)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIsStopCommand(t *testing.T) {
	assert.True(t, isStopCommand([]byte(`{"type":"stop"}`)))
	assert.False(t, isStopCommand([]byte(`{"type":"chat"}`)))
	assert.False(t, isStopCommand([]byte(`stop`)))
	assert.False(t, isStopCommand(nil))
}
