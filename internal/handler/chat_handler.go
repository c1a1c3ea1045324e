// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"robo-chat-go/internal/model"
	"robo-chat-go/internal/service"
	"robo-chat-go/internal/session"
	"robo-chat-go/pkg/log"
	"robo-chat-go/pkg/metrics"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	chatService service.ChatService
	sessions    *session.Registry
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, sessions *session.Registry) *ChatHandler {
	return &ChatHandler{chatService: chatService, sessions: sessions}
}

// wsWriter 把回复写成 JSON 文本帧，写操作串行化。
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) writeJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

// WriteChunk 将原始分块包装成 {"chunk":"..."}
func (w *wsWriter) WriteChunk(text string) error {
	return w.writeJSON(map[string]string{"chunk": text})
}

func (w *wsWriter) WriteEvent(event service.Event) error {
	return w.writeJSON(event)
}

// isStopCommand 判断是否为 {"type":"stop"} 指令
func isStopCommand(message []byte) bool {
	if len(message) == 0 || message[0] != '{' {
		return false
	}
	var ctrl struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(message, &ctrl) == nil && ctrl.Type == service.EventStop
}

// Handle 处理一个传入的 WebSocket 连接。
// 读循环负责接收输入与停止指令，回复在单独的 goroutine 中一次处理一条。
func (h *ChatHandler) Handle(c *gin.Context) {
	sess, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	metrics.WebsocketConnections.Inc()
	defer metrics.WebsocketConnections.Dec()
	log.Infow("WebSocket 连接已建立", "session_id", sess.ID())

	ctx, cancelAll := context.WithCancel(context.Background())
	defer cancelAll()

	writer := &wsWriter{conn: conn}
	prompts := make(chan string)
	var (
		mu            sync.Mutex
		cancelCurrent context.CancelFunc
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for prompt := range prompts {
			replyCtx, cancel := context.WithCancel(ctx)
			mu.Lock()
			cancelCurrent = cancel
			mu.Unlock()

			err := h.chatService.Respond(replyCtx, sess, prompt, writer)

			mu.Lock()
			cancelCurrent = nil
			mu.Unlock()
			cancel()

			if err != nil {
				log.Warnw("写入 WebSocket 失败，关闭连接", "session_id", sess.ID(), "error", err)
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Debugf("从 WebSocket 读取消息结束: %v", err)
			break
		}

		if isStopCommand(message) {
			mu.Lock()
			if cancelCurrent != nil {
				cancelCurrent()
			}
			mu.Unlock()
			ev := service.NewEvent(service.EventStop)
			ev.Message = "响应已停止"
			_ = writer.WriteEvent(ev)
			continue
		}

		select {
		case prompts <- string(message):
		default:
			ev := service.NewEvent(service.EventError)
			ev.Status = "failed"
			ev.Kind = model.KindEmptyInput
			ev.Content = "⚠️ A reply is already in progress."
			_ = writer.WriteEvent(ev)
		}
	}

	close(prompts)
	cancelAll()
	<-done
	log.Infow("WebSocket 连接已关闭", "session_id", sess.ID())
}
