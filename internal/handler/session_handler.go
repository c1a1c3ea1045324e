package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"robo-chat-go/internal/session"
	"robo-chat-go/pkg/log"
	"robo-chat-go/pkg/metrics"
)

// defaultMemoryLimit 是聊天记忆展示的默认条数
const defaultMemoryLimit = 50

// SessionHandler 处理会话生命周期与记忆相关的 API 请求。
type SessionHandler struct {
	sessions *session.Registry
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(sessions *session.Registry) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) lookup(c *gin.Context) (*session.Store, bool) {
	sess, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
	}
	return sess, ok
}

// Create 创建新会话。
func (h *SessionHandler) Create(c *gin.Context) {
	sess := h.sessions.Create()
	metrics.ActiveSessions.Set(float64(h.sessions.Len()))
	log.Infow("会话已创建", "session_id", sess.ID())
	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "success",
		"data":    gin.H{"id": sess.ID()},
	})
}

// Delete 销毁会话。
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !h.sessions.Delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
		return
	}
	metrics.ActiveSessions.Set(float64(h.sessions.Len()))
	log.Infow("会话已销毁", "session_id", id)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// History 返回模型上下文历史。
func (h *SessionHandler) History(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sess.ConversationHistory()})
}

// Memory 返回最近的聊天记忆，?limit= 控制条数（默认 50，0 表示全部）。
func (h *SessionHandler) Memory(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	limit := defaultMemoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 limit 参数", "data": nil})
			return
		}
		limit = n
	}
	memory := sess.ChatMemory()
	if limit > 0 && len(memory) > limit {
		memory = memory[len(memory)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": memory})
}

// ClearHistory 清空 system 轮次之后的历史。
func (h *SessionHandler) ClearHistory(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	sess.ClearHistory()
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// ClearMemory 清空聊天记忆。
func (h *SessionHandler) ClearMemory(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	sess.ClearMemory()
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// Reset 同时清空历史与聊天记忆。
func (h *SessionHandler) Reset(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	sess.Reset()
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}
