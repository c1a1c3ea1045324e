package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"robo-chat-go/internal/router"
	"robo-chat-go/internal/service"
	"robo-chat-go/internal/session"
)

// AgentRequest 是直接调用单个 agent 的请求体
type AgentRequest struct {
	Prompt string `json:"prompt"`
}

// AgentHandler 直接调用某个 agent，返回收集后的完整结果。
type AgentHandler struct {
	router   service.AgentRouter
	sessions *session.Registry
}

func NewAgentHandler(r service.AgentRouter, sessions *session.Registry) *AgentHandler {
	return &AgentHandler{router: r, sessions: sessions}
}

// Invoke 处理 POST /sessions/:id/agents/:agent。
// 后端失败以 data.error 返回，HTTP 状态仍为 200。
func (h *AgentHandler) Invoke(c *gin.Context) {
	sess, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
		return
	}

	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}

	agent := router.Agent(c.Param("agent"))
	out := h.router.Route(c.Request.Context(), sess, agent, req.Prompt).Collect()

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"agent":   agent,
			"text":    out.Text,
			"error":   out.Err,
			"display": out.Display(),
		},
	})
}
