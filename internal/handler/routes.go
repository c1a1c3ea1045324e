package handler

import (
	"github.com/gin-gonic/gin"

	"robo-chat-go/internal/service"
	"robo-chat-go/internal/session"
)

// Dependencies 汇总注册路由所需的服务。
type Dependencies struct {
	Sessions    *session.Registry
	ChatService service.ChatService
	FileService service.FileService
	Router      service.AgentRouter
}

// RegisterRoutes 注册会话 API 与 WebSocket 聊天路由。
func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	sessionHandler := NewSessionHandler(deps.Sessions)
	agentHandler := NewAgentHandler(deps.Router, deps.Sessions)
	uploadHandler := NewUploadHandler(deps.FileService, deps.ChatService, deps.Sessions)

	apiV1 := r.Group("/api/v1")
	{
		sessions := apiV1.Group("/sessions")
		{
			sessions.POST("", sessionHandler.Create)
			sessions.DELETE("/:id", sessionHandler.Delete)
			sessions.GET("/:id/history", sessionHandler.History)
			sessions.DELETE("/:id/history", sessionHandler.ClearHistory)
			sessions.GET("/:id/memory", sessionHandler.Memory)
			sessions.DELETE("/:id/memory", sessionHandler.ClearMemory)
			sessions.POST("/:id/reset", sessionHandler.Reset)
			sessions.POST("/:id/agents/:agent", agentHandler.Invoke)
			sessions.POST("/:id/upload", uploadHandler.Upload)
		}
	}

	// Chat 路由 (WebSocket)
	r.GET("/chat/:id", NewChatHandler(deps.ChatService, deps.Sessions).Handle)
}
