package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"robo-chat-go/internal/service"
	"robo-chat-go/internal/session"
	"robo-chat-go/pkg/log"
)

// UploadHandler 负责处理上传文件并基于文件内容回答。
type UploadHandler struct {
	fileService service.FileService
	chatService service.ChatService
	sessions    *session.Registry
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(fileService service.FileService, chatService service.ChatService, sessions *session.Registry) *UploadHandler {
	return &UploadHandler{fileService: fileService, chatService: chatService, sessions: sessions}
}

// Upload 处理 multipart 表单中的 file 字段。
// 抽取出的文本作为一次提问送入聊天流程，但不写入聊天记忆。
func (h *UploadHandler) Upload(c *gin.Context) {
	sess, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少文件", "data": nil})
		return
	}
	if limit := h.fileService.MaxBytes(); fileHeader.Size > limit {
		tooLarge := service.TooLargeFailure(fileHeader.Filename, limit)
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"code":    http.StatusRequestEntityTooLarge,
			"message": tooLarge.Display(),
			"data":    gin.H{"error": tooLarge.Err},
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Error("Upload: 打开上传文件失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务器内部错误", "data": nil})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	extracted := h.fileService.Ingest(ctx, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
	if !extracted.OK() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    http.StatusUnprocessableEntity,
			"message": extracted.Display(),
			"data":    gin.H{"error": extracted.Err},
		})
		return
	}

	w := &service.CollectingWriter{}
	if err := h.chatService.Answer(ctx, sess, extracted.Text, w); err != nil {
		log.Error("Upload: 生成回复失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务器内部错误", "data": nil})
		return
	}

	log.Infow("上传文件已处理", "session_id", sess.ID(), "file", fileHeader.Filename, "size", fileHeader.Size)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"fileName": fileHeader.Filename,
			"reply":    w.Text.String(),
			"events":   w.Events,
		},
	})
}
