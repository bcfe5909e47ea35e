package controllers

import (
	"github.com/gin-gonic/gin"

	"chat-server/middlewares"
	"chat-server/services"
	"chat-server/utils"
)

// MessageController serves message posting, history and read tracking.
type MessageController struct {
	Messages *services.MessageService
}

type sendMessageReq struct {
	Content     string                     `json:"content"`
	Attachments []services.AttachmentInput `json:"attachments" binding:"dive"`
}

// 发送消息
func (h *MessageController) Send(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	var req sendMessageReq
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	msg, err := h.Messages.Send(c.Request.Context(), id, middlewares.MustUserID(c), req.Content, req.Attachments)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, msg)
}

// 获取会话的消息列表
func (h *MessageController) List(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	before := queryInt(c, "before_id", 0)
	if before < 0 {
		before = 0
	}
	msgs, err := h.Messages.Messages(c.Request.Context(), id, middlewares.MustUserID(c), uint(before), queryInt(c, "limit", 30))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, msgs, gin.H{"count": len(msgs)})
}

// 将未标记的消息标为已读
func (h *MessageController) MarkRead(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	n, err := h.Messages.MarkRead(c.Request.Context(), id, middlewares.MustUserID(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"marked": n}, nil)
}

// 将所有未读标记设为已读
func (h *MessageController) MarkAllRead(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	n, err := h.Messages.MarkAllRead(c.Request.Context(), id, middlewares.MustUserID(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"marked": n}, nil)
}
