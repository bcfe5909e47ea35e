package controllers

import (
	"context"

	"github.com/gin-gonic/gin"

	"chat-server/middlewares"
	"chat-server/models"
	"chat-server/services"
	"chat-server/utils"
)

// CallController serves the call lifecycle.
type CallController struct {
	Calls *services.CallService
}

type initiateCallReq struct {
	ReceiverID uint   `json:"receiverId" binding:"required"`
	CallType   string `json:"callType" binding:"required,oneof=audio video"`
}

// 发起通话
func (h *CallController) Initiate(c *gin.Context) {
	var req initiateCallReq
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	call, err := h.Calls.Initiate(c.Request.Context(), middlewares.MustUserID(c), req.ReceiverID, req.CallType)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, call)
}

// 接听通话
func (h *CallController) Accept(c *gin.Context) { h.transition(c, h.Calls.Accept) }

// 拒绝通话
func (h *CallController) Reject(c *gin.Context) { h.transition(c, h.Calls.Reject) }

// 挂断通话
func (h *CallController) End(c *gin.Context) { h.transition(c, h.Calls.End) }

func (h *CallController) transition(c *gin.Context, fn func(context.Context, uint, uint) (*models.Call, error)) {
	id, err := paramID(c, "callId")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	call, err := fn(c.Request.Context(), id, middlewares.MustUserID(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, call, nil)
}

// 获取通话详情
func (h *CallController) Get(c *gin.Context) {
	id, err := paramID(c, "callId")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), id, middlewares.MustUserID(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, call, nil)
}

// 获取通话记录
func (h *CallController) History(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)
	calls, err := h.Calls.History(c.Request.Context(), middlewares.MustUserID(c), page, limit)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, calls, gin.H{"page": page, "count": len(calls)})
}
