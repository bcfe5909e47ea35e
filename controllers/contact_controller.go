package controllers

import (
	"github.com/gin-gonic/gin"

	"chat-server/middlewares"
	"chat-server/services"
	"chat-server/utils"
)

// ContactController serves the address book.
type ContactController struct {
	Contacts *services.ContactService
}

type contactReq struct {
	ContactID  uint   `json:"contactId" binding:"required"`
	CustomName string `json:"customName" binding:"required"`
}

type renameContactReq struct {
	CustomName string `json:"customName" binding:"required"`
}

// 获取联系人列表
func (h *ContactController) List(c *gin.Context) {
	contacts, err := h.Contacts.List(c.Request.Context(), middlewares.MustUserID(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, contacts, gin.H{"count": len(contacts)})
}

// 添加联系人或修改备注
func (h *ContactController) Upsert(c *gin.Context) {
	var req contactReq
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	contact, err := h.Contacts.Upsert(c.Request.Context(), middlewares.MustUserID(c), req.ContactID, req.CustomName)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, contact, nil)
}

// 修改联系人备注
func (h *ContactController) Rename(c *gin.Context) {
	target, err := paramID(c, "contactId")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	var req renameContactReq
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	contact, err := h.Contacts.Rename(c.Request.Context(), middlewares.MustUserID(c), target, req.CustomName)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, contact, nil)
}

// 删除联系人
func (h *ContactController) Delete(c *gin.Context) {
	target, err := paramID(c, "contactId")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.Contacts.Delete(c.Request.Context(), middlewares.MustUserID(c), target); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"contactId": target}, nil)
}
