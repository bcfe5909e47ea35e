package controllers

import (
	"github.com/gin-gonic/gin"

	"chat-server/middlewares"
	"chat-server/services"
	"chat-server/utils"
)

// ConversationsController serves groups, channels and private chats.
type ConversationsController struct {
	Groups        *services.GroupService
	Conversations *services.ConversationService
}

// 获取会话列表
func (h *ConversationsController) List(c *gin.Context) {
	list, err := h.Conversations.List(c.Request.Context(), middlewares.MustUserID(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, list, gin.H{"count": len(list)})
}

// 根据会话 ID 获取会话信息
func (h *ConversationsController) Get(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	detail, err := h.Conversations.Get(c.Request.Context(), id, middlewares.MustUserID(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, detail, nil)
}

// 创建群组或频道
func (h *ConversationsController) Create(c *gin.Context) {
	var req services.CreateGroupInput
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	group, err := h.Groups.Create(c.Request.Context(), middlewares.MustUserID(c), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, group)
}

type privateChatReq struct {
	ParticipantID uint `json:"participantId" binding:"required"`
}

// CreatePrivate answers 201 for a new chat and 200 when one already existed.
func (h *ConversationsController) CreatePrivate(c *gin.Context) {
	var req privateChatReq
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	group, created, err := h.Groups.CreatePrivate(c.Request.Context(), middlewares.MustUserID(c), req.ParticipantID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if created {
		utils.RespondCreated(c, group)
		return
	}
	utils.RespondSuccess(c, group, nil)
}

// 更新会话名称、用户名或头像
func (h *ConversationsController) Update(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	var req services.UpdateGroupInput
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	group, err := h.Groups.Update(c.Request.Context(), id, middlewares.MustUserID(c), req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, group, nil)
}

// 退出会话
func (h *ConversationsController) Leave(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.Groups.Leave(c.Request.Context(), id, middlewares.MustUserID(c)); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"groupId": id}, nil)
}

type memberReq struct {
	UserID uint `json:"userId" binding:"required"`
}

// 添加成员
func (h *ConversationsController) AddMember(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	var req memberReq
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	member, err := h.Groups.AddMember(c.Request.Context(), id, middlewares.MustUserID(c), req.UserID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, member)
}

// 移除成员
func (h *ConversationsController) RemoveMember(c *gin.Context) {
	id, target, err := groupAndUser(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.Groups.RemoveMember(c.Request.Context(), id, middlewares.MustUserID(c), target); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"groupId": id, "userId": target}, nil)
}

// 设置管理员
func (h *ConversationsController) PromoteAdmin(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	var req memberReq
	if err := bindJSON(c, &req); err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.Groups.PromoteAdmin(c.Request.Context(), id, middlewares.MustUserID(c), req.UserID); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondCreated(c, gin.H{"groupId": id, "userId": req.UserID})
}

// 取消管理员
func (h *ConversationsController) DemoteAdmin(c *gin.Context) {
	id, target, err := groupAndUser(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.Groups.DemoteAdmin(c.Request.Context(), id, middlewares.MustUserID(c), target); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"groupId": id, "userId": target}, nil)
}

func groupAndUser(c *gin.Context) (uint, uint, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	userID, err := paramID(c, "userId")
	if err != nil {
		return 0, 0, err
	}
	return id, userID, nil
}
