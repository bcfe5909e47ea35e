package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"chat-server/models"
	"chat-server/utils"
)

// detailMessageLimit caps the messages embedded in a conversation detail;
// older history is paged through MessageService.Messages.
const detailMessageLimit = maxMessageLimit

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	models.Group
	MemberCount       int                 `json:"memberCount"`
	LastMessage       *MessageView        `json:"lastMessage"`
	UnreadCount       int64               `json:"unreadCount"`
	IsLastMessageRead bool                `json:"isLastMessageRead"`
	CustomName        *string             `json:"customName"`
	Interlocutor      *models.UserSummary `json:"interlocutor,omitempty"`
}

// ConversationDetail is a conversation with its recent messages.
type ConversationDetail struct {
	models.Group
	Messages          []MessageView `json:"messages"`
	UnreadCount       int64         `json:"unreadCount"`
	IsLastMessageRead bool          `json:"isLastMessageRead"`
	CustomName        *string       `json:"customName"`
}

// ConversationService builds per-viewer conversation views.
type ConversationService struct {
	db       *gorm.DB
	messages *MessageService
	timeout  time.Duration
}

func NewConversationService(db *gorm.DB, messages *MessageService, timeout time.Duration) *ConversationService {
	return &ConversationService{db: db, messages: messages, timeout: timeout}
}

// List returns the conversations viewer belongs to, newest first.
func (s *ConversationService) List(ctx context.Context, viewer uint) ([]ConversationSummary, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var groups []models.Group
	err := db.Preload("Members").Preload("Members.User").
		Where("id IN (?)", db.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", viewer)).
		Order("created_at DESC").
		Order("id DESC").
		Find(&groups).Error
	if err != nil {
		return nil, utils.Internal(err, "load conversations")
	}

	interlocutors := make(map[uint]models.User, len(groups))
	var others []uint
	for _, g := range groups {
		if !g.IsPrivate {
			continue
		}
		for _, m := range g.Members {
			if m.UserID != viewer {
				interlocutors[g.ID] = m.User
				others = append(others, m.UserID)
			}
		}
	}
	names, err := customNames(db, viewer, others)
	if err != nil {
		return nil, utils.Internal(err, "load contacts")
	}

	out := make([]ConversationSummary, 0, len(groups))
	for _, g := range groups {
		row := ConversationSummary{Group: g, MemberCount: len(g.Members)}

		var last models.Message
		err := db.Preload("Attachments").Preload("User").
			Where("group_id = ?", g.ID).
			Order("id DESC").
			Take(&last).Error
		switch {
		case err == nil:
			row.LastMessage = s.messages.view(last, false)
			if row.IsLastMessageRead, err = readByAll(db, g.ID, viewer, &last); err != nil {
				return nil, utils.Internal(err, "count readers")
			}
			row.LastMessage.IsRead = row.IsLastMessageRead
		case !isNotFound(err):
			return nil, utils.Internal(err, "load last message")
		}

		if row.UnreadCount, err = unreadCount(db, g.ID, viewer); err != nil {
			return nil, utils.Internal(err, "count unread")
		}

		if u, ok := interlocutors[g.ID]; ok {
			summary := u.Summary()
			row.Interlocutor = &summary
			if name, ok := names[u.ID]; ok {
				row.CustomName = &name
			}
		}
		// members are only needed for the summary fields above
		row.Group.Members = nil
		out = append(out, row)
	}
	return out, nil
}

// Get returns a conversation the viewer belongs to with its most recent
// messages in ascending order.
func (s *ConversationService) Get(ctx context.Context, groupID, viewer uint) (*ConversationDetail, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var g models.Group
	err := db.Preload("Owner").
		Preload("Members").Preload("Members.User").
		Preload("Admins").Preload("Admins.User").
		First(&g, groupID).Error
	if err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	if !RolesOf(&g).IsMember(viewer) {
		return nil, utils.Forbidden("you are not a member of this conversation")
	}

	var msgs []models.Message
	err = db.Preload("Attachments").Preload("User").
		Where("group_id = ?", groupID).
		Order("id DESC").
		Limit(detailMessageLimit).
		Find(&msgs).Error
	if err != nil {
		return nil, utils.Internal(err, "load messages")
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	views, err := s.messages.views(db, groupID, viewer, msgs)
	if err != nil {
		return nil, err
	}

	d := &ConversationDetail{Group: g, Messages: views}
	if d.UnreadCount, err = unreadCount(db, groupID, viewer); err != nil {
		return nil, utils.Internal(err, "count unread")
	}
	if n := len(msgs); n > 0 {
		if d.IsLastMessageRead, err = readByAll(db, groupID, viewer, &msgs[n-1]); err != nil {
			return nil, utils.Internal(err, "count readers")
		}
	}
	if g.IsPrivate {
		for _, m := range g.Members {
			if m.UserID == viewer {
				continue
			}
			names, err := customNames(db, viewer, []uint{m.UserID})
			if err != nil {
				return nil, utils.Internal(err, "load contact")
			}
			if name, ok := names[m.UserID]; ok {
				d.CustomName = &name
			}
		}
	}
	return d, nil
}
