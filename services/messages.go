package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chat-server/models"
	"chat-server/utils"
)

const (
	defaultMessageLimit = 30
	maxMessageLimit     = 200
)

// AttachmentInput is an attachment as submitted with a new message. The
// locator is Pathname (as returned by an upload) or, failing that, URL.
type AttachmentInput struct {
	Type     string  `json:"type" binding:"required,oneof=image video document voice"`
	Pathname string  `json:"pathname"`
	URL      string  `json:"url"`
	Filename *string `json:"filename"`
	Size     *int64  `json:"size"`
	Duration *int    `json:"duration"`
}

// MessageView is a message enriched for clients.
type MessageView struct {
	models.Message
	User   models.UserSummary `json:"user"`
	IsRead bool               `json:"isRead"`
}

// NewMessageEvent is the payload of a new_message push.
type NewMessageEvent struct {
	Message *MessageView `json:"message"`
	GroupID uint         `json:"groupId"`
}

// MessageService persists messages, fans them out and tracks read state.
type MessageService struct {
	db      *gorm.DB
	pusher  Pusher
	storage *Storage
	metrics *Metrics
	timeout time.Duration
}

func NewMessageService(db *gorm.DB, pusher Pusher, storage *Storage, metrics *Metrics, timeout time.Duration) *MessageService {
	return &MessageService{db: db, pusher: pusher, storage: storage, metrics: metrics, timeout: timeout}
}

// validateMessage checks content and attachments before anything is loaded
// or written.
func validateMessage(content string, atts []AttachmentInput) ([]models.Attachment, error) {
	if content == "" && len(atts) == 0 {
		return nil, utils.Validation("content", "message cannot be empty")
	}
	out := make([]models.Attachment, 0, len(atts))
	for i, a := range atts {
		if !models.ValidAttachmentType(a.Type) {
			return nil, utils.Validation(fmt.Sprintf("attachments[%d].type", i), "invalid attachment type")
		}
		locator := strings.TrimSpace(a.Pathname)
		if locator == "" {
			locator = strings.TrimSpace(a.URL)
		}
		if locator == "" {
			return nil, utils.Validation(fmt.Sprintf("attachments[%d].pathname", i), "attachment locator is required")
		}
		out = append(out, models.Attachment{
			Type:     a.Type,
			Pathname: locator,
			Filename: a.Filename,
			Size:     a.Size,
			Duration: a.Duration,
		})
	}
	return out, nil
}

// Send posts a message to a conversation. The message, its attachments and
// one unread marker per other member are written in a single transaction;
// online recipients are then notified.
func (s *MessageService) Send(ctx context.Context, groupID, authorID uint, content string, atts []AttachmentInput) (*MessageView, error) {
	content = strings.TrimSpace(content)
	attachments, err := validateMessage(content, atts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	group, err := loadGroup(db, groupID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(RolesOf(group), authorID, 0, ActionPostMessage); err != nil {
		return nil, err
	}

	msg := models.Message{
		GroupID:     groupID,
		UserID:      authorID,
		Content:     content,
		Attachments: attachments,
	}
	var recipients []uint
	err = db.Transaction(func(tx *gorm.DB) error {
		var memberIDs []uint
		if err := tx.Model(&models.GroupMember{}).
			Where("group_id = ?", groupID).
			Pluck("user_id", &memberIDs).Error; err != nil {
			return utils.Internal(err, "load members")
		}
		isMember := false
		for _, id := range memberIDs {
			if id == authorID {
				isMember = true
			} else {
				recipients = append(recipients, id)
			}
		}
		if !isMember {
			return utils.Forbidden("you are not a member of this conversation")
		}

		if err := tx.Omit("User", "Reads").Create(&msg).Error; err != nil {
			return utils.Internal(err, "create message")
		}
		if len(recipients) == 0 {
			return nil
		}
		markers := make([]models.MessageRead, 0, len(recipients))
		for _, id := range recipients {
			markers = append(markers, models.MessageRead{UserID: id, MessageID: msg.ID, IsRead: false})
		}
		if err := tx.Create(&markers).Error; err != nil {
			return utils.Internal(err, "create read markers")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.messageSent()

	var author models.User
	if err := db.Select("id", "name", "avatar").First(&author, authorID).Error; err != nil {
		log.WithField("user_id", authorID).WithError(err).Warn("load message author")
		author.ID = authorID
	}
	msg.User = author
	view := s.view(msg, false)

	ev := Event{Type: EventNewMessage, Payload: NewMessageEvent{Message: view, GroupID: groupID}}
	for _, id := range recipients {
		s.pusher.Send(id, ev)
	}

	log.WithFields(log.Fields{
		"group_id": groupID, "message_id": msg.ID, "user_id": authorID, "recipients": len(recipients),
	}).Info("message sent")
	return view, nil
}

// MarkRead marks every message by others that the reader has no marker for
// as read. It returns the number of markers created.
func (s *MessageService) MarkRead(ctx context.Context, groupID, readerID uint) (int64, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	if err := s.requireMember(db, groupID, readerID); err != nil {
		return 0, err
	}
	n, err := insertMissingMarkers(db, groupID, readerID)
	if err != nil {
		return 0, utils.Internal(err, "mark read")
	}
	return n, nil
}

// MarkAllRead flips every unread marker of the reader in the conversation to
// read. It returns the number of markers flipped.
func (s *MessageService) MarkAllRead(ctx context.Context, groupID, readerID uint) (int64, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	if err := s.requireMember(db, groupID, readerID); err != nil {
		return 0, err
	}
	res := db.Model(&models.MessageRead{}).
		Where("user_id = ? AND is_read = ?", readerID, false).
		Where("message_id IN (?)", db.Model(&models.Message{}).Select("id").Where("group_id = ?", groupID)).
		Update("is_read", true)
	if res.Error != nil {
		return 0, utils.Internal(res.Error, "mark all read")
	}
	return res.RowsAffected, nil
}

// insertMissingMarkers creates read markers for messages by others that
// readerID has none for. Concurrent callers may race; duplicates are ignored.
func insertMissingMarkers(db *gorm.DB, groupID, readerID uint) (int64, error) {
	var ids []uint
	err := db.Model(&models.Message{}).
		Where("group_id = ? AND user_id <> ?", groupID, readerID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = messages.id AND r.user_id = ?)", readerID).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	markers := make([]models.MessageRead, 0, len(ids))
	for _, id := range ids {
		markers = append(markers, models.MessageRead{UserID: readerID, MessageID: id, IsRead: true})
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&markers)
	return res.RowsAffected, res.Error
}

// Messages returns up to limit messages older than beforeID (0 for the
// newest), oldest first.
func (s *MessageService) Messages(ctx context.Context, groupID, viewerID, beforeID uint, limit int) ([]MessageView, error) {
	if limit < 1 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	if err := s.requireMember(db, groupID, viewerID); err != nil {
		return nil, err
	}

	q := db.Preload("Attachments").Preload("User").
		Where("group_id = ?", groupID).
		Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []models.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, utils.Internal(err, "load messages")
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return s.views(db, groupID, viewerID, msgs)
}

// UnreadCount is the number of messages by others in the conversation
// without a read marker set for viewerID.
func (s *MessageService) UnreadCount(ctx context.Context, groupID, viewerID uint) (int64, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	n, err := unreadCount(s.db.WithContext(ctx), groupID, viewerID)
	if err != nil {
		return 0, utils.Internal(err, "count unread")
	}
	return n, nil
}

// LastMessageRead reports whether the last message of the conversation was
// written by viewerID and read by every other current member.
func (s *MessageService) LastMessageRead(ctx context.Context, groupID, viewerID uint) (bool, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var last models.Message
	err := db.Where("group_id = ?", groupID).Order("id DESC").Take(&last).Error
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, utils.Internal(err, "load last message")
	}
	ok, err := readByAll(db, groupID, viewerID, &last)
	if err != nil {
		return false, utils.Internal(err, "count readers")
	}
	return ok, nil
}

func (s *MessageService) requireMember(db *gorm.DB, groupID, userID uint) error {
	var group models.Group
	if err := db.Select("id").First(&group, groupID).Error; err != nil {
		return notFoundOr(err, "conversation")
	}
	var n int64
	if err := db.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&n).Error; err != nil {
		return utils.Internal(err, "check membership")
	}
	if n == 0 {
		return utils.Forbidden("you are not a member of this conversation")
	}
	return nil
}

// view resolves attachment URLs and the author card.
func (s *MessageService) view(m models.Message, isRead bool) *MessageView {
	for i := range m.Attachments {
		m.Attachments[i].URL = s.storage.URL(m.Attachments[i].Pathname)
	}
	return &MessageView{Message: m, User: m.User.Summary(), IsRead: isRead}
}

// views enriches msgs for viewerID. A message by someone else is read when
// the viewer's marker is set; the viewer's own message is read when every
// other current member has read it.
func (s *MessageService) views(db *gorm.DB, groupID, viewerID uint, msgs []models.Message) ([]MessageView, error) {
	out := make([]MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return out, nil
	}
	var own, others []uint
	for _, m := range msgs {
		if m.UserID == viewerID {
			own = append(own, m.ID)
		} else {
			others = append(others, m.ID)
		}
	}

	readByViewer := map[uint]bool{}
	if len(others) > 0 {
		var ids []uint
		if err := db.Model(&models.MessageRead{}).
			Where("user_id = ? AND is_read = ? AND message_id IN ?", viewerID, true, others).
			Pluck("message_id", &ids).Error; err != nil {
			return nil, utils.Internal(err, "load read markers")
		}
		for _, id := range ids {
			readByViewer[id] = true
		}
	}

	readByAllOthers := map[uint]bool{}
	if len(own) > 0 {
		recipients, err := otherMemberCount(db, groupID, viewerID)
		if err != nil {
			return nil, utils.Internal(err, "count members")
		}
		counts, err := readerCounts(db, groupID, viewerID, own)
		if err != nil {
			return nil, utils.Internal(err, "count readers")
		}
		for _, id := range own {
			readByAllOthers[id] = counts[id] == recipients
		}
	}

	for _, m := range msgs {
		isRead := readByViewer[m.ID]
		if m.UserID == viewerID {
			isRead = readByAllOthers[m.ID]
		}
		out = append(out, *s.view(m, isRead))
	}
	return out, nil
}
