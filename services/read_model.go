package services

import (
	"gorm.io/gorm"

	"chat-server/models"
)

// unreadCount counts messages by others in groupID for which viewerID has no
// marker with is_read set. A missing marker counts as unread.
func unreadCount(db *gorm.DB, groupID, viewerID uint) (int64, error) {
	var n int64
	err := db.Model(&models.Message{}).
		Where("group_id = ? AND user_id <> ?", groupID, viewerID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = messages.id AND r.user_id = ? AND r.is_read = ?)", viewerID, true).
		Count(&n).Error
	return n, err
}

// otherMemberCount is the number of current members of groupID besides userID.
func otherMemberCount(db *gorm.DB, groupID, userID uint) (int64, error) {
	var n int64
	err := db.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id <> ?", groupID, userID).
		Count(&n).Error
	return n, err
}

// readerCounts returns, per message id, how many current members of groupID
// other than authorID have read it.
func readerCounts(db *gorm.DB, groupID, authorID uint, messageIDs []uint) (map[uint]int64, error) {
	var rows []struct {
		MessageID uint
		Readers   int64
	}
	err := db.Table("message_reads AS r").
		Select("r.message_id AS message_id, COUNT(*) AS readers").
		Joins("JOIN group_members gm ON gm.user_id = r.user_id AND gm.group_id = ?", groupID).
		Where("r.message_id IN ? AND r.is_read = ? AND r.user_id <> ?", messageIDs, true, authorID).
		Group("r.message_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, row := range rows {
		out[row.MessageID] = row.Readers
	}
	return out, nil
}

// readByAll reports whether msg was written by viewerID and every other
// current member of groupID has read it. With no other members this holds
// trivially.
func readByAll(db *gorm.DB, groupID, viewerID uint, msg *models.Message) (bool, error) {
	if msg == nil || msg.UserID != viewerID {
		return false, nil
	}
	others, err := otherMemberCount(db, groupID, viewerID)
	if err != nil {
		return false, err
	}
	counts, err := readerCounts(db, groupID, viewerID, []uint{msg.ID})
	if err != nil {
		return false, err
	}
	return counts[msg.ID] == others, nil
}
