package models

import (
	"time"
)

// Message is immutable once created. ID is the per-store creation sequence
// and defines ordering inside a conversation.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupID   uint      `gorm:"index:idx_group_message;not null" json:"groupId"`
	UserID    uint      `gorm:"index;not null" json:"userId"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_group_message" json:"createdAt"`

	User        User          `gorm:"foreignKey:UserID" json:"-"`
	Attachments []Attachment  `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments"`
	Reads       []MessageRead `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"-"`
}

// MessageRead is the read marker of one recipient for one message.
type MessageRead struct {
	UserID    uint `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	MessageID uint `gorm:"primaryKey;autoIncrement:false;index" json:"messageId"`
	IsRead    bool `gorm:"not null;default:false" json:"isRead"`
}
