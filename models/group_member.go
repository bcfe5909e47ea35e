package models

import "time"

// GroupMember links a user to a conversation.
type GroupMember struct {
	GroupID  uint      `gorm:"primaryKey;autoIncrement:false" json:"groupId"`
	UserID   uint      `gorm:"primaryKey;autoIncrement:false;index" json:"userId"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joinedAt"` // 用户加入会话的时间
	User     User      `gorm:"foreignKey:UserID" json:"user"`
}

// GroupAdmin marks a member as an administrator. The owner always has a row.
type GroupAdmin struct {
	GroupID uint `gorm:"primaryKey;autoIncrement:false" json:"groupId"`
	UserID  uint `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	User    User `gorm:"foreignKey:UserID" json:"user"`
}
