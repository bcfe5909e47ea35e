package models

import (
	"time"
)

// Group is a conversation: a multi-party group, a broadcast channel
// (IsChat == false) or a two-party private chat.
type Group struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:120;not null" json:"name"`
	Username  *string   `gorm:"size:64;uniqueIndex" json:"username"` // public @handle
	AvatarURL string    `json:"avatarUrl"`
	OwnerID   uint      `gorm:"index;not null" json:"ownerId"`
	IsChat    bool      `gorm:"not null" json:"isChat"` // false for broadcast channels
	IsPrivate bool      `gorm:"default:false;index" json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Owner   User          `gorm:"foreignKey:OwnerID" json:"owner"`
	Members []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"members"`
	Admins  []GroupAdmin  `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"admins"`
}
