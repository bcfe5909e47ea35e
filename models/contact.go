package models

import "time"

// Contact is an owner's address-book entry for another user. CustomName
// overrides the target's real name in the owner's views.
type Contact struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"uniqueIndex:idx_contact_pair;not null" json:"userId"`
	ContactID  uint      `gorm:"uniqueIndex:idx_contact_pair;not null" json:"contactId"`
	CustomName string    `gorm:"size:120;not null" json:"customName"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	Contact User `gorm:"foreignKey:ContactID" json:"contact"`
}
